package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"olament/pkg/api"
)

// Client reads the catalog endpoints. List fetches are guarded per
// resource: a refresh triggered while the previous one is still in flight
// is dropped, keeping response application in order.
type Client struct {
	api   *api.Client
	guard *api.FetchGuard
}

func NewClient(client *api.Client) *Client {
	return &Client{api: client, guard: api.NewFetchGuard()}
}

// ListProducts returns one page of products.
func (c *Client) ListProducts(ctx context.Context, page, limit int) (api.Page[Product], error) {
	return c.listPage(ctx, "/products", "products", page, limit)
}

// CategoryProducts returns one page of a category's products.
func (c *Client) CategoryProducts(ctx context.Context, categoryID string, page, limit int) (api.Page[Product], error) {
	path := fmt.Sprintf("/products/categories/%s/products", url.PathEscape(categoryID))
	return c.listPage(ctx, path, "category:"+categoryID, page, limit)
}

// ShopProducts returns one page of a shop's products.
func (c *Client) ShopProducts(ctx context.Context, shopID string, page, limit int) (api.Page[Product], error) {
	path := fmt.Sprintf("/shops/%s/products", url.PathEscape(shopID))
	return c.listPage(ctx, path, "shop:"+shopID, page, limit)
}

func (c *Client) listPage(ctx context.Context, path, guardKey string, page, limit int) (api.Page[Product], error) {
	var out api.Page[Product]
	err := c.guard.Do(guardKey, func() error {
		raw, err := api.GetPage[json.RawMessage](ctx, c.api, path, api.PageQuery(page, limit))
		if err != nil {
			return err
		}
		out, err = normalizePage(raw)
		return err
	})
	return out, err
}

// GetProduct fetches a single product.
func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	var w wireProduct
	if err := c.api.Get(ctx, "/products/"+url.PathEscape(id), nil, &w); err != nil {
		return Product{}, err
	}
	return w.canonical()
}

// ListCategories returns all categories, canonicalized.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := c.guard.Do("categories", func() error {
		page, err := api.GetPage[wireCategory](ctx, c.api, "/products/categories/list", nil)
		if err != nil {
			return err
		}
		out = make([]Category, 0, len(page.Items))
		for _, w := range page.Items {
			out = append(out, w.canonical())
		}
		return nil
	})
	return out, err
}

func normalizePage(raw api.Page[json.RawMessage]) (api.Page[Product], error) {
	out := api.Page[Product]{
		TotalDocs:   raw.TotalDocs,
		Page:        raw.Page,
		Limit:       raw.Limit,
		TotalPages:  raw.TotalPages,
		HasNextPage: raw.HasNextPage,
		HasPrevPage: raw.HasPrevPage,
		NextPage:    raw.NextPage,
		PrevPage:    raw.PrevPage,
	}
	out.Items = make([]Product, 0, len(raw.Items))
	for _, item := range raw.Items {
		var w wireProduct
		if err := json.Unmarshal(item, &w); err != nil {
			return api.Page[Product]{}, fmt.Errorf("catalog: decode product: %w", err)
		}
		p, err := w.canonical()
		if err != nil {
			return api.Page[Product]{}, fmt.Errorf("catalog: normalize product: %w", err)
		}
		out.Items = append(out.Items, p)
	}
	return out, nil
}
