package catalog

import (
	"encoding/json"
	"time"
)

// Category is canonical: Slug is always populated, falling back to the name
// when the server omits it. Render sites never branch on missing fields.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Shop is a vendor's storefront.
type Shop struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// VendorRef is the tagged union for the product's vendor field: the wire
// carries either a bare id or the embedded shop record. Embedded is nil for
// a plain reference; ID is always set.
type VendorRef struct {
	ID       string
	Embedded *Shop
}

// Product is the canonical listing.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	Images      []string  `json:"images,omitempty"`
	Category    Category  `json:"category"`
	Vendor      VendorRef `json:"vendor"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

type wireCategory struct {
	MongoID string `json:"_id"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
}

func (w wireCategory) canonical() Category {
	c := Category{ID: firstNonEmpty(w.ID, w.MongoID), Name: w.Name, Slug: w.Slug}
	if c.Slug == "" {
		c.Slug = c.Name
	}
	return c
}

// UnmarshalJSON resolves the nested-or-flat vendor shape once, here.
func (v *VendorRef) UnmarshalJSON(raw []byte) error {
	var flat string
	if err := json.Unmarshal(raw, &flat); err == nil {
		*v = VendorRef{ID: flat}
		return nil
	}
	var shop struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
		Name    string `json:"name"`
		LogoURL string `json:"logoUrl"`
	}
	if err := json.Unmarshal(raw, &shop); err != nil {
		return err
	}
	id := firstNonEmpty(shop.ID, shop.MongoID)
	*v = VendorRef{ID: id, Embedded: &Shop{ID: id, Name: shop.Name, LogoURL: shop.LogoURL}}
	return nil
}

// MarshalJSON keeps the canonical encoding re-normalizable: a plain
// reference stays a string, an embedded record stays an object.
func (v VendorRef) MarshalJSON() ([]byte, error) {
	if v.Embedded == nil {
		return json.Marshal(v.ID)
	}
	return json.Marshal(v.Embedded)
}

type wireProduct struct {
	MongoID     string          `json:"_id"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       json.Number     `json:"price"`
	Images      []string        `json:"images"`
	Category    json.RawMessage `json:"category"`
	Vendor      VendorRef       `json:"vendor"`
	CreatedAt   *time.Time      `json:"createdAt"`
}

func (w wireProduct) canonical() (Product, error) {
	p := Product{
		ID:          firstNonEmpty(w.ID, w.MongoID),
		Name:        w.Name,
		Description: w.Description,
		Images:      w.Images,
		Vendor:      w.Vendor,
	}
	if n, err := w.Price.Int64(); err == nil {
		p.Price = n
	} else if f, err := w.Price.Float64(); err == nil {
		p.Price = int64(f*100 + 0.5)
	}
	if len(w.Category) > 0 && string(w.Category) != "null" {
		var wc wireCategory
		if err := json.Unmarshal(w.Category, &wc); err != nil {
			// category may arrive as a bare slug string
			var slug string
			if err2 := json.Unmarshal(w.Category, &slug); err2 != nil {
				return Product{}, err
			}
			wc = wireCategory{Slug: slug}
		}
		p.Category = wc.canonical()
	}
	if w.CreatedAt != nil && !w.CreatedAt.IsZero() {
		p.CreatedAt = w.CreatedAt.UTC()
	}
	return p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
