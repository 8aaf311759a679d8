package catalog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"olament/pkg/api"
)

// Runs against a live deployment when OLAMENT_API_URL_FOR_TEST is set.
// Read-only: it touches no account state.
func TestLive_CatalogEndpoints(t *testing.T) {
	base := os.Getenv("OLAMENT_API_URL_FOR_TEST")
	if base == "" {
		t.Skip("OLAMENT_API_URL_FOR_TEST not set; skipping live catalog tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client := NewClient(api.NewClient(base))

	page, err := client.ListProducts(ctx, 1, 5)
	require.NoError(t, err)
	for _, p := range page.Items {
		require.NotEmpty(t, p.ID)
		require.NotEmpty(t, p.Category.Slug, "normalization fills the slug")
	}

	cats, err := client.ListCategories(ctx)
	require.NoError(t, err)
	for _, c := range cats {
		require.NotEmpty(t, c.Slug)
	}
}
