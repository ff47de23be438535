package sampler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/foodsample/pkg/config"
	"github.com/ajitpratap0/foodsample/pkg/testutil"
	"github.com/ajitpratap0/foodsample/pkg/transform"
)

func TestFetchPublicDataset(t *testing.T) {
	testutil.IntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	tbl, err := Fetch(ctx, newEngine(t), config.DefaultSourceURI, config.DefaultRowLimit)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultRowLimit, tbl.NumRows())

	// every column the built-in rules read must be present
	_, err = transform.Compile(transform.FoodFacts(), tbl.Names(), testutil.TestLogger(t))
	require.NoError(t, err)
}
