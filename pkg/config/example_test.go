package config_test

import (
	"fmt"
	"os"

	"github.com/ajitpratap0/foodsample/pkg/config"
)

// ExampleDefault shows the values used when nothing is overridden.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Println(cfg.Source.RowLimit)
	fmt.Println(cfg.Paths.Sample)
	fmt.Println(cfg.Paths.Transformed)
	fmt.Println(cfg.Paths.SchemaDir)

	// Output:
	// 100
	// food_sample.csv
	// food_sample_transformed.csv
	// schemas
}

// ExampleFromViper shows an environment override taking effect.
func ExampleFromViper() {
	os.Setenv("FOODSAMPLE_ROW_LIMIT", "25")
	defer os.Unsetenv("FOODSAMPLE_ROW_LIMIT")

	cfg, err := config.FromViper(config.NewViper())
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(cfg.Source.RowLimit)

	// Output:
	// 25
}
