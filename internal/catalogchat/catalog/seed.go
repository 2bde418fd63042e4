package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout read by LoadSeedFile.
//
//	products:
//	  - id: 12
//	    name: Camiseta básica
//	    sku: CAM-001
//	    price: 19.9
//	    manage_stock: true
//	    stock_quantity: 3
type SeedFile struct {
	Products []Product `yaml:"products"`
}

// LoadSeedFile parses a YAML product fixture.
func LoadSeedFile(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses YAML seed data.
func ParseSeed(data []byte) ([]Product, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse seed: %w", err)
	}
	for i := range f.Products {
		p := &f.Products[i]
		if p.Status == "" {
			p.Status = StatusPublish
		}
		if p.StockStatus == "" {
			p.StockStatus = StockInStock
			if p.ManageStock && p.StockQuantity != nil && *p.StockQuantity == 0 {
				p.StockStatus = StockOutOfStock
			}
		}
	}
	return f.Products, nil
}
