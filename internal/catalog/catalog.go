// Package catalog loads the static reference data of the simulated stocks.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"virtual_market/internal/domain"

	"gopkg.in/yaml.v3"
)

const (
	minBasePrice  = 1
	minVolatility = 0.001
)

// Catalog holds validated stock definitions. Read-only after construction.
type Catalog struct {
	defs     []domain.StockDefinition
	bySymbol map[string]int
}

// New validates definitions and builds a catalog.
func New(defs []domain.StockDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, &domain.ConfigError{Field: "catalog", Err: errors.New("no stock definitions")}
	}

	c := &Catalog{
		defs:     make([]domain.StockDefinition, 0, len(defs)),
		bySymbol: make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		def, err := sanitize(d)
		if err != nil {
			return nil, &domain.ConfigError{Field: fmt.Sprintf("catalog[%d]", i), Err: err}
		}
		if _, dup := c.bySymbol[def.Symbol]; dup {
			return nil, &domain.ConfigError{Field: fmt.Sprintf("catalog[%d]", i), Err: fmt.Errorf("duplicate symbol %s", def.Symbol)}
		}
		c.bySymbol[def.Symbol] = len(c.defs)
		c.defs = append(c.defs, def)
	}
	return c, nil
}

// Load reads a JSON or YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Field: "catalog", Err: err}
	}

	var defs []domain.StockDefinition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &defs)
	default:
		err = json.Unmarshal(data, &defs)
	}
	if err != nil {
		return nil, &domain.ConfigError{Field: "catalog", Err: fmt.Errorf("parse %s: %w", path, err)}
	}

	c, err := New(defs)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return c, nil
}

// LoadFirst loads the first candidate path that exists.
func LoadFirst(paths ...string) (*Catalog, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return Load(p)
	}
	return nil, &domain.ConfigError{Field: "catalog", Err: fmt.Errorf("no catalog file found in %v", paths)}
}

func sanitize(d domain.StockDefinition) (domain.StockDefinition, error) {
	symbol := NormalizeSymbol(d.Symbol)
	if symbol == "" {
		return d, errors.New("missing symbol")
	}
	if !finite(d.BasePrice) || !finite(d.Volatility) || !finite(d.Bias) {
		return d, fmt.Errorf("%s: non-finite numeric field", symbol)
	}
	if d.BasePrice <= 0 || d.Volatility <= 0 {
		return d, fmt.Errorf("%s: basePrice and volatility must be positive", symbol)
	}

	name := strings.TrimSpace(d.Name)
	if name == "" {
		name = symbol
	}
	return domain.StockDefinition{
		Symbol:     symbol,
		Name:       name,
		BasePrice:  math.Max(minBasePrice, d.BasePrice),
		Volatility: math.Max(minVolatility, d.Volatility),
		Bias:       d.Bias,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// NormalizeSymbol returns the canonical uppercase form of a symbol
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// List returns a copy of all definitions in catalog order
func (c *Catalog) List() []domain.StockDefinition {
	out := make([]domain.StockDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Get resolves a symbol case-insensitively
func (c *Catalog) Get(symbol string) (domain.StockDefinition, error) {
	i, ok := c.bySymbol[NormalizeSymbol(symbol)]
	if !ok {
		return domain.StockDefinition{}, fmt.Errorf("%w: %q", domain.ErrUnknownSymbol, symbol)
	}
	return c.defs[i], nil
}

// Len returns the number of symbols
func (c *Catalog) Len() int {
	return len(c.defs)
}
