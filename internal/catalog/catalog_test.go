package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"virtual_market/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "stocks.json", `[
		{"symbol": " kai ", "name": "Karin AI", "basePrice": 100, "volatility": 0.05},
		{"symbol": "TEA", "basePrice": 0.5, "volatility": 0.0001, "bias": 0.01}
	]`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Expected 2 definitions, got %d", c.Len())
	}

	kai, err := c.Get("Kai")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if kai.Symbol != "KAI" || kai.Name != "Karin AI" {
		t.Errorf("Unexpected definition: %+v", kai)
	}

	tea, _ := c.Get("tea")
	if tea.Name != "TEA" {
		t.Errorf("Name should default to symbol, got %q", tea.Name)
	}
	if tea.BasePrice != 1 {
		t.Errorf("BasePrice should be floored to 1, got %v", tea.BasePrice)
	}
	if tea.Volatility != 0.001 {
		t.Errorf("Volatility should be floored to 0.001, got %v", tea.Volatility)
	}
	if tea.Bias != 0.01 {
		t.Errorf("Expected bias 0.01, got %v", tea.Bias)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "stocks.yaml", `
- symbol: KAI
  name: Karin AI
  basePrice: 100
  volatility: 0.05
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := c.Get("KAI"); err != nil {
		t.Errorf("Expected KAI in catalog: %v", err)
	}
}

func TestLoad_Failures(t *testing.T) {
	cases := map[string]string{
		"empty list":       `[]`,
		"malformed":        `[{"symbol":`,
		"missing symbol":   `[{"basePrice": 10, "volatility": 0.1}]`,
		"zero volatility":  `[{"symbol": "A", "basePrice": 10, "volatility": 0}]`,
		"negative price":   `[{"symbol": "A", "basePrice": -1, "volatility": 0.1}]`,
		"duplicate symbol": `[{"symbol": "A", "basePrice": 10, "volatility": 0.1}, {"symbol": "a", "basePrice": 10, "volatility": 0.1}]`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "stocks.json", content))
			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Expected ConfigError, got %v", err)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		var cfgErr *domain.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Expected ConfigError, got %v", err)
		}
	})
}

func TestLoadFirst(t *testing.T) {
	dir := t.TempDir()
	existing := writeFile(t, "stocks.json", `[{"symbol": "KAI", "basePrice": 100, "volatility": 0.05}]`)

	c, err := LoadFirst(filepath.Join(dir, "missing.json"), existing)
	if err != nil {
		t.Fatalf("LoadFirst failed: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 definition, got %d", c.Len())
	}

	_, err = LoadFirst(filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json"))
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigError when no candidate exists, got %v", err)
	}
}

func TestCatalog_GetUnknown(t *testing.T) {
	c, err := New([]domain.StockDefinition{{Symbol: "KAI", BasePrice: 100, Volatility: 0.05}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := c.Get("NOPE"); !errors.Is(err, domain.ErrUnknownSymbol) {
		t.Errorf("Expected ErrUnknownSymbol, got %v", err)
	}
}

func TestCatalog_ListIsCopy(t *testing.T) {
	c, _ := New([]domain.StockDefinition{{Symbol: "KAI", BasePrice: 100, Volatility: 0.05}})

	list := c.List()
	list[0].Symbol = "MUTATED"

	if _, err := c.Get("KAI"); err != nil {
		t.Error("Mutating List() result must not affect the catalog")
	}
}

func TestBundledCatalog(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs", "virtual-stocks.json"))
	if err != nil {
		t.Fatalf("bundled catalog failed to load: %v", err)
	}
	if _, err := c.Get("KAI"); err != nil {
		t.Errorf("bundled catalog should contain KAI: %v", err)
	}
}
