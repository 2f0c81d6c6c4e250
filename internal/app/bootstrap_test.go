package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"virtual_market/internal/domain"
	"virtual_market/internal/infra/events"
)

func writeTestConfig(t *testing.T, driver string) string {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join("..", "..", "configs", "virtual-stocks.json")
	abs, err := filepath.Abs(catalogPath)
	if err != nil {
		t.Fatalf("abs: %v", err)
	}

	content := fmt.Sprintf(`
app:
  name: bootstrap-test
store:
  driver: %s
  sql:
    path: %s
  pebble:
    path: %s
market:
  catalog_paths: [%q]
logging:
  level: error
  dir: %s
`, driver, filepath.Join(dir, "market.db"), filepath.Join(dir, "pebble"), abs, filepath.Join(dir, "logs"))

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestBootstrap_Initialize(t *testing.T) {
	for _, driver := range []string{"sqlite", "pebble"} {
		t.Run(driver, func(t *testing.T) {
			b := NewBootstrap()
			var console bytes.Buffer
			if err := b.Initialize(context.Background(), writeTestConfig(t, driver), &console); err != nil {
				t.Fatalf("Initialize failed: %v", err)
			}
			defer b.Close()

			if _, ok := b.Publisher.(events.NopPublisher); !ok {
				t.Errorf("Expected NopPublisher when events are disabled, got %T", b.Publisher)
			}

			ctx := context.Background()
			report, err := b.Trading.Portfolio(ctx, "alice")
			if err != nil {
				t.Fatalf("Portfolio failed: %v", err)
			}
			if report.Granted != 1000 {
				t.Errorf("Expected starter grant 1000, got %d", report.Granted)
			}

			exec, err := b.Trading.Buy(ctx, "alice", "KAI", 1)
			if err != nil {
				t.Fatalf("Buy failed: %v", err)
			}
			if exec.Holding == nil || exec.Holding.Shares != 1 {
				t.Errorf("Unexpected holding: %+v", exec.Holding)
			}
			if b.Metrics.Snapshot().BuysFilled != 1 {
				t.Error("Expected buy recorded in metrics")
			}
		})
	}
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	b := NewBootstrap()
	err := b.Initialize(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), &bytes.Buffer{})

	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigError, got %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close on a failed bootstrap should be a no-op, got %v", err)
	}
}
