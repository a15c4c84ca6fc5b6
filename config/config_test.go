package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SEARCH_QUERIES", "")
	t.Setenv("TIKI_PAGES", "")
	t.Setenv("REVIEW_TIMEOUT_SEC", "")

	cfg := Load()
	if len(cfg.SearchQueries) != 3 {
		t.Errorf("SearchQueries: got %v, want 3 defaults", cfg.SearchQueries)
	}
	if cfg.TikiPages != 8 {
		t.Errorf("TikiPages: got %d, want 8", cfg.TikiPages)
	}
	if cfg.ReviewTimeout != 15*time.Second {
		t.Errorf("ReviewTimeout: got %v, want 15s", cfg.ReviewTimeout)
	}
	if cfg.LazadaMaxItems != 180 {
		t.Errorf("LazadaMaxItems: got %d, want 180", cfg.LazadaMaxItems)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SEARCH_QUERIES", " laptop , ,ipad ")
	t.Setenv("LAZADA_PAGES", "2")
	t.Setenv("TIKI_REQUEST_DELAY_MS", "250")
	t.Setenv("STORE", "MEMORY")
	t.Setenv("LOG_DEBUG", "true")
	t.Setenv("REVIEW_WORKERS", "not-a-number")
	t.Setenv("LAZADA_PAGE_DELAY_MS", "50")

	cfg := Load()
	if len(cfg.SearchQueries) != 2 || cfg.SearchQueries[0] != "laptop" || cfg.SearchQueries[1] != "ipad" {
		t.Errorf("SearchQueries: got %q", cfg.SearchQueries)
	}
	if cfg.LazadaPages != 2 {
		t.Errorf("LazadaPages: got %d, want 2", cfg.LazadaPages)
	}
	if cfg.TikiRequestDelay != 250*time.Millisecond {
		t.Errorf("TikiRequestDelay: got %v", cfg.TikiRequestDelay)
	}
	if cfg.LazadaPageDelay != 50*time.Millisecond {
		t.Errorf("LazadaPageDelay: got %v", cfg.LazadaPageDelay)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("Store: got %q, want %q", cfg.Store, StoreMemory)
	}
	if !cfg.LogDebug {
		t.Error("LogDebug should be true")
	}
	if cfg.ReviewWorkers != 8 {
		t.Errorf("ReviewWorkers should fall back to 8 on bad input, got %d", cfg.ReviewWorkers)
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost: "db", PostgresPort: "5433", PostgresUser: "u",
		PostgresPassword: "p", PostgresDB: "d", PostgresSSLMode: "disable",
	}
	want := "host=db port=5433 user=u password=p dbname=d sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN: got %q, want %q", got, want)
	}
}
