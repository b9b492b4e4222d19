package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "production" {
		t.Fatalf("expected App.Env to be production, got %q", cfg.App.Env)
	}

	if got := cfg.Engine.DebounceWindow; got != 500*time.Millisecond {
		t.Fatalf("expected default debounce window 500ms, got %v", got)
	}

	if got := cfg.Engine.OrphanPurgeDelay; got != 2*time.Second {
		t.Fatalf("expected default orphan purge delay 2s, got %v", got)
	}

	if cfg.CartStore.Mode != CartStoreModeRemote {
		t.Fatalf("unexpected cart store mode %q", cfg.CartStore.Mode)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv("STOREFRONT_APP_ENV"); err != nil {
		t.Fatalf("failed to unset app env: %v", err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_RemoteModeRequiresBaseURL(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("STOREFRONT_CARTSTORE_BASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected remote mode without base url to fail")
	}
}

func TestLoad_DBModeBuildsLegacyDSN(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("STOREFRONT_CARTSTORE_MODE", CartStoreModeDB)
	t.Setenv("STOREFRONT_DB_HOST", "localhost")
	t.Setenv("STOREFRONT_DB_USER", "storefront")
	t.Setenv("STOREFRONT_DB_NAME", "storefront")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.DB.DSN == "" {
		t.Fatal("expected DSN to be assembled from legacy parts")
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv("STOREFRONT_APP_ENV", "production")
	t.Setenv("STOREFRONT_APP_PORT", "8081")
	t.Setenv("STOREFRONT_CARTSTORE_BASE_URL", "http://cart-store.internal")
	t.Setenv("STOREFRONT_CATALOG_BASE_URL", "http://catalog.internal")
	t.Setenv("STOREFRONT_JWT_SECRET", "secret")
	t.Setenv("STOREFRONT_JWT_ISSUER", "storefront")
}
