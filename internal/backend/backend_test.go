package backend

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ledger/internal/amqp"
	"ledger/internal/config"
	"ledger/internal/core"
)

func quietFactory(dial func(url, exchange, queue string) (*amqp.Client, error)) *DefaultFactory {
	f := NewFactory(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))).(*DefaultFactory)
	if dial != nil {
		f.dialAMQP = dial
	}
	return f
}

func TestBackendType_IsValid(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		if !bt.IsValid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if BackendType("sheets").IsValid() {
		t.Error("sheets is no longer a storage backend")
	}
	if got := GetBackendTypeStrings(); len(got) != 2 || got[0] != "sqlite" || got[1] != "memory" {
		t.Errorf("GetBackendTypeStrings() = %v", got)
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("FromAppConfig(nil) should fail")
	}

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:  "sqlite",
		SQLiteDBPath: "/tmp/ledger.db",
		AMQPURL:      "amqp://localhost:5672/",
		AMQPExchange: "ledger",
		AMQPQueue:    "budget_alerts",
		RateSeedFile: "rates.yaml",
	})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "/tmp/ledger.db" || cfg.RateSeedFile != "rates.yaml" {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "postgres"}); err == nil || !strings.Contains(err.Error(), "valid: sqlite, memory") {
		t.Errorf("FromAppConfig should reject unknown backends and list the valid ones, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite with path", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://x", AMQPExchange: "e"}, true},
		{"unknown type", Config{Type: "nope"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend_MemoryWithSeed(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "rates.yaml")
	doc := "provider: manual\nrates:\n  - date: 2024-03-01\n    from: USD\n    to: EUR\n    rate: 0.92\n"
	if err := os.WriteFile(seed, []byte(doc), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	dialed := false
	f := quietFactory(func(string, string, string) (*amqp.Client, error) {
		dialed = true
		return nil, errors.New("connection refused")
	})

	ctx := context.Background()
	res, err := f.CreateBackend(ctx, Config{
		Type:         MemoryBackend,
		AMQPURL:      "amqp://localhost:5672/",
		AMQPExchange: "ledger",
		AMQPQueue:    "budget_alerts",
		RateSeedFile: seed,
	})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Store.Close()

	if !dialed {
		t.Error("AMQP was not dialed")
	}
	if res.Publisher != nil {
		t.Error("Publisher should be nil when the broker is unreachable")
	}

	r, err := res.Store.LatestRate(ctx, core.USD, core.EUR, core.NewDate(2024, 3, 31))
	if err != nil {
		t.Fatalf("seeded rate missing: %v", err)
	}
	if r.Provider != "manual" || r.Rate.String() != "0.92" {
		t.Errorf("seeded rate = %+v", r)
	}

	cats, err := res.Store.ListCategories(ctx, "anyone")
	if err != nil || len(cats) == 0 {
		t.Errorf("default categories missing: %v (%d)", err, len(cats))
	}
}

func TestCreateBackend_SQLite(t *testing.T) {
	f := quietFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "db", "ledger.db"),
	})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Store.Close()

	if err := res.Store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if res.Publisher != nil {
		t.Error("Publisher should be nil without AMQP_URL")
	}
}

func TestCreateBackend_BadSeed(t *testing.T) {
	f := quietFactory(nil)
	_, err := f.CreateBackend(context.Background(), Config{
		Type:         MemoryBackend,
		RateSeedFile: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	if err == nil {
		t.Error("CreateBackend() should fail on a missing seed file")
	}
}
