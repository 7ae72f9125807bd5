package store

import (
	"context"
	"testing"

	"github.com/erazemk/stockledger/internal/db"
)

func TestGetJWTSecretIsStable(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatalf("GetJWTSecret: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}

	second, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatalf("GetJWTSecret again: %v", err)
	}
	if first != second {
		t.Errorf("expected the stored secret to be reused, got %q then %q", first, second)
	}
}

func TestSettings(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, ok, err := GetSetting(ctx, database, SettingLastSnapshot); err != nil || ok {
		t.Fatalf("expected unset setting, got ok=%v err=%v", ok, err)
	}

	for _, v := range []string{"inventory-snapshot-2026-03-01.json", "inventory-snapshot-2026-03-02.json"} {
		if err := SetSetting(ctx, database, SettingLastSnapshot, v); err != nil {
			t.Fatalf("SetSetting: %v", err)
		}
	}

	got, ok, err := GetSetting(ctx, database, SettingLastSnapshot)
	if err != nil || !ok {
		t.Fatalf("GetSetting: ok=%v err=%v", ok, err)
	}
	if got != "inventory-snapshot-2026-03-02.json" {
		t.Errorf("expected latest value, got %q", got)
	}
}
