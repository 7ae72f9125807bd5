package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

func TestInitDatabaseCreatesAdminOnce(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "stock.sqlite3")

	database, password, err := initDatabase(dsn, "boss")
	if err != nil {
		t.Fatalf("initDatabase: %v", err)
	}
	if len(password) != 16 {
		t.Errorf("expected a 16 character password, got %d", len(password))
	}
	u, err := store.GetUserByUsername(context.Background(), database, "boss")
	if err != nil || u == nil {
		t.Fatalf("expected admin user, got %v, %v", u, err)
	}
	if u.Role != model.RoleAdmin {
		t.Errorf("expected admin role, got %s", u.Role)
	}
	database.Close()

	database, password, err = initDatabase(dsn, "boss")
	if err != nil {
		t.Fatalf("initDatabase again: %v", err)
	}
	defer database.Close()
	if password != "" {
		t.Error("expected no new admin on an initialized database")
	}
}

func TestLevelRouter(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := slog.New(&levelRouter{
		min:    slog.LevelInfo,
		stdout: slog.NewTextHandler(&out, nil),
		stderr: slog.NewTextHandler(&errOut, nil),
	})

	logger.Debug("hidden")
	logger.Info("flushed", "slot", "BIKE-1@LUDLOW/Row 1")
	logger.Error("commit failed")

	if strings.Contains(out.String(), "hidden") {
		t.Error("debug record should be filtered")
	}
	if !strings.Contains(out.String(), "flushed") || strings.Contains(out.String(), "commit failed") {
		t.Errorf("unexpected stdout: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "commit failed") {
		t.Errorf("expected error on stderr, got %q", errOut.String())
	}
}

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(24)
	if err != nil {
		t.Fatalf("generatePassword: %v", err)
	}
	b, _ := generatePassword(24)
	if len(a) != 24 || a == b {
		t.Errorf("expected distinct 24 character passwords, got %q and %q", a, b)
	}
}
