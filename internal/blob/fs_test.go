package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFSPutGet(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverFS, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Put(ctx, "snapshots/a.json", strings.NewReader(`{"v":1}`), "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "snapshots/a.json", strings.NewReader(`{"v":2}`), "application/json"); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	rc, err := s.Get(ctx, "snapshots/a.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != `{"v":2}` {
		t.Errorf("expected overwritten content, got %s", data)
	}
}

func TestFSMissingAndInvalidKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, "../escape", strings.NewReader("x"), ""); err == nil {
		t.Error("expected traversal key to be rejected")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "ftp"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
