package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/stockledger/internal/db"
)

func TestRevokeToken(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if err := RevokeToken(ctx, database, "jti-alice", t0.Add(time.Hour)); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	// A second logout with the same token is harmless.
	if err := RevokeToken(ctx, database, "jti-alice", t0.Add(time.Hour)); err != nil {
		t.Fatalf("RevokeToken again: %v", err)
	}

	for jti, want := range map[string]bool{"jti-alice": true, "jti-bob": false} {
		got, err := IsTokenRevoked(ctx, database, jti)
		if err != nil {
			t.Fatalf("IsTokenRevoked(%s): %v", jti, err)
		}
		if got != want {
			t.Errorf("IsTokenRevoked(%s) = %v, want %v", jti, got, want)
		}
	}
}

func TestPurgeRevokedTokens(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	RevokeToken(ctx, database, "expired", t0.Add(-time.Minute))
	RevokeToken(ctx, database, "live", t0.Add(time.Hour))

	n, err := PurgeRevokedTokens(ctx, database, t0)
	if err != nil {
		t.Fatalf("PurgeRevokedTokens: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged revocation, got %d", n)
	}

	if revoked, _ := IsTokenRevoked(ctx, database, "live"); !revoked {
		t.Error("expected unexpired revocation to survive the purge")
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "expired"); revoked {
		t.Error("expected expired revocation to be purged")
	}
}
