package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestKindOf(t *testing.T) {
	err := New(KindValidation, "bid: amount below minimum")
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation kind, got %q", KindOf(err))
	}

	wrapped := fmt.Errorf("ledger: place bid: %w", err)
	if KindOf(wrapped) != KindValidation {
		t.Fatalf("expected kind to survive wrapping, got %q", KindOf(wrapped))
	}

	if KindOf(errors.New("plain")) != "" {
		t.Fatal("expected empty kind for unkinded error")
	}
}

func TestErrorfCapturesCause(t *testing.T) {
	cause := errors.New("row locked")
	err := Errorf(KindConflict, "ledger: revalidate: %w", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if !Is(err, KindConflict) {
		t.Fatal("expected conflict kind")
	}
}

func TestFromPg(t *testing.T) {
	cases := []struct {
		code string
		want Kind
	}{
		{"23505", KindConflict},
		{"40001", KindConflict},
		{"40P01", KindConflict},
	}
	for _, tc := range cases {
		pgErr := &pgconn.PgError{Code: tc.code}
		got := FromPg(fmt.Errorf("exec: %w", pgErr), "bid: lost race")
		if KindOf(got) != tc.want {
			t.Fatalf("code %s: expected %q, got %q", tc.code, tc.want, KindOf(got))
		}
	}

	passthrough := errors.New("connection refused")
	if got := FromPg(passthrough, "bid: lost race"); got != passthrough {
		t.Fatalf("expected passthrough for non-pg error, got %v", got)
	}
}
