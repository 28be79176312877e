package postgresrepo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirinyoku/ticket-reservation/internal/repository"
)

func TestWrapDBErr(t *testing.T) {
	t.Parallel()

	other := errors.New("connection reset")

	tests := []struct {
		name      string
		err       error
		want      error
		retryable bool
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: repository.ErrNotFound},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: repository.ErrSerialization, retryable: true},
		{name: "deadlock", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), want: repository.ErrSerialization, retryable: true},
		{
			name:      "unique violation",
			err:       &pgconn.PgError{Code: "23505", ConstraintName: "bookings_reference_key"},
			want:      repository.ErrConflict,
			retryable: true,
		},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, want: nil},
		{name: "other", err: other, want: other},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := wrapDBErr("op", tt.err)
			if tt.want != nil && !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			if repository.IsRetryable(got) != tt.retryable {
				t.Fatalf("expected retryable=%v for %v", tt.retryable, got)
			}
		})
	}

	if wrapDBErr("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
