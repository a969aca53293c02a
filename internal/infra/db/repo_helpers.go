package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

const uniqueViolation = "23505"

var errDBUnavailable = fmt.Errorf("%w: db unavailable", domain.ErrStoreUnavailable)

// storeError maps driver errors onto the domain taxonomy.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// validID reports whether id can address a uuid column. Anything else cannot
// exist, so callers answer NotFound without a round-trip.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func dbTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := dbTime(*t)
	return &v
}

func stringPtrIfNotEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

type timeoutScope struct {
	timeout time.Duration
}

func (s timeoutScope) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.timeout)
}
