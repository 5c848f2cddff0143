package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Optional country code followed by 10 to 14 digits not starting with zero.
var phonePattern = regexp.MustCompile(`^(\+[1-9][0-9]{1,3}\s?)?[1-9][0-9]{9,13}$`)

// NewValidator returns a validator with the custom rules used by request structs.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// isLockConflict reports whether Postgres aborted the transaction because a
// concurrent one held the rows it needed.
func isLockConflict(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && (pqErr.Code == deadlockDetected || pqErr.Code == serializationFailure)
}

// uniqueIDs trims, drops blanks and removes duplicates keeping first occurrence.
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortedUnique(ids ...string) []string {
	out := uniqueIDs(ids)
	sort.Strings(out)
	return out
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
