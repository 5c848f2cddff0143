package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/training-scheduler-api/internal/models"
)

// RelationRepository applies add-to-set and pull updates on reference arrays.
// Table and column names come only from declared relations.
type RelationRepository struct {
	db *sqlx.DB
}

// NewRelationRepository constructs a RelationRepository.
func NewRelationRepository(db *sqlx.DB) *RelationRepository {
	return &RelationRepository{db: db}
}

// AddToSet appends sourceID to spec.Field on every target that does not hold it yet.
func (r *RelationRepository) AddToSet(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, sourceID string, targetIDs []string) error {
	if !spec.Declared() {
		return fmt.Errorf("undeclared relation %q", spec.Name)
	}
	if len(targetIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %[1]s SET %[2]s = array_append(%[2]s, $1), updated_at = $3 WHERE id = ANY($2) AND NOT ($1 = ANY(%[2]s))`, spec.Target, spec.Field)
	if _, err := orDB(r.db, exec).ExecContext(ctx, query, sourceID, pq.Array(targetIDs), time.Now().UTC()); err != nil {
		return fmt.Errorf("add %s reference: %w", spec.Name, err)
	}
	return nil
}

// Pull removes sourceID from spec.Field on every target.
func (r *RelationRepository) Pull(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, sourceID string, targetIDs []string) error {
	if !spec.Declared() {
		return fmt.Errorf("undeclared relation %q", spec.Name)
	}
	if len(targetIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %[1]s SET %[2]s = array_remove(%[2]s, $1), updated_at = $3 WHERE id = ANY($2) AND $1 = ANY(%[2]s)`, spec.Target, spec.Field)
	if _, err := orDB(r.db, exec).ExecContext(ctx, query, sourceID, pq.Array(targetIDs), time.Now().UTC()); err != nil {
		return fmt.Errorf("pull %s reference: %w", spec.Name, err)
	}
	return nil
}

// PullAll removes sourceID from spec.Field on every target row holding it.
func (r *RelationRepository) PullAll(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, sourceID string) error {
	if !spec.Declared() {
		return fmt.Errorf("undeclared relation %q", spec.Name)
	}
	query := fmt.Sprintf(`UPDATE %[1]s SET %[2]s = array_remove(%[2]s, $1), updated_at = $2 WHERE $1 = ANY(%[2]s)`, spec.Target, spec.Field)
	if _, err := orDB(r.db, exec).ExecContext(ctx, query, sourceID, time.Now().UTC()); err != nil {
		return fmt.Errorf("pull all %s references: %w", spec.Name, err)
	}
	return nil
}

// ExistingIDs returns the subset of ids present in the relation's target table.
func (r *RelationRepository) ExistingIDs(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, ids []string) ([]string, error) {
	if !spec.Declared() {
		return nil, fmt.Errorf("undeclared relation %q", spec.Name)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}
	var found []string
	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, spec.Target)
	if err := sqlx.SelectContext(ctx, orDB(r.db, exec), &found, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("check %s targets: %w", spec.Name, err)
	}
	return found, nil
}
