package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
)

type relationStore interface {
	AddToSet(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, sourceID string, targetIDs []string) error
	Pull(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, sourceID string, targetIDs []string) error
	PullAll(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, sourceID string) error
	ExistingIDs(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, ids []string) ([]string, error)
}

// RelationSynchronizer keeps the converse side of a many-to-many reference
// list in step with the source entity.
type RelationSynchronizer struct {
	store  relationStore
	logger *zap.Logger
}

// NewRelationSynchronizer constructs a RelationSynchronizer.
func NewRelationSynchronizer(store relationStore, logger *zap.Logger) *RelationSynchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationSynchronizer{store: store, logger: logger}
}

// Sync pulls sourceID from targets that left the list and adds it to targets
// that joined. Targets present in both lists are not touched. It runs on exec
// so the changes commit together with the source entity write.
func (s *RelationSynchronizer) Sync(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, sourceID string, oldIDs, newIDs []string) error {
	if !spec.Declared() {
		return appErrors.Internal(fmt.Errorf("undeclared relation %q", spec.Name), "failed to synchronise relation")
	}
	removed, added := diffIDs(oldIDs, newIDs)
	if len(removed) > 0 {
		if err := s.store.Pull(ctx, exec, spec, sourceID, removed); err != nil {
			return appErrors.Internal(err, "failed to detach related records")
		}
	}
	if len(added) > 0 {
		if err := s.store.AddToSet(ctx, exec, spec, sourceID, added); err != nil {
			return appErrors.Internal(err, "failed to attach related records")
		}
	}
	if len(removed) > 0 || len(added) > 0 {
		s.logger.Debug("relation synchronised",
			zap.String("relation", spec.Name),
			zap.String("source_id", sourceID),
			zap.Int("removed", len(removed)),
			zap.Int("added", len(added)),
		)
	}
	return nil
}

// Detach removes sourceID from every target that still references it,
// whatever the source's own list says.
func (s *RelationSynchronizer) Detach(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, sourceID string) error {
	if !spec.Declared() {
		return appErrors.Internal(fmt.Errorf("undeclared relation %q", spec.Name), "failed to synchronise relation")
	}
	if err := s.store.PullAll(ctx, exec, spec, sourceID); err != nil {
		return appErrors.Internal(err, "failed to detach related records")
	}
	return nil
}

// RequireTargets fails with a validation error when any id is missing from
// the relation's target table.
func (s *RelationSynchronizer) RequireTargets(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.store.ExistingIDs(ctx, exec, spec, ids)
	if err != nil {
		return appErrors.Internal(err, "failed to verify related records")
	}
	present := make(map[string]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown %s: %s", spec.Target, strings.Join(missing, ", ")))
	}
	return nil
}

// diffIDs returns ids only in old and ids only in new, each deduplicated.
func diffIDs(oldIDs, newIDs []string) (removed, added []string) {
	oldSet := make(map[string]struct{}, len(oldIDs))
	for _, id := range uniqueIDs(oldIDs) {
		oldSet[id] = struct{}{}
	}
	newUnique := uniqueIDs(newIDs)
	newSet := make(map[string]struct{}, len(newUnique))
	for _, id := range newUnique {
		newSet[id] = struct{}{}
		if _, ok := oldSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range uniqueIDs(oldIDs) {
		if _, ok := newSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return removed, added
}
