// Package resolver maps free-text entity mentions in player input to
// canonical entity ids via the alias table.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/storage"
)

// Resolver resolves mentions against the structured store. Matching is
// case-insensitive: exact alias match first, then exact canonical name.
type Resolver struct {
	store  storage.Driver
	logger *zap.Logger
}

func NewResolver(store storage.Driver, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
	}
}

// Resolve returns the canonical entity for a single mention. A miss is
// reported via storage.NotFoundError, not invented.
func (r *Resolver) Resolve(ctx context.Context, mention string) (*narrative.Entity, error) {
	mention = strings.TrimSpace(mention)
	if mention == "" {
		return nil, storage.NotFoundError{Kind: "entity", ID: mention}
	}

	entity, err := r.store.FindEntityByName(ctx, mention)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("resolving mention %q: %w", mention, err)
	}

	return entity, nil
}

// ResolveAll resolves a batch of mentions, skipping misses. Order of
// returned entities follows the order of the mentions; duplicate mentions
// resolve to a single entry.
func (r *Resolver) ResolveAll(ctx context.Context, mentions []string) ([]*narrative.Entity, error) {
	seen := make(map[int64]bool, len(mentions))
	entities := make([]*narrative.Entity, 0, len(mentions))

	for _, mention := range mentions {
		entity, err := r.Resolve(ctx, mention)
		if err != nil {
			if storage.IsNotFound(err) {
				r.logger.Debug("unresolved mention", zap.String("mention", mention))
				continue
			}
			return nil, err
		}

		if seen[entity.ID] {
			continue
		}
		seen[entity.ID] = true
		entities = append(entities, entity)
	}

	return entities, nil
}
