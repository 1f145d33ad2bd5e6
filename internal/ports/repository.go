package ports

import (
	"context"

	"brokerBot/internal/domain"
)

// PositionRepository journals closed positions so statistics survive a restart.
type PositionRepository interface {
	// SaveClosed inserts or replaces a closed position keyed by its ID.
	SaveClosed(ctx context.Context, pos *domain.Position) error
	// FindClosedByStrategy returns the closed positions of a strategy ordered by close date.
	FindClosedByStrategy(ctx context.Context, strategyID string) ([]*domain.Position, error)
	// Close releases the underlying storage.
	Close() error
}
