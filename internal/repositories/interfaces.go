package repositories

import (
	"context"
	"time"

	domain "github.com/tidynest/api/internal/domain"
)

// RepositoryError wraps low-level session-store failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository owns the active cart per session.
type CartRepository interface {
	GetCart(ctx context.Context, sessionID string) (domain.Cart, error)
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	DeleteCart(ctx context.Context, sessionID string) error
}

// SavedCartRepository stores named cart snapshots per session.
type SavedCartRepository interface {
	SaveSnapshot(ctx context.Context, sessionID string, snapshot domain.SavedCart) (domain.SavedCart, error)
	ListSnapshots(ctx context.Context, sessionID string) ([]domain.SavedCart, error)
	GetSnapshot(ctx context.Context, sessionID string, snapshotID string) (domain.SavedCart, error)
	DeleteSnapshot(ctx context.Context, sessionID string, snapshotID string) error
}

// PendingOpRepository keeps the ordered offline-operation queue per session.
type PendingOpRepository interface {
	Append(ctx context.Context, sessionID string, op domain.PendingOperation) error
	List(ctx context.Context, sessionID string) ([]domain.PendingOperation, error)
	Clear(ctx context.Context, sessionID string) error
}

// AutosaveRepository holds the debounced autosave slot per session.
type AutosaveRepository interface {
	PutAutosave(ctx context.Context, sessionID string, cart domain.Cart, savedAt time.Time) error
	GetAutosave(ctx context.Context, sessionID string) (domain.Cart, time.Time, error)
}
