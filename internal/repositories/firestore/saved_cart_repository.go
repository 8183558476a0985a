package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/tidynest/api/internal/domain"
	pfirestore "github.com/tidynest/api/internal/platform/firestore"
)

const savedCartCollection = "saved_carts"

// SavedCartRepository persists named cart snapshots in Firestore so a
// returning visitor can restore a cart after the in-memory session expires.
type SavedCartRepository struct {
	base *pfirestore.BaseRepository[savedCartDocument]
}

type savedCartDocument struct {
	SessionID string             `firestore:"sessionId"`
	Name      string             `firestore:"name"`
	Items     []cartItemDocument `firestore:"items"`
	SavedAt   time.Time          `firestore:"savedAt"`
}

type cartItemDocument struct {
	ID          string         `firestore:"id"`
	Name        string         `firestore:"name"`
	UnitPrice   int64          `firestore:"unitPrice"`
	Quantity    int            `firestore:"quantity"`
	ServiceType string         `firestore:"serviceType"`
	Address     string         `firestore:"address"`
	Frequency   string         `firestore:"frequency"`
	Image       string         `firestore:"image,omitempty"`
	Recurring   bool           `firestore:"recurring"`
	Metadata    map[string]any `firestore:"metadata,omitempty"`
	AddedAt     time.Time      `firestore:"addedAt"`
	UpdatedAt   *time.Time     `firestore:"updatedAt,omitempty"`
}

// NewSavedCartRepository constructs a Firestore-backed saved cart repository.
func NewSavedCartRepository(provider *pfirestore.Provider) (*SavedCartRepository, error) {
	if provider == nil {
		return nil, errors.New("saved cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[savedCartDocument](provider, savedCartCollection, nil, nil)
	return &SavedCartRepository{base: base}, nil
}

// SaveSnapshot stores the snapshot under a composite document ID so lookups
// stay scoped to the owning session.
func (r *SavedCartRepository) SaveSnapshot(ctx context.Context, sessionID string, snapshot domain.SavedCart) (domain.SavedCart, error) {
	if r == nil || r.base == nil {
		return domain.SavedCart{}, errors.New("saved cart repository not initialised")
	}
	sessionID = strings.TrimSpace(sessionID)
	snapshotID := strings.TrimSpace(snapshot.ID)
	if sessionID == "" || snapshotID == "" {
		return domain.SavedCart{}, errors.New("saved cart repository: session and snapshot ids are required")
	}

	doc := savedCartDocument{
		SessionID: sessionID,
		Name:      strings.TrimSpace(snapshot.Name),
		Items:     encodeItems(snapshot.Items),
		SavedAt:   snapshot.SavedAt.UTC(),
	}
	if doc.SavedAt.IsZero() {
		doc.SavedAt = time.Now().UTC()
	}

	if _, err := r.base.Set(ctx, documentID(sessionID, snapshotID), doc); err != nil {
		return domain.SavedCart{}, err
	}

	saved := snapshot
	saved.Name = doc.Name
	saved.SavedAt = doc.SavedAt
	return saved, nil
}

// ListSnapshots returns the session's snapshots ordered newest first.
func (r *SavedCartRepository) ListSnapshots(ctx context.Context, sessionID string) ([]domain.SavedCart, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("saved cart repository not initialised")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("saved cart repository: session id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("sessionId", "==", sessionID)
	})
	if err != nil {
		return nil, err
	}

	snapshots := make([]domain.SavedCart, 0, len(docs))
	for _, doc := range docs {
		snapshots = append(snapshots, decodeSnapshot(sessionID, doc))
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].SavedAt.After(snapshots[j].SavedAt)
	})
	return snapshots, nil
}

// GetSnapshot fetches a single snapshot owned by the session.
func (r *SavedCartRepository) GetSnapshot(ctx context.Context, sessionID string, snapshotID string) (domain.SavedCart, error) {
	if r == nil || r.base == nil {
		return domain.SavedCart{}, errors.New("saved cart repository not initialised")
	}
	sessionID = strings.TrimSpace(sessionID)
	snapshotID = strings.TrimSpace(snapshotID)
	if sessionID == "" || snapshotID == "" {
		return domain.SavedCart{}, errors.New("saved cart repository: session and snapshot ids are required")
	}

	doc, err := r.base.Get(ctx, documentID(sessionID, snapshotID))
	if err != nil {
		return domain.SavedCart{}, err
	}
	return decodeSnapshot(sessionID, doc), nil
}

// DeleteSnapshot removes the snapshot document.
func (r *SavedCartRepository) DeleteSnapshot(ctx context.Context, sessionID string, snapshotID string) error {
	if r == nil || r.base == nil {
		return errors.New("saved cart repository not initialised")
	}
	sessionID = strings.TrimSpace(sessionID)
	snapshotID = strings.TrimSpace(snapshotID)
	if sessionID == "" || snapshotID == "" {
		return errors.New("saved cart repository: session and snapshot ids are required")
	}

	ref, err := r.base.DocumentRef(ctx, documentID(sessionID, snapshotID))
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("saved_carts.delete", err)
	}
	return nil
}

func documentID(sessionID, snapshotID string) string {
	return sessionID + ":" + snapshotID
}

func decodeSnapshot(sessionID string, doc pfirestore.Document[savedCartDocument]) domain.SavedCart {
	snapshotID := strings.TrimPrefix(doc.ID, sessionID+":")
	return domain.SavedCart{
		ID:      snapshotID,
		Name:    doc.Data.Name,
		Items:   decodeItems(doc.Data.Items),
		SavedAt: doc.Data.SavedAt,
	}
}

func encodeItems(items []domain.CartItem) []cartItemDocument {
	if len(items) == 0 {
		return nil
	}
	out := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		out = append(out, cartItemDocument{
			ID:          item.ID,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			ServiceType: item.ServiceType,
			Address:     item.Address,
			Frequency:   string(item.Frequency),
			Image:       item.Image,
			Recurring:   item.Recurring,
			Metadata:    item.Metadata,
			AddedAt:     item.AddedAt.UTC(),
			UpdatedAt:   item.UpdatedAt,
		})
	}
	return out
}

func decodeItems(items []cartItemDocument) []domain.CartItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.CartItem{
			ID:          item.ID,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			ServiceType: item.ServiceType,
			Address:     item.Address,
			Frequency:   domain.Frequency(item.Frequency),
			Image:       item.Image,
			Recurring:   item.Recurring,
			Metadata:    item.Metadata,
			AddedAt:     item.AddedAt,
			UpdatedAt:   item.UpdatedAt,
		})
	}
	return out
}
