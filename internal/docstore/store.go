package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"shivuk/internal/services"
)

// ErrDocumentTooLarge marks writes rejected by the per-document size ceiling.
var ErrDocumentTooLarge = fmt.Errorf("%w: document exceeds the maximum allowed size", services.ErrStorageQuota)

// Document is one stored record as observed by a subscriber.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Query selects the ordering of a subscription. Ties keep insertion order.
type Query struct {
	OrderBy    string
	Descending bool
}

// SnapshotFunc receives each full snapshot, or the error that prevented one.
// Calls for a single subscription never overlap.
type SnapshotFunc func(docs []Document, err error)

// Subscription is a live snapshot stream. Close stops delivery; it is safe to
// call from inside the SnapshotFunc and more than once.
type Subscription interface {
	Close()
}

// Store is the remote document store contract the registries depend on.
type Store interface {
	Subscribe(collection string, q Query, fn SnapshotFunc) (Subscription, error)
	Create(ctx context.Context, collection string, fields any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// BatchDeleter is implemented by stores that can delete many documents atomically.
type BatchDeleter interface {
	DeleteMany(ctx context.Context, collection string, ids []string) (int, error)
}

// CollectionPath scopes a collection name under an identity namespace.
func CollectionPath(uid, name string) string {
	return "users/" + uid + "/" + name
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateCollection(collection string) error {
	if strings.TrimSpace(collection) == "" {
		return services.Wrap(services.ErrValidation, "docstore", "collection", "collection path is required", nil)
	}
	return nil
}

func validateQuery(q Query) error {
	if q.OrderBy != "" && !fieldNamePattern.MatchString(q.OrderBy) {
		return services.Wrap(services.ErrValidation, "docstore", "query", fmt.Sprintf("invalid order field %q", q.OrderBy), nil)
	}
	return nil
}

// DecodeAll decodes every document, setting the id through assign. Documents
// that fail to decode are reported through skip and left out.
func DecodeAll[T any](docs []Document, assign func(*T, string), skip func(Document, error)) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.Decode(&v); err != nil {
			if skip != nil {
				skip(doc, err)
			}
			continue
		}
		assign(&v, doc.ID)
		out = append(out, v)
	}
	return out
}
