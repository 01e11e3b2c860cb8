package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shoplane/commerce-core/internal/domain"
	"github.com/shoplane/commerce-core/internal/ports"
)

// collection binds one entity type to its document collection. Every typed
// repository in this package is a thin shell over these helpers, so revision
// handling and snapshot marshaling live in exactly one place.
type collection[T any] struct {
	store ports.DocumentStore
	name  string
	// key and partition derive the document identity from a snapshot.
	key       func(*T) string
	partition func(*T) string
	// revision reads/writes the opaque marker on the snapshot; the marker is
	// stored in its own column, never inside the body.
	revision func(*T) *domain.Revision
}

func (c collection[T]) get(ctx context.Context, id, partitionKey string) (T, error) {
	var zero T
	doc, err := c.store.Read(ctx, c.name, id, partitionKey)
	if err != nil {
		return zero, err
	}
	return c.decode(doc)
}

func (c collection[T]) create(ctx context.Context, entity T) (T, error) {
	var zero T
	body, err := json.Marshal(entity)
	if err != nil {
		return zero, fmt.Errorf("marshal %s snapshot: %w", c.name, err)
	}
	doc, err := c.store.Insert(ctx, ports.Document{
		Collection:   c.name,
		ID:           c.key(&entity),
		PartitionKey: c.partition(&entity),
		Body:         body,
	})
	if err != nil {
		return zero, err
	}
	*c.revision(&entity) = doc.Revision
	return entity, nil
}

// update applies a read-patch-replace cycle conditioned on the caller's
// expected revision. The snapshot handed to apply is a copy; a conflict means
// nothing was applied.
func (c collection[T]) update(ctx context.Context, id, partitionKey string, expected domain.Revision, apply func(*T) error) (T, error) {
	var zero T
	current, err := c.get(ctx, id, partitionKey)
	if err != nil {
		return zero, err
	}
	if *c.revision(&current) != expected {
		return zero, fmt.Errorf("%w: stale revision for %s/%s", domain.ErrConflict, c.name, id)
	}
	if err := apply(&current); err != nil {
		return zero, err
	}

	body, err := json.Marshal(current)
	if err != nil {
		return zero, fmt.Errorf("marshal %s snapshot: %w", c.name, err)
	}
	doc, err := c.store.Replace(ctx, ports.Document{
		Collection:   c.name,
		ID:           id,
		PartitionKey: c.partition(&current),
		Body:         body,
	}, expected)
	if err != nil {
		return zero, err
	}
	*c.revision(&current) = doc.Revision
	return current, nil
}

func (c collection[T]) delete(ctx context.Context, id, partitionKey string, expected domain.Revision) error {
	return c.store.Delete(ctx, c.name, id, partitionKey, expected)
}

func (c collection[T]) list(ctx context.Context, filter ports.Filter, pageToken string) ([]T, string, error) {
	page, err := c.store.Query(ctx, c.name, filter, pageToken)
	if err != nil {
		return nil, "", err
	}
	items := make([]T, 0, len(page.Items))
	for _, doc := range page.Items {
		item, err := c.decode(doc)
		if err != nil {
			return nil, "", err
		}
		items = append(items, item)
	}
	return items, page.NextPageToken, nil
}

// first returns the single match of a filtered query, or ErrNotFound.
func (c collection[T]) first(ctx context.Context, filter ports.Filter) (T, error) {
	var zero T
	filter.Limit = 1
	items, _, err := c.list(ctx, filter, "")
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, domain.ErrNotFound
	}
	return items[0], nil
}

func (c collection[T]) decode(doc ports.Document) (T, error) {
	var entity T
	if err := json.Unmarshal(doc.Body, &entity); err != nil {
		return entity, fmt.Errorf("unmarshal %s snapshot: %w", c.name, err)
	}
	*c.revision(&entity) = doc.Revision
	return entity, nil
}
