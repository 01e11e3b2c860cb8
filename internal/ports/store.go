package ports

import (
	"context"
	"time"

	"github.com/shoplane/commerce-core/internal/domain"
)

// Document is the store-neutral persisted record. Body is the JSON snapshot of
// one entity; Revision advances strictly on every successful write.
type Document struct {
	Collection   string
	ID           string
	PartitionKey string
	Revision     domain.Revision
	Body         []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Filter matches documents on body-field equality. Fields map onto indexed
// JSON paths in the driver; callers only ever filter on fields they own.
type Filter struct {
	PartitionKey string
	Equals       map[string]string
	Limit        int
}

// Page is one bounded query result. NextPageToken is opaque; an empty token
// means the result set is exhausted.
type Page struct {
	Items         []Document
	NextPageToken string
}

// DocumentStore is the raw driver contract for the partitioned document
// store: point reads, conditional writes, paginated queries. Drivers signal
// capacity exhaustion with *domain.ThrottleError and never retry internally;
// retry policy lives in the store client that wraps this interface.
type DocumentStore interface {
	// Read returns the document or domain.ErrNotFound.
	Read(ctx context.Context, collection, id, partitionKey string) (Document, error)
	// Insert creates the document at revision 1. An existing id in the same
	// collection yields domain.ErrConflict.
	Insert(ctx context.Context, doc Document) (Document, error)
	// Replace overwrites the body only when the stored revision equals
	// expected; otherwise domain.ErrConflict with nothing applied.
	Replace(ctx context.Context, doc Document, expected domain.Revision) (Document, error)
	// Delete removes the document conditioned on expected revision.
	Delete(ctx context.Context, collection, id, partitionKey string, expected domain.Revision) error
	// Query returns one bounded page. Implementations never materialize the
	// full result set; callers follow NextPageToken until it is empty.
	Query(ctx context.Context, collection string, filter Filter, pageToken string) (Page, error)
}
