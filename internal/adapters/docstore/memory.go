package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shoplane/commerce-core/internal/domain"
	"github.com/shoplane/commerce-core/internal/ports"
)

// MemoryStore is an in-process DocumentStore with the same conditional-write
// semantics as the Postgres driver. It backs unit tests and local runs that
// have no database; it is not meant for production traffic.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]memoryDoc
	seq  int64

	// Hook, when set, runs before every operation and can inject a failure.
	// Tests use it to simulate throttling and outages.
	Hook func(operation, collection string) error
}

type memoryDoc struct {
	doc  ports.Document
	sort int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]memoryDoc)}
}

var _ ports.DocumentStore = (*MemoryStore)(nil)

func memKey(collection, id string) string { return collection + "/" + id }

func (s *MemoryStore) hook(operation, collection string) error {
	if s.Hook != nil {
		return s.Hook(operation, collection)
	}
	return nil
}

func (s *MemoryStore) Read(_ context.Context, collection, id, partitionKey string) (ports.Document, error) {
	if err := s.hook("read", collection); err != nil {
		return ports.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.docs[memKey(collection, id)]
	if !ok {
		return ports.Document{}, domain.ErrNotFound
	}
	if partitionKey != "" && entry.doc.PartitionKey != partitionKey {
		return ports.Document{}, domain.ErrNotFound
	}
	return entry.doc, nil
}

func (s *MemoryStore) Insert(_ context.Context, doc ports.Document) (ports.Document, error) {
	if err := s.hook("insert", doc.Collection); err != nil {
		return ports.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(doc.Collection, doc.ID)
	if _, exists := s.docs[key]; exists {
		return ports.Document{}, fmt.Errorf("%w: %s/%s already exists", domain.ErrConflict, doc.Collection, doc.ID)
	}
	now := time.Now().UTC()
	doc.Revision = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.seq++
	s.docs[key] = memoryDoc{doc: doc, sort: s.seq}
	return doc, nil
}

func (s *MemoryStore) Replace(_ context.Context, doc ports.Document, expected domain.Revision) (ports.Document, error) {
	if err := s.hook("replace", doc.Collection); err != nil {
		return ports.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(doc.Collection, doc.ID)
	entry, ok := s.docs[key]
	if !ok {
		return ports.Document{}, domain.ErrNotFound
	}
	if entry.doc.Revision != expected {
		return ports.Document{}, fmt.Errorf("%w: stale revision for %s/%s", domain.ErrConflict, doc.Collection, doc.ID)
	}
	entry.doc.PartitionKey = doc.PartitionKey
	entry.doc.Body = doc.Body
	entry.doc.Revision++
	entry.doc.UpdatedAt = time.Now().UTC()
	s.docs[key] = entry
	return entry.doc, nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id, partitionKey string, expected domain.Revision) error {
	if err := s.hook("delete", collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(collection, id)
	entry, ok := s.docs[key]
	if !ok {
		return domain.ErrNotFound
	}
	if partitionKey != "" && entry.doc.PartitionKey != partitionKey {
		return domain.ErrNotFound
	}
	if entry.doc.Revision != expected {
		return fmt.Errorf("%w: stale revision for %s/%s", domain.ErrConflict, collection, id)
	}
	delete(s.docs, key)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, filter ports.Filter, pageToken string) (ports.Page, error) {
	if err := s.hook("query", collection); err != nil {
		return ports.Page{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]memoryDoc, 0)
	for _, entry := range s.docs {
		if entry.doc.Collection != collection {
			continue
		}
		if filter.PartitionKey != "" && entry.doc.PartitionKey != filter.PartitionKey {
			continue
		}
		if !bodyMatches(entry.doc.Body, filter.Equals) {
			continue
		}
		matches = append(matches, entry)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].sort < matches[j].sort })

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return ports.Page{}, fmt.Errorf("%w: malformed page token", domain.ErrInvalidInput)
		}
		offset = n
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var page ports.Page
	for i := offset; i < len(matches) && len(page.Items) < limit; i++ {
		page.Items = append(page.Items, matches[i].doc)
	}
	if next := offset + len(page.Items); next < len(matches) {
		page.NextPageToken = strconv.Itoa(next)
	}
	return page, nil
}

func bodyMatches(body []byte, equals map[string]string) bool {
	if len(equals) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	for field, want := range equals {
		got, ok := fields[field]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}
