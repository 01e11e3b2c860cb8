package postgres

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/shoplane/commerce-core/internal/domain"
	"github.com/shoplane/commerce-core/internal/ports"
)

// DocumentStore is the Postgres-backed driver for the partitioned document
// store. It performs single attempts only; all retry policy belongs to the
// client wrapping it. Conditional writes rely on the revision column so a
// retried write can never clobber one that already succeeded.
type DocumentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Read(ctx context.Context, collection, id, partitionKey string) (ports.Document, error) {
	var rec documentModel
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Document{}, domain.ErrNotFound
		}
		return ports.Document{}, classifyError(err)
	}
	if partitionKey != "" && rec.PartitionKey != partitionKey {
		// A wrong partition key behaves like a miss, matching point-read
		// semantics of partitioned stores.
		return ports.Document{}, domain.ErrNotFound
	}
	return toPortDocument(rec), nil
}

func (s *DocumentStore) Insert(ctx context.Context, doc ports.Document) (ports.Document, error) {
	now := time.Now().UTC()
	rec := documentModel{
		Collection:   doc.Collection,
		DocID:        doc.ID,
		PartitionKey: doc.PartitionKey,
		Revision:     1,
		Body:         string(doc.Body),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ports.Document{}, fmt.Errorf("%w: %s/%s already exists", domain.ErrConflict, doc.Collection, doc.ID)
		}
		return ports.Document{}, classifyError(err)
	}
	return toPortDocument(rec), nil
}

func (s *DocumentStore) Replace(ctx context.Context, doc ports.Document, expected domain.Revision) (ports.Document, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&documentModel{}).
		Where("collection = ? AND doc_id = ? AND revision = ?", doc.Collection, doc.ID, int64(expected)).
		Updates(map[string]any{
			"body":       string(doc.Body),
			"revision":   gorm.Expr("revision + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return ports.Document{}, classifyError(res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the document vanished or the revision is stale; both are
		// Conflict for a conditional write, and nothing was applied.
		var exists int64
		s.db.WithContext(ctx).Model(&documentModel{}).
			Where("collection = ? AND doc_id = ?", doc.Collection, doc.ID).
			Count(&exists)
		if exists == 0 {
			return ports.Document{}, domain.ErrNotFound
		}
		return ports.Document{}, fmt.Errorf("%w: stale revision for %s/%s", domain.ErrConflict, doc.Collection, doc.ID)
	}

	var rec documentModel
	if err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", doc.Collection, doc.ID).
		Take(&rec).Error; err != nil {
		return ports.Document{}, classifyError(err)
	}
	return toPortDocument(rec), nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id, partitionKey string, expected domain.Revision) error {
	res := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ? AND revision = ?", collection, id, int64(expected)).
		Delete(&documentModel{})
	if res.Error != nil {
		return classifyError(res.Error)
	}
	if res.RowsAffected == 0 {
		var exists int64
		s.db.WithContext(ctx).Model(&documentModel{}).
			Where("collection = ? AND doc_id = ?", collection, id).
			Count(&exists)
		if exists == 0 {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%w: stale revision for %s/%s", domain.ErrConflict, collection, id)
	}
	return nil
}

func (s *DocumentStore) Query(ctx context.Context, collection string, filter ports.Filter, pageToken string) (ports.Page, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := s.db.WithContext(ctx).
		Model(&documentModel{}).
		Where("collection = ?", collection)
	if filter.PartitionKey != "" {
		q = q.Where("partition_key = ?", filter.PartitionKey)
	}
	for field, value := range filter.Equals {
		q = q.Where("body ->> ? = ?", field, value)
	}

	if pageToken != "" {
		cursor, err := decodePageToken(pageToken)
		if err != nil {
			return ports.Page{}, fmt.Errorf("%w: bad page token", domain.ErrInvalidInput)
		}
		q = q.Where("(created_at, doc_id) > (?, ?)", cursor.CreatedAt, cursor.DocID)
	}

	var rows []documentModel
	// One extra row decides whether a continuation token is needed without a
	// second count query.
	if err := q.Order("created_at ASC, doc_id ASC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return ports.Page{}, classifyError(err)
	}

	page := ports.Page{}
	more := len(rows) > limit
	if more {
		rows = rows[:limit]
	}
	for _, row := range rows {
		page.Items = append(page.Items, toPortDocument(row))
	}
	if more && len(rows) > 0 {
		last := rows[len(rows)-1]
		page.NextPageToken = encodePageToken(pageCursor{CreatedAt: last.CreatedAt, DocID: last.DocID})
	}
	return page, nil
}

type pageCursor struct {
	CreatedAt time.Time `json:"c"`
	DocID     string    `json:"d"`
}

func encodePageToken(c pageCursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodePageToken(token string) (pageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return pageCursor{}, err
	}
	var c pageCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return pageCursor{}, err
	}
	return c, nil
}

func toPortDocument(rec documentModel) ports.Document {
	return ports.Document{
		Collection:   rec.Collection,
		ID:           rec.DocID,
		PartitionKey: rec.PartitionKey,
		Revision:     domain.Revision(rec.Revision),
		Body:         []byte(rec.Body),
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// classifyError maps capacity-exhaustion signals from the database onto the
// domain throttle type so the store client can apply backoff. Everything else
// passes through unmodified.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too many connections"),
		strings.Contains(msg, "sqlstate 53300"),
		strings.Contains(msg, "sqlstate 53200"),
		strings.Contains(msg, "lock timeout"),
		strings.Contains(msg, "sqlstate 55p03"):
		return &domain.ThrottleError{Cause: err}
	case strings.Contains(msg, "sqlstate 40001"),
		strings.Contains(msg, "deadlock detected"):
		// Serialization failures resolve on retry the same way throttles do.
		return &domain.ThrottleError{Cause: err}
	default:
		return err
	}
}
