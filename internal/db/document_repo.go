package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"

	"advisy/internal/types"
)

// DocumentRepository provides data access for client documents. The
// AI-extracted text is stored zstd-compressed in a separate column and only
// hydrated when explicitly requested.
type DocumentRepository struct {
	db DBTX

	// decoderPool provides reusable zstd decoders to avoid repeated allocations.
	decoderPool sync.Pool
	encoder     *zstd.Encoder
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db DBTX) *DocumentRepository {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		// This should never fail with nil input and default options.
		panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
	}
	return &DocumentRepository{
		db:      db,
		encoder: encoder,
		decoderPool: sync.Pool{
			New: func() any {
				d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				if err != nil {
					panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
				}
				return d
			},
		},
	}
}

const documentColumns = `d.id, d.tenant_id, d.client_id, d.name, d.category,
	d.content_type, d.size_bytes, d.storage_path, d.created_at, d.deleted_at`

func scanDocument(row pgx.Row) (*types.Document, error) {
	var d types.Document
	err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.ClientID,
		&d.Name,
		&d.Category,
		&d.ContentType,
		&d.SizeBytes,
		&d.StoragePath,
		&d.CreatedAt,
		&d.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDocumentFromRows(rows pgx.Rows) (*types.Document, error) {
	return scanDocument(rows)
}

// Create inserts a new document record. ExtractedText, if present, is
// compressed before storage.
func (r *DocumentRepository) Create(ctx context.Context, d *types.Document) error {
	var compressed []byte
	if d.ExtractedText != "" {
		compressed = r.encoder.EncodeAll([]byte(d.ExtractedText), nil)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, tenant_id, client_id, name, category,
		 content_type, size_bytes, storage_path, extracted_text_zstd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))`,
		d.ID,
		d.TenantID,
		d.ClientID,
		d.Name,
		d.Category,
		d.ContentType,
		d.SizeBytes,
		d.StoragePath,
		compressed,
		nilIfZeroTime(d.CreatedAt),
	)
	if err != nil {
		return wrapDBError(err, "failed to create document")
	}
	return nil
}

// GetByID retrieves a document's metadata scoped to a tenant. The extracted
// text is not loaded; use GetExtractedText for that.
func (r *DocumentRepository) GetByID(ctx context.Context, tenantID, id string) (*types.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+`
		 FROM documents d
		 WHERE d.id = $1 AND d.tenant_id = $2 AND d.deleted_at IS NULL`,
		id, tenantID,
	)

	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDocument, "document not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve document")
	}
	return d, nil
}

// GetExtractedText loads and decompresses the extracted text for a document.
// Returns an empty string when no text was extracted.
func (r *DocumentRepository) GetExtractedText(ctx context.Context, tenantID, id string) (string, error) {
	var compressed []byte
	err := r.db.QueryRow(ctx,
		`SELECT extracted_text_zstd FROM documents
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		id, tenantID,
	).Scan(&compressed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundDocument, "document not found", nil)
		}
		return "", wrapDBError(err, "failed to load extracted text")
	}
	if len(compressed) == 0 {
		return "", nil
	}

	text, err := r.decompress(compressed)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to decompress extracted text for %s", id), err)
	}
	return string(text), nil
}

// SetExtractedText stores freshly extracted text, replacing any previous
// value. Called by the AI extraction pipeline after processing.
func (r *DocumentRepository) SetExtractedText(ctx context.Context, tenantID, id, text string) error {
	var compressed []byte
	if text != "" {
		compressed = r.encoder.EncodeAll([]byte(text), nil)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET extracted_text_zstd = $1
		 WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL`,
		compressed, id, tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to store extracted text")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDocument, "document not found", nil)
	}
	return nil
}

// ListByClient returns all documents for a client, newest first.
func (r *DocumentRepository) ListByClient(ctx context.Context, tenantID, clientID string) ([]*types.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+`
		 FROM documents d
		 WHERE d.tenant_id = $1 AND d.client_id = $2 AND d.deleted_at IS NULL
		 ORDER BY d.created_at DESC`,
		tenantID, clientID,
	)
	if err != nil {
		return nil, wrapDBError(err, "failed to list documents")
	}
	defer rows.Close()

	var docs []*types.Document
	for rows.Next() {
		d, scanErr := scanDocumentFromRows(rows)
		if scanErr != nil {
			return nil, wrapDBError(scanErr, "failed to scan document row")
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "error iterating document rows")
	}
	return docs, nil
}

// TotalStorageBytes sums the stored size of all live documents for a tenant.
// Feeds the storage consumption metric.
func (r *DocumentRepository) TotalStorageBytes(ctx context.Context, tenantID string) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0) FROM documents
		 WHERE tenant_id = $1 AND deleted_at IS NULL`,
		tenantID,
	).Scan(&total)
	if err != nil {
		return 0, wrapDBError(err, "failed to compute storage total")
	}
	return total, nil
}

// Delete performs a soft delete. The stored object is removed separately by
// the storage cleanup job.
func (r *DocumentRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET deleted_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		id, tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to delete document")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDocument, "document not found or already deleted", nil)
	}
	return nil
}

// decompress decompresses zstd-compressed data using pooled decoders.
func (r *DocumentRepository) decompress(data []byte) ([]byte, error) {
	decoder := r.decoderPool.Get().(*zstd.Decoder)
	defer r.decoderPool.Put(decoder)

	result, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return result, nil
}
