package store

import (
	"context"
	"encoding/json"
	"fmt"
)

const documentColumns = `id, title, file_name, description, tags, file_type, mime_type, size_bytes, storage_key, created_by, current_version, created_at, updated_at`

func scanDocument(row rowScanner) (Document, error) {
	var item Document
	var tags []byte
	err := row.Scan(&item.ID, &item.Title, &item.FileName, &item.Description, &tags, &item.FileType,
		&item.MimeType, &item.SizeBytes, &item.StorageKey, &item.CreatedBy, &item.CurrentVersion,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &item.Tags); err != nil {
			return Document{}, fmt.Errorf("decode document tags: %w", err)
		}
	}
	return item, nil
}

// InsertDocument creates the document row at version 1 together with its
// first version record.
func (s *PostgresStore) InsertDocument(ctx context.Context, item Document, first DocumentVersion) error {
	tags, err := encodeStrings(item.Tags)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, file_name, description, tags, file_type, mime_type, size_bytes, storage_key, created_by, current_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
	`, item.ID, item.Title, item.FileName, item.Description, tags, item.FileType,
		item.MimeType, item.SizeBytes, item.StorageKey, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO document_versions (id, document_id, version, storage_key, file_name, mime_type, size_bytes, uploaded_by, note)
		VALUES ($1, $2, 1, $3, $4, $5, $6, $7, $8)
	`, first.ID, item.ID, first.StorageKey, first.FileName, first.MimeType, first.SizeBytes,
		first.UploadedBy, first.Note)
	if err != nil {
		return fmt.Errorf("insert first version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document insert tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, documentID))
}

// SearchDocuments lists documents newest-updated first, optionally
// filtered by a case-insensitive substring over title, filename,
// description, and joined tags. This is the authoritative search
// semantics; Meilisearch only accelerates it.
func (s *PostgresStore) SearchDocuments(ctx context.Context, search string) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	args := []any{}
	if search != "" {
		query += `
		WHERE title ILIKE '%' || $1 || '%'
			OR file_name ILIKE '%' || $1 || '%'
			OR description ILIKE '%' || $1 || '%'
			OR tags::text ILIKE '%' || $1 || '%'`
		args = append(args, search)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// AddDocumentVersion appends the next version and mirrors its fields
// onto the document row in the same transaction, keeping current_version
// and the denormalized metadata consistent under concurrency.
func (s *PostgresStore) AddDocumentVersion(ctx context.Context, documentID, fileType string, version DocumentVersion) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin version tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx, `SELECT current_version FROM documents WHERE id=$1 FOR UPDATE`, documentID).Scan(&current)
	if err != nil {
		return 0, err
	}
	next := current + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO document_versions (id, document_id, version, storage_key, file_name, mime_type, size_bytes, uploaded_by, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, version.ID, documentID, next, version.StorageKey, version.FileName, version.MimeType,
		version.SizeBytes, version.UploadedBy, version.Note)
	if err != nil {
		return 0, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE documents
		SET file_name=$2, file_type=$3, mime_type=$4, size_bytes=$5, storage_key=$6, current_version=$7, updated_at=NOW()
		WHERE id=$1
	`, documentID, version.FileName, fileType, version.MimeType,
		version.SizeBytes, version.StorageKey, next)
	if err != nil {
		return 0, fmt.Errorf("mirror current version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit version tx: %w", err)
	}
	return next, nil
}

const versionColumns = `id, document_id, version, storage_key, file_name, mime_type, size_bytes, uploaded_by, note, created_at`

func scanVersion(row rowScanner) (DocumentVersion, error) {
	var item DocumentVersion
	err := row.Scan(&item.ID, &item.DocumentID, &item.Version, &item.StorageKey, &item.FileName,
		&item.MimeType, &item.SizeBytes, &item.UploadedBy, &item.Note, &item.CreatedAt)
	if err != nil {
		return DocumentVersion{}, err
	}
	return item, nil
}

// ListDocumentVersions returns versions newest first.
func (s *PostgresStore) ListDocumentVersions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM document_versions
		WHERE document_id=$1
		ORDER BY version DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentVersion, 0)
	for rows.Next() {
		item, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

// GetDocumentVersion looks a version up scoped to its document, so a
// version id from another document reads as not found.
func (s *PostgresStore) GetDocumentVersion(ctx context.Context, documentID, versionID string) (DocumentVersion, error) {
	return scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM document_versions WHERE id=$1 AND document_id=$2
	`, versionID, documentID))
}

func (s *PostgresStore) DocumentVersionCount(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_versions WHERE document_id=$1`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return count, nil
}

// DeleteDocument removes the version rows and the document row. Blob
// deletion happens before this call: orphaned blobs are recoverable,
// metadata pointing at deleted blobs is not.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_versions WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("delete versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document delete tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentMetadata(ctx context.Context, documentID, title, description string, tags []string) error {
	encoded, err := encodeStrings(tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE documents SET title=$2, description=$3, tags=$4, updated_at=NOW() WHERE id=$1
	`, documentID, title, description, encoded)
	if err != nil {
		return fmt.Errorf("update document metadata: %w", err)
	}
	return nil
}
