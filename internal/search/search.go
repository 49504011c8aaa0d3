// Package search provides full-text document search backed by
// Meilisearch, with a SQL fallback when the index is unreachable.
package search

import (
	"context"
	"strings"

	"github.com/yash1258/TeamSync-sub000/internal/store"
)

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	FileName    string `json:"fileName"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
	CreatedBy   string `json:"createdBy"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// RecordFor builds the indexable record for a document row.
func RecordFor(doc store.Document) DocumentRecord {
	return DocumentRecord{
		ID:          doc.ID,
		Title:       doc.Title,
		FileName:    doc.FileName,
		Description: doc.Description,
		Tags:        strings.Join(doc.Tags, " "),
		CreatedBy:   doc.CreatedBy,
		UpdatedAt:   doc.UpdatedAt.Unix(),
	}
}

// DocumentSource is the slice of the data store the search service reads.
type DocumentSource interface {
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	SearchDocuments(ctx context.Context, search string) ([]store.Document, error)
}
