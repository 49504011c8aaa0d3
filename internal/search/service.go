package search

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/yash1258/TeamSync-sub000/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// the SQL substring scan when the index is unavailable.
type Service struct {
	meili *Meili
	db    DocumentSource
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured; every query then goes straight to SQL.
func NewService(meili *Meili, db DocumentSource) *Service {
	return &Service{meili: meili, db: db}
}

// Search returns documents matching the query. An empty query lists
// everything, newest-updated first.
func (s *Service) Search(ctx context.Context, query string) ([]store.Document, error) {
	if query != "" && s.meili != nil && s.meili.Healthy() {
		ids, err := s.meili.Search(query, 50)
		if err == nil {
			return s.hydrate(ctx, ids)
		}
		log.Printf("search: meilisearch error, falling back to sql: %v", err)
	}
	return s.db.SearchDocuments(ctx, query)
}

// hydrate resolves index hits against the database, dropping hits whose
// rows have since been deleted.
func (s *Service) hydrate(ctx context.Context, ids []string) ([]store.Document, error) {
	documents := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.db.GetDocument(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}
	return documents, nil
}

// Index pushes a document into Meilisearch (fire-and-forget).
func (s *Service) Index(doc store.Document) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFor(doc)
	go func() {
		if err := s.meili.IndexDocument(record); err != nil {
			log.Printf("search: index document %s: %v", record.ID, err)
		}
	}()
}

// Delete removes a document from the search index (fire-and-forget).
func (s *Service) Delete(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteDocument(id); err != nil {
			log.Printf("search: delete document %s: %v", id, err)
		}
	}()
}

// ReindexAll reads every document from the database and pushes the set
// to Meilisearch. Called at startup when the index is healthy.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	documents, err := s.db.SearchDocuments(ctx, "")
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	records := make([]DocumentRecord, 0, len(documents))
	for _, doc := range documents {
		records = append(records, RecordFor(doc))
	}
	if err := s.meili.IndexDocuments(records); err != nil {
		log.Printf("search: reindex documents: %v", err)
	}
}
