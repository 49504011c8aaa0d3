package app

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/yash1258/TeamSync-sub000/internal/access"
	"github.com/yash1258/TeamSync-sub000/internal/store"
	"github.com/yash1258/TeamSync-sub000/internal/util"
)

// fileTypeFor classifies an upload. The extension wins; the MIME type is
// only consulted when the extension says nothing.
func fileTypeFor(fileName, mimeType string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".pdf":
		return store.FileTypePDF
	case ".md", ".markdown":
		return store.FileTypeMarkdown
	case ".jsonl", ".ndjson":
		return store.FileTypeJSONL
	}

	mime := strings.ToLower(mimeType)
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	switch mime {
	case "application/pdf":
		return store.FileTypePDF
	case "text/markdown", "text/x-markdown":
		return store.FileTypeMarkdown
	case "application/jsonl", "application/x-ndjson", "application/jsonlines":
		return store.FileTypeJSONL
	}
	return store.FileTypeOther
}

func sanitizeFileName(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	if base == "" || base == "." {
		return "upload"
	}
	return base
}

func (s *Service) documentPayload(ctx context.Context, viewer store.Member, resolver *memberResolver, doc store.Document) (map[string]any, error) {
	versions, err := s.store.DocumentVersionCount(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":             doc.ID,
		"title":          doc.Title,
		"fileName":       doc.FileName,
		"description":    doc.Description,
		"tags":           tags,
		"fileType":       doc.FileType,
		"mimeType":       doc.MimeType,
		"sizeBytes":      doc.SizeBytes,
		"currentVersion": doc.CurrentVersion,
		"versionCount":   versions,
		"createdBy":      resolver.resolve(ctx, doc.CreatedBy),
		"canEdit":        access.CanEditDocument(viewer),
		"canDelete":      access.CanDeleteDocument(viewer, doc),
		"createdAt":      doc.CreatedAt,
		"updatedAt":      doc.UpdatedAt,
	}, nil
}

type UploadURLInput struct {
	FileName string `json:"fileName"`
}

// GenerateUploadURL is phase one of the two-phase upload: the client
// PUTs the bytes straight to storage, then registers them.
func (s *Service) GenerateUploadURL(ctx context.Context, session Session, input UploadURLInput) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if !access.CanEditDocument(caller) {
		return nil, errForbidden("Viewers cannot upload documents")
	}
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, errValidation("fileName is required")
	}

	key := fmt.Sprintf("documents/%s/%s", util.NewID("obj"), sanitizeFileName(fileName))
	uploadURL, err := s.blobs.UploadURL(ctx, key)
	if err != nil {
		return nil, errStorage("could not create upload URL")
	}
	return map[string]any{
		"uploadUrl":  uploadURL,
		"storageKey": key,
	}, nil
}

type CreateDocumentInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	FileName    string   `json:"fileName"`
	MimeType    string   `json:"mimeType"`
	SizeBytes   int64    `json:"sizeBytes"`
	StorageKey  string   `json:"storageKey"`
	Note        string   `json:"note"`
}

// CreateDocument is phase two: it verifies the uploaded object exists,
// then records the document at version 1.
func (s *Service) CreateDocument(ctx context.Context, session Session, input CreateDocumentInput) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if !access.CanEditDocument(caller) {
		return nil, errForbidden("Viewers cannot upload documents")
	}

	title := strings.TrimSpace(input.Title)
	fileName := strings.TrimSpace(input.FileName)
	if title == "" || fileName == "" || input.StorageKey == "" {
		return nil, errValidation("title, fileName, and storageKey are required")
	}

	exists, err := s.blobs.Exists(ctx, input.StorageKey)
	if err != nil {
		return nil, errStorage("could not verify uploaded object")
	}
	if !exists {
		return nil, errValidation("no uploaded object at that storage key")
	}

	doc := store.Document{
		ID:             util.NewID("doc"),
		Title:          title,
		FileName:       fileName,
		Description:    input.Description,
		Tags:           input.Tags,
		FileType:       fileTypeFor(fileName, input.MimeType),
		MimeType:       input.MimeType,
		SizeBytes:      input.SizeBytes,
		StorageKey:     input.StorageKey,
		CreatedBy:      caller.ID,
		CurrentVersion: 1,
	}
	first := store.DocumentVersion{
		ID:         util.NewID("ver"),
		DocumentID: doc.ID,
		Version:    1,
		StorageKey: input.StorageKey,
		FileName:   fileName,
		MimeType:   input.MimeType,
		SizeBytes:  input.SizeBytes,
		UploadedBy: caller.ID,
		Note:       strings.TrimSpace(input.Note),
	}
	if err := s.store.InsertDocument(ctx, doc, first); err != nil {
		return nil, err
	}

	s.search.Index(doc)
	s.logActivity(ctx, caller.ID, "uploaded document", doc.Title)

	created, err := s.store.GetDocument(ctx, doc.ID)
	if err != nil {
		created = doc
	}
	return s.documentPayload(ctx, caller, newMemberResolver(s.store), created)
}

type AddVersionInput struct {
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	SizeBytes  int64  `json:"sizeBytes"`
	StorageKey string `json:"storageKey"`
	Note       string `json:"note"`
}

func (s *Service) AddDocumentVersion(ctx context.Context, session Session, documentID string, input AddVersionInput) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if !access.CanEditDocument(caller) {
		return nil, errForbidden("Viewers cannot upload document versions")
	}

	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" || input.StorageKey == "" {
		return nil, errValidation("fileName and storageKey are required")
	}
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}

	exists, err := s.blobs.Exists(ctx, input.StorageKey)
	if err != nil {
		return nil, errStorage("could not verify uploaded object")
	}
	if !exists {
		return nil, errValidation("no uploaded object at that storage key")
	}

	version := store.DocumentVersion{
		ID:         util.NewID("ver"),
		DocumentID: documentID,
		StorageKey: input.StorageKey,
		FileName:   fileName,
		MimeType:   input.MimeType,
		SizeBytes:  input.SizeBytes,
		UploadedBy: caller.ID,
		Note:       strings.TrimSpace(input.Note),
	}
	if _, err := s.store.AddDocumentVersion(ctx, documentID, fileTypeFor(fileName, input.MimeType), version); err != nil {
		return nil, err
	}

	updated, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.search.Index(updated)
	s.logActivity(ctx, caller.ID, "uploaded new version of", updated.Title)
	return s.documentPayload(ctx, caller, newMemberResolver(s.store), updated)
}

func (s *Service) ListDocuments(ctx context.Context, session Session, query string) ([]map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	documents, err := s.search.Search(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}

	resolver := newMemberResolver(s.store)
	items := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		payload, err := s.documentPayload(ctx, caller, resolver, doc)
		if err != nil {
			return nil, err
		}
		items = append(items, payload)
	}
	return items, nil
}

func (s *Service) ListDocumentVersions(ctx context.Context, session Session, documentID string) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, session); err != nil {
		return nil, err
	}
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	versions, err := s.store.ListDocumentVersions(ctx, documentID)
	if err != nil {
		return nil, err
	}

	resolver := newMemberResolver(s.store)
	items := make([]map[string]any, 0, len(versions))
	for _, version := range versions {
		items = append(items, map[string]any{
			"id":         version.ID,
			"version":    version.Version,
			"fileName":   version.FileName,
			"mimeType":   version.MimeType,
			"sizeBytes":  version.SizeBytes,
			"uploadedBy": resolver.resolve(ctx, version.UploadedBy),
			"note":       version.Note,
			"createdAt":  version.CreatedAt,
		})
	}
	return items, nil
}

// DocumentDownloadURL returns a presigned GET for the current version,
// or for a named version that must belong to the document.
func (s *Service) DocumentDownloadURL(ctx context.Context, session Session, documentID, versionID string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session); err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	key, fileName := doc.StorageKey, doc.FileName
	if versionID != "" {
		version, err := s.store.GetDocumentVersion(ctx, documentID, versionID)
		if err != nil {
			return nil, err
		}
		key, fileName = version.StorageKey, version.FileName
	}

	url, err := s.blobs.DownloadURL(ctx, key, fileName)
	if err != nil {
		return nil, errStorage("could not create download URL")
	}
	return map[string]any{
		"downloadUrl": url,
		"fileName":    fileName,
	}, nil
}

type DocumentMetadataInput struct {
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
}

func (s *Service) UpdateDocumentMetadata(ctx context.Context, session Session, documentID string, input DocumentMetadataInput) (map[string]any, error) {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return nil, err
	}
	if !access.CanEditDocument(caller) {
		return nil, errForbidden("Viewers cannot edit documents")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errValidation("title cannot be empty")
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	description := doc.Description
	if input.Description != nil {
		description = *input.Description
	}
	tags := doc.Tags
	if input.Tags != nil {
		tags = *input.Tags
	}

	if err := s.store.UpdateDocumentMetadata(ctx, documentID, title, description, tags); err != nil {
		return nil, err
	}

	updated, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.search.Index(updated)
	return s.documentPayload(ctx, caller, newMemberResolver(s.store), updated)
}

// DeleteDocument removes blobs before rows. An orphaned blob after a
// crash is acceptable; a metadata row pointing at nothing is not.
func (s *Service) DeleteDocument(ctx context.Context, session Session, documentID string) error {
	caller, err := s.requireMember(ctx, session)
	if err != nil {
		return err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if !access.CanDeleteDocument(caller, doc) {
		return errForbidden("Only the creator or an admin can delete a document")
	}

	versions, err := s.store.ListDocumentVersions(ctx, documentID)
	if err != nil {
		return err
	}
	keys := map[string]struct{}{doc.StorageKey: {}}
	for _, version := range versions {
		keys[version.StorageKey] = struct{}{}
	}
	for key := range keys {
		if key == "" {
			continue
		}
		if err := s.blobs.Remove(ctx, key); err != nil {
			return errStorage("could not delete stored object")
		}
	}

	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.search.Delete(documentID)
	s.logActivity(ctx, caller.ID, "deleted document", doc.Title)
	return nil
}
