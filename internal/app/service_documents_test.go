package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/yash1258/TeamSync-sub000/internal/store"
)

func TestFileTypeFor(t *testing.T) {
	cases := []struct {
		fileName string
		mimeType string
		want     string
	}{
		{"report.pdf", "", "pdf"},
		{"Report.PDF", "application/octet-stream", "pdf"},
		{"notes.md", "", "markdown"},
		{"notes.markdown", "", "markdown"},
		{"export.jsonl", "", "jsonl"},
		{"export.ndjson", "", "jsonl"},
		{"blob", "application/pdf", "pdf"},
		{"blob", "text/markdown; charset=utf-8", "markdown"},
		{"blob", "application/x-ndjson", "jsonl"},
		{"photo.png", "image/png", "other"},
		{"archive.zip", "", "other"},
		{"", "", "other"},
	}
	for _, tc := range cases {
		if got := fileTypeFor(tc.fileName, tc.mimeType); got != tc.want {
			t.Errorf("fileTypeFor(%q, %q) = %q, want %q", tc.fileName, tc.mimeType, got, tc.want)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\x\notes.md`, "notes.md"},
		{"my report (final).pdf", "my-report--final-.pdf"},
		{"", "upload"},
	}
	for _, tc := range cases {
		if got := sanitizeFileName(tc.in); got != tc.want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGenerateUploadURL(t *testing.T) {
	ctx := context.Background()
	member := rosterMember("jordan", "member")
	viewer := rosterMember("sage", "viewer")

	t.Run("viewers cannot upload", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, member, viewer)
		svc, _, _ := newTestService(fake)

		_, err := svc.GenerateUploadURL(ctx, sessionFor(viewer), UploadURLInput{FileName: "report.pdf"})
		assertDomainError(t, err, "FORBIDDEN")
	})

	t.Run("returns a scoped key", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, member)
		svc, _, _ := newTestService(fake)

		payload, err := svc.GenerateUploadURL(ctx, sessionFor(member), UploadURLInput{FileName: "../report final.pdf"})
		if err != nil {
			t.Fatalf("GenerateUploadURL: %v", err)
		}
		key, _ := payload["storageKey"].(string)
		if !strings.HasPrefix(key, "documents/") || !strings.HasSuffix(key, "report-final.pdf") {
			t.Fatalf("unexpected storage key %q", key)
		}
		if payload["uploadUrl"] == "" {
			t.Fatal("missing upload URL")
		}
	})
}

func TestCreateDocument(t *testing.T) {
	ctx := context.Background()
	member := rosterMember("jordan", "member")

	t.Run("rejects registration without an uploaded object", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, member)
		svc, blobs, _ := newTestService(fake)
		blobs.existsFn = func(string) (bool, error) { return false, nil }

		_, err := svc.CreateDocument(ctx, sessionFor(member), CreateDocumentInput{
			Title: "Report", FileName: "report.pdf", StorageKey: "documents/x/report.pdf",
		})
		assertDomainError(t, err, "VALIDATION_ERROR")
	})

	t.Run("storage probe failure is a storage error", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, member)
		svc, blobs, _ := newTestService(fake)
		blobs.existsFn = func(string) (bool, error) { return false, errors.New("minio down") }

		_, err := svc.CreateDocument(ctx, sessionFor(member), CreateDocumentInput{
			Title: "Report", FileName: "report.pdf", StorageKey: "documents/x/report.pdf",
		})
		assertDomainError(t, err, "STORAGE_ERROR")
	})

	t.Run("records version 1 and indexes", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, member)
		var insertedDoc store.Document
		var insertedVersion store.DocumentVersion
		fake.insertDocumentFn = func(_ context.Context, doc store.Document, first store.DocumentVersion) error {
			insertedDoc, insertedVersion = doc, first
			return nil
		}
		svc, _, index := newTestService(fake)

		_, err := svc.CreateDocument(ctx, sessionFor(member), CreateDocumentInput{
			Title: " Report ", FileName: "report.pdf", MimeType: "application/pdf",
			SizeBytes: 1024, StorageKey: "documents/x/report.pdf", Note: "initial",
		})
		if err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}
		if insertedDoc.Title != "Report" || insertedDoc.FileType != "pdf" || insertedDoc.CurrentVersion != 1 {
			t.Fatalf("document not built correctly: %+v", insertedDoc)
		}
		if insertedVersion.Version != 1 || insertedVersion.DocumentID != insertedDoc.ID || insertedVersion.Note != "initial" {
			t.Fatalf("first version not built correctly: %+v", insertedVersion)
		}
		if len(index.indexed) != 1 || index.indexed[0] != insertedDoc.ID {
			t.Fatalf("document not indexed: %+v", index.indexed)
		}
		activity := fake.recordedActivity()
		if len(activity) != 1 || activity[0].Action != "uploaded document" {
			t.Fatalf("expected uploaded-document activity, got %+v", activity)
		}
	})
}

func TestAddDocumentVersion(t *testing.T) {
	ctx := context.Background()
	member := rosterMember("jordan", "member")
	doc := store.Document{ID: "doc-1", Title: "Report", FileName: "report.pdf", StorageKey: "documents/a/report.pdf", CreatedBy: member.ID, CurrentVersion: 2}

	t.Run("unknown document surfaces not found", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, member)
		svc, _, _ := newTestService(fake)

		_, err := svc.AddDocumentVersion(ctx, sessionFor(member), "doc-ghost", AddVersionInput{
			FileName: "report.pdf", StorageKey: "documents/b/report.pdf",
		})
		status, code, _, _ := mapError(err)
		if status != 404 || code != "NOT_FOUND" {
			t.Fatalf("expected 404 NOT_FOUND, got %d %s", status, code)
		}
	})

	t.Run("requires an uploaded object", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, member)
		fake.getDocumentFn = func(context.Context, string) (store.Document, error) { return doc, nil }
		svc, blobs, _ := newTestService(fake)
		blobs.existsFn = func(string) (bool, error) { return false, nil }

		_, err := svc.AddDocumentVersion(ctx, sessionFor(member), doc.ID, AddVersionInput{
			FileName: "report.pdf", StorageKey: "documents/b/report.pdf",
		})
		assertDomainError(t, err, "VALIDATION_ERROR")
	})

	t.Run("appends and reindexes", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, member)
		fake.getDocumentFn = func(context.Context, string) (store.Document, error) { return doc, nil }
		var appended store.DocumentVersion
		fake.addDocumentVersionFn = func(_ context.Context, documentID, fileType string, version store.DocumentVersion) (int, error) {
			if documentID != doc.ID || fileType != "pdf" {
				t.Fatalf("wrong append args: %s %s", documentID, fileType)
			}
			appended = version
			return 3, nil
		}
		svc, _, index := newTestService(fake)

		_, err := svc.AddDocumentVersion(ctx, sessionFor(member), doc.ID, AddVersionInput{
			FileName: "report.pdf", MimeType: "application/pdf", StorageKey: "documents/b/report.pdf",
		})
		if err != nil {
			t.Fatalf("AddDocumentVersion: %v", err)
		}
		if appended.UploadedBy != member.ID || appended.StorageKey != "documents/b/report.pdf" {
			t.Fatalf("version not built correctly: %+v", appended)
		}
		if len(index.indexed) != 1 {
			t.Fatalf("document not reindexed: %+v", index.indexed)
		}
		activity := fake.recordedActivity()
		if len(activity) != 1 || activity[0].Action != "uploaded new version of" {
			t.Fatalf("expected new-version activity, got %+v", activity)
		}
	})
}

func TestUpdateDocumentMetadata(t *testing.T) {
	ctx := context.Background()
	member := rosterMember("jordan", "member")
	doc := store.Document{ID: "doc-1", Title: "Report", Description: "old", Tags: []string{"finance"}, CreatedBy: member.ID}

	t.Run("blank title rejected", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, member)
		svc, _, _ := newTestService(fake)

		_, err := svc.UpdateDocumentMetadata(ctx, sessionFor(member), doc.ID, DocumentMetadataInput{Title: "  "})
		assertDomainError(t, err, "VALIDATION_ERROR")
	})

	t.Run("unset fields keep their values", func(t *testing.T) {
		fake := &fakeStore{}
		seedRoster(fake, member)
		fake.getDocumentFn = func(context.Context, string) (store.Document, error) { return doc, nil }
		var gotDescription string
		var gotTags []string
		fake.updateDocumentMetaFn = func(_ context.Context, _, _, description string, tags []string) error {
			gotDescription, gotTags = description, tags
			return nil
		}
		svc, _, _ := newTestService(fake)

		_, err := svc.UpdateDocumentMetadata(ctx, sessionFor(member), doc.ID, DocumentMetadataInput{Title: "Renamed"})
		if err != nil {
			t.Fatalf("UpdateDocumentMetadata: %v", err)
		}
		if gotDescription != "old" || len(gotTags) != 1 || gotTags[0] != "finance" {
			t.Fatalf("unset fields overwritten: %q %v", gotDescription, gotTags)
		}
	})
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	admin := rosterMember("casey", "admin")
	creator := rosterMember("jordan", "member")
	other := rosterMember("riley", "member")
	doc := store.Document{ID: "doc-1", Title: "Report", StorageKey: "documents/c/report.pdf", CreatedBy: creator.ID}

	versions := []store.DocumentVersion{
		{ID: "ver-1", DocumentID: doc.ID, Version: 1, StorageKey: "documents/a/report.pdf"},
		{ID: "ver-2", DocumentID: doc.ID, Version: 2, StorageKey: "documents/b/report.pdf"},
		{ID: "ver-3", DocumentID: doc.ID, Version: 3, StorageKey: "documents/c/report.pdf"},
	}

	newFake := func() *fakeStore {
		fake := &fakeStore{}
		seedRoster(fake, admin, creator, other)
		fake.getDocumentFn = func(context.Context, string) (store.Document, error) { return doc, nil }
		fake.listDocumentVersionsFn = func(context.Context, string) ([]store.DocumentVersion, error) { return versions, nil }
		return fake
	}

	t.Run("only the creator or an admin", func(t *testing.T) {
		svc, _, _ := newTestService(newFake())
		err := svc.DeleteDocument(ctx, sessionFor(other), doc.ID)
		assertDomainError(t, err, "FORBIDDEN")
	})

	t.Run("removes each blob once", func(t *testing.T) {
		fake := newFake()
		svc, blobs, index := newTestService(fake)

		if err := svc.DeleteDocument(ctx, sessionFor(creator), doc.ID); err != nil {
			t.Fatalf("DeleteDocument: %v", err)
		}
		removed := blobs.removedKeys()
		sort.Strings(removed)
		want := []string{"documents/a/report.pdf", "documents/b/report.pdf", "documents/c/report.pdf"}
		if len(removed) != len(want) {
			t.Fatalf("expected %d unique keys removed, got %v", len(want), removed)
		}
		for i := range want {
			if removed[i] != want[i] {
				t.Fatalf("expected keys %v, got %v", want, removed)
			}
		}
		if len(index.deleted) != 1 || index.deleted[0] != doc.ID {
			t.Fatalf("document not dropped from the index: %+v", index.deleted)
		}
	})

	t.Run("blob failure aborts before the rows go", func(t *testing.T) {
		fake := newFake()
		fake.deleteDocumentFn = func(context.Context, string) error {
			t.Fatal("rows should not be deleted when a blob removal fails")
			return nil
		}
		svc, blobs, _ := newTestService(fake)
		blobs.removeFn = func(string) error { return errors.New("minio down") }

		err := svc.DeleteDocument(ctx, sessionFor(creator), doc.ID)
		assertDomainError(t, err, "STORAGE_ERROR")
	})
}

func TestDocumentDownloadURL(t *testing.T) {
	ctx := context.Background()
	member := rosterMember("jordan", "member")
	doc := store.Document{ID: "doc-1", Title: "Report", FileName: "report-v3.pdf", StorageKey: "documents/c/report.pdf", CreatedBy: member.ID}

	fake := &fakeStore{}
	seedRoster(fake, member)
	fake.getDocumentFn = func(context.Context, string) (store.Document, error) { return doc, nil }
	fake.getDocumentVersionFn = func(_ context.Context, documentID, versionID string) (store.DocumentVersion, error) {
		if documentID == doc.ID && versionID == "ver-1" {
			return store.DocumentVersion{ID: "ver-1", DocumentID: doc.ID, Version: 1, StorageKey: "documents/a/report.pdf", FileName: "report-v1.pdf"}, nil
		}
		return store.DocumentVersion{}, errNotFound("version not found")
	}
	svc, _, _ := newTestService(fake)

	t.Run("current version by default", func(t *testing.T) {
		payload, err := svc.DocumentDownloadURL(ctx, sessionFor(member), doc.ID, "")
		if err != nil {
			t.Fatalf("DocumentDownloadURL: %v", err)
		}
		if payload["fileName"] != "report-v3.pdf" {
			t.Fatalf("expected current file name, got %v", payload["fileName"])
		}
	})

	t.Run("named version", func(t *testing.T) {
		payload, err := svc.DocumentDownloadURL(ctx, sessionFor(member), doc.ID, "ver-1")
		if err != nil {
			t.Fatalf("DocumentDownloadURL: %v", err)
		}
		if payload["fileName"] != "report-v1.pdf" {
			t.Fatalf("expected historical file name, got %v", payload["fileName"])
		}
	})

	t.Run("version must belong to the document", func(t *testing.T) {
		_, err := svc.DocumentDownloadURL(ctx, sessionFor(member), doc.ID, "ver-other")
		assertDomainError(t, err, "NOT_FOUND")
	})
}
