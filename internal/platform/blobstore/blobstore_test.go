package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"
)

func stores(t *testing.T) map[string]BlobStore {
	t.Helper()
	dir, err := NewDirBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return map[string]BlobStore{
		"memory": NewInMemoryBlobStore(),
		"dir":    dir,
	}
}

func TestBlobStore_UploadDownload(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			content := "workbook bytes"

			meta, err := store.Upload(ctx, BlobMetadata{
				FileName:  "q1.xlsx",
				CreatedBy: "admin-1",
				Tags:      map[string]string{"period": "Q1 2024"},
			}, strings.NewReader(content))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if meta.ID == "" || meta.Size != int64(len(content)) {
				t.Errorf("unexpected metadata: %+v", meta)
			}
			sum := sha256.Sum256([]byte(content))
			if meta.Hash != hex.EncodeToString(sum[:]) {
				t.Errorf("unexpected hash %s", meta.Hash)
			}
			if meta.ContentType != "application/octet-stream" {
				t.Errorf("expected default content type, got %s", meta.ContentType)
			}

			rc, got, err := store.Download(ctx, meta.ID)
			if err != nil {
				t.Fatalf("download: %v", err)
			}
			defer rc.Close()
			data, _ := io.ReadAll(rc)
			if string(data) != content {
				t.Errorf("expected %q, got %q", content, data)
			}
			if got.FileName != "q1.xlsx" || got.Tags["period"] != "Q1 2024" {
				t.Errorf("unexpected metadata: %+v", got)
			}
		})
	}
}

func TestBlobStore_CallerSuppliedID(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := "5f0c6f0e-9a59-4c43-9a3c-5d1f4a3b2c10"
			for _, content := range []string{"first", "second"} {
				if _, err := store.Upload(ctx, BlobMetadata{ID: id, FileName: "f.csv"}, strings.NewReader(content)); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}

			rc, _, err := store.Download(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			defer rc.Close()
			data, _ := io.ReadAll(rc)
			if string(data) != "second" {
				t.Errorf("expected replacement content, got %q", data)
			}
		})
	}
}

func TestBlobStore_Delete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			meta, err := store.Upload(ctx, BlobMetadata{FileName: "f.csv"}, strings.NewReader("x"))
			if err != nil {
				t.Fatal(err)
			}
			if err := store.Delete(ctx, meta.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.GetMetadata(ctx, meta.ID); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("expected ErrBlobNotFound, got %v", err)
			}
			if err := store.Delete(ctx, meta.ID); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
			}
		})
	}
}

func TestBlobStore_Validation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Upload(ctx, BlobMetadata{}, strings.NewReader("x")); !errors.Is(err, ErrMissingFileName) {
				t.Errorf("expected ErrMissingFileName, got %v", err)
			}
			big := bytes.NewReader(make([]byte, MaxFileSize+1))
			if _, err := store.Upload(ctx, BlobMetadata{FileName: "big.xlsx"}, big); !errors.Is(err, ErrFileTooLarge) {
				t.Errorf("expected ErrFileTooLarge, got %v", err)
			}
			if _, _, err := store.Download(ctx, "missing"); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("expected ErrBlobNotFound, got %v", err)
			}
		})
	}
}

func TestDirBlobStore_RejectsPathTraversal(t *testing.T) {
	store, err := NewDirBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.Upload(context.Background(), BlobMetadata{ID: "../escape", FileName: "f"}, strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
	if _, err := store.GetMetadata(context.Background(), "a/b"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
}
