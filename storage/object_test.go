package storage

import (
	"context"
	"testing"
	"time"
)

func TestNewFromEnvUnconfigured(t *testing.T) {
	for _, key := range []string{"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET"} {
		t.Setenv(key, "")
	}

	store, err := NewAvatarStorageFromEnv()
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if store != nil {
		t.Fatalf("expected feature-off nil store")
	}
}

func TestNilStoreDegradesGracefully(t *testing.T) {
	var store *ObjectStorage

	if _, err := store.Upload(context.Background(), nil); err == nil {
		t.Fatalf("upload on nil store must error")
	}
	if err := store.Remove(context.Background(), "http://minio/bucket/x.png"); err != nil {
		t.Fatalf("remove on nil store: %v", err)
	}

	// Presigning without a backend passes the stored URL through untouched.
	url, err := store.PresignedURL(context.Background(), " http://minio/bucket/x.png ", time.Minute)
	if err != nil {
		t.Fatalf("presign on nil store: %v", err)
	}
	if url != "http://minio/bucket/x.png" {
		t.Fatalf("url = %q", url)
	}
}

func TestBuildPublicURL(t *testing.T) {
	store := &ObjectStorage{publicURL: "http://cdn.example.com/", bucket: "tiketti"}
	got := store.buildPublicURL("/avatars/7/abc.png")
	if got != "http://cdn.example.com/tiketti/avatars/7/abc.png" {
		t.Fatalf("url = %q", got)
	}
}

func TestObjectNameFromURL(t *testing.T) {
	store := &ObjectStorage{publicURL: "http://cdn.example.com", bucket: "tiketti"}

	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"public url", "http://cdn.example.com/tiketti/avatars/abc.png", "avatars/abc.png", true},
		{"same host different path", "http://cdn.example.com/avatars/abc.png", "avatars/abc.png", true},
		{"bare object path", "tiketti/avatars/abc.png", "avatars/abc.png", true},
		{"leading slash", "/avatars/abc.png", "avatars/abc.png", true},
		{"foreign host", "http://elsewhere.example.com/avatars/abc.png", "", false},
		{"blank", "   ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := store.objectNameFromURL(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("objectNameFromURL(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestContentTypeGates(t *testing.T) {
	if !isImageContent("image/PNG") || isImageContent("application/pdf") {
		t.Fatalf("avatar gate wrong")
	}
	if !isAttachmentContent("application/pdf") || !isAttachmentContent("image/jpeg") {
		t.Fatalf("attachment gate wrong")
	}
	if isAttachmentContent("application/x-msdownload") {
		t.Fatalf("executable content accepted")
	}
}

func TestObjectExtension(t *testing.T) {
	if got := objectExtension("kuva.jpeg", "image/jpeg"); got != ".jpg" {
		t.Fatalf("ext = %q", got)
	}
	if got := objectExtension("raportti.XLSX", "application/octet-stream"); got != ".xlsx" {
		t.Fatalf("ext = %q", got)
	}
	if got := objectExtension("noext", ""); got != ".bin" {
		t.Fatalf("ext = %q", got)
	}
}
