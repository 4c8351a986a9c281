package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := OpenStoreAt(filepath.Join(dir, "key"), filepath.Join(dir, "creds.enc"))
	if err != nil {
		t.Fatalf("OpenStoreAt: %v", err)
	}

	return store, dir
}

func TestPutGetDelete(t *testing.T) {
	store, _ := setupTestStore(t)

	c := Credential{AccessToken: "secret-token", ClientID: "abc"}
	if err := store.Put("mastodon:test", c); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get("mastodon:test")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AccessToken != "secret-token" {
		t.Errorf("expected token round trip, got %q", got.AccessToken)
	}

	if err := store.Delete("mastodon:test"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, err = store.Get("mastodon:test")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPersistsAcrossOpens(t *testing.T) {
	store, dir := setupTestStore(t)

	c := Credential{Identifier: "bob.bsky.social", AppPassword: "xxxx-yyyy"}
	if err := store.Put("bluesky:test", c); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := OpenStoreAt(filepath.Join(dir, "key"), filepath.Join(dir, "creds.enc"))
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}

	got, err := reopened.Get("bluesky:test")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.AppPassword != "xxxx-yyyy" {
		t.Errorf("expected password round trip, got %q", got.AppPassword)
	}
}

func TestSecretsNotPlaintextOnDisk(t *testing.T) {
	store, dir := setupTestStore(t)

	if err := store.Put("mastodon:test", Credential{AccessToken: "hunter2-very-secret"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	buf, err := os.ReadFile(filepath.Join(dir, "creds.enc"))
	if err != nil {
		t.Fatalf("reading credential file: %v", err)
	}

	if strings.Contains(string(buf), "hunter2-very-secret") {
		t.Error("secret stored in plaintext")
	}
}

func TestWrongKeyFailsClosed(t *testing.T) {
	store, dir := setupTestStore(t)

	if err := store.Put("mastodon:test", Credential{AccessToken: "tok"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Replace the key and expect decryption to fail loudly, not return junk.
	otherKey := make([]byte, 32)
	if err := os.WriteFile(filepath.Join(dir, "key"), otherKey, 0600); err != nil {
		t.Fatalf("overwriting key: %v", err)
	}

	_, err := OpenStoreAt(filepath.Join(dir, "key"), filepath.Join(dir, "creds.enc"))
	if err == nil {
		t.Error("expected error opening store with wrong key")
	}
}
