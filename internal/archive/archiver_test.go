package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

type failingStorage struct {
	err error
}

func (f failingStorage) Save(ctx context.Context, key string, data io.Reader, size int64) (int64, error) {
	return 0, f.err
}

func TestKey(t *testing.T) {
	at := time.Date(2026, 10, 15, 23, 30, 0, 0, time.FixedZone("X", -2*3600))

	if got := Key(at, "evt_123"); got != "webhooks/2026/10/16/evt_123.json" {
		t.Errorf("Key = %q", got)
	}

	random := regexp.MustCompile(`^webhooks/2026/10/16/[0-9a-f-]{36}\.json$`)
	for _, id := range []string{"", "../../etc", "has space", strings.Repeat("a", 65)} {
		if got := Key(at, id); !random.MatchString(got) {
			t.Errorf("Key(%q) = %q, want a random id", id, got)
		}
	}
}

func TestArchiver_Archive(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFSStorage(dir)
	if err != nil {
		t.Fatalf("NewFSStorage failed: %v", err)
	}
	a := NewArchiver(storage)
	a.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	body := []byte(`{"deliveryId":"d1","type":"InvoiceSettled"}`)

	key, err := a.Archive(ctx, "d1", body)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if key != "webhooks/2026/10/15/d1.json" {
		t.Errorf("key = %q", key)
	}

	got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if err != nil {
		t.Fatalf("archived file missing: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("archived body = %q, want %q", got, body)
	}
}

func TestArchiver_StorageError(t *testing.T) {
	want := errors.New("disk full")
	a := NewArchiver(failingStorage{err: want})

	if _, err := a.Archive(context.Background(), "d1", []byte("{}")); !errors.Is(err, want) {
		t.Errorf("Archive error = %v, want %v", err, want)
	}
}
