package archive

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"satoshicheckout/internal/logging"
)

var deliveryIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Archiver writes verified webhook bodies to storage under
// webhooks/YYYY/MM/DD/<delivery>.json.
type Archiver struct {
	storage Storage
	now     func() time.Time
}

// NewArchiver creates an archiver over storage.
func NewArchiver(storage Storage) *Archiver {
	return &Archiver{storage: storage, now: time.Now}
}

// Key returns the object key for a delivery received at t. Deliveries without a
// usable id get a random one; a redelivered id overwrites its earlier copy.
func Key(t time.Time, deliveryID string) string {
	if !deliveryIDPattern.MatchString(deliveryID) {
		deliveryID = uuid.NewString()
	}
	return fmt.Sprintf("webhooks/%s/%s.json", t.UTC().Format("2006/01/02"), deliveryID)
}

// Archive stores body and returns its key.
func (a *Archiver) Archive(ctx context.Context, deliveryID string, body []byte) (string, error) {
	key := Key(a.now(), deliveryID)
	if _, err := a.storage.Save(ctx, key, bytes.NewReader(body), int64(len(body))); err != nil {
		return "", fmt.Errorf("failed to archive webhook %s: %w", key, err)
	}
	logging.Archive.Printf("archived webhook %s (%d bytes)", key, len(body))
	return key, nil
}
