package archive

import (
	"context"
	"errors"
	"io"
	"regexp"
)

var ErrInvalidKey = errors.New("invalid archive key")

// validKeyPattern allows slash-separated segments and a single extension on the
// last one, so ".." can never appear.
var validKeyPattern = regexp.MustCompile(`^([A-Za-z0-9_-]+/)*[A-Za-z0-9_-]+(\.[a-z]+)?$`)

const maxKeyLen = 256

// Storage is a write-only blob store for archived webhook bodies. Archived
// objects are read back with the destination's own tooling.
type Storage interface {
	Save(ctx context.Context, key string, data io.Reader, size int64) (int64, error)
}

func validateKey(key string) error {
	if key == "" || len(key) > maxKeyLen || !validKeyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}
