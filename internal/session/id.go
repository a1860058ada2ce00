package session

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// monoEntropy is shared by every newID call so that session ids created
// within the same millisecond still sort in creation order.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// newID creates a new time-ordered ULID string.
func newID() (string, error) {
	monoMu.Lock()
	defer monoMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), monoEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidID reports whether s is a well-formed session id.
func ValidID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
