package sigil

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// NewRequestID returns a UUID-shaped request ID whose first eight bytes
// carry the creation time as big-endian Unix seconds, so IDs sort roughly
// by time.
func NewRequestID(t time.Time) string {
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[:8], uint64(t.Unix()))
	if _, err := rand.Read(id[8:]); err != nil {
		return uuid.NewString()
	}
	return id.String()
}
