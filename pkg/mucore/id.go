package mucore

import "github.com/google/uuid"

// IDFactory produces new IDs for journal entities. Production wiring uses
// UUIDFactory; tests use a deterministic factory (pkg/mutest).
type IDFactory interface {
	NewID(prefix string) string
}

// UUIDFactory is the production IDFactory, grounded on the teacher's use of
// github.com/google/uuid throughout pkg/session and pkg/events.
type UUIDFactory struct{}

// NewID returns "<prefix>-<uuid>".
func (UUIDFactory) NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
