package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// LocalPrefix marks identifiers generated on this kiosk before the server
// has issued a canonical one. Every consumer must check it before deciding
// whether a network operation is needed at all.
const LocalPrefix = "offline_"

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// NewLocal generates a local-only entity identifier carrying LocalPrefix.
func NewLocal(kind string) string {
	return LocalPrefix + New(kind)
}

// IsLocal reports whether id was generated locally and has not been
// remapped to a server-issued identifier.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}
