// Package id generates identifiers.
//
// Sessions are identified by UUIDv4 strings because a session ID is also the
// name of its workspace directory. Everything else (messages, audit records,
// requests, stream connections) uses prefixed ULIDs, which sort by creation
// time:
//
//	msg_01J9Z3K8W4Q7R2V6X0B5N1M3C8
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// MessageID identifies a stored conversation message
type MessageID string

// AuditID identifies an audit log record
type AuditID string

// RequestID identifies an API request
type RequestID string

// ConnID identifies a stream connection
type ConnID string

const (
	MessagePrefix = "msg"
	AuditPrefix   = "audit"
	RequestPrefix = "req"
	ConnPrefix    = "conn"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a new session ID
func NewSessionID() string {
	return uuid.NewString()
}

// IsSessionID reports whether s is a canonical session ID. Session IDs are
// used as path components, so anything else is rejected.
func IsSessionID(s string) bool {
	u, err := uuid.Parse(s)
	return err == nil && u.String() == s
}

// NewMessageID generates a new message ID
func NewMessageID() MessageID {
	return MessageID(Default().GenerateWithPrefix(MessagePrefix))
}

// NewAuditID generates a new audit record ID
func NewAuditID() AuditID {
	return AuditID(Default().GenerateWithPrefix(AuditPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewConnID generates a new stream connection ID
func NewConnID() ConnID {
	return ConnID(Default().GenerateWithPrefix(ConnPrefix))
}

func (id MessageID) String() string { return string(id) }
func (id AuditID) String() string   { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id ConnID) String() string    { return string(id) }

// Timestamp extracts the creation time from a prefixed or bare ULID
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
