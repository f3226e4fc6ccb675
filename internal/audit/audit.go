package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// Entry represents one operator action.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StdLogger writes audit entries to the process log when no database is configured.
type StdLogger struct {
	logger *log.Logger
}

// NewStdLogger constructs a log-backed audit logger.
func NewStdLogger(logger *log.Logger) *StdLogger {
	if logger == nil {
		logger = log.Default()
	}
	return &StdLogger{logger: logger}
}

// Log prints the entry on one line.
func (s *StdLogger) Log(_ context.Context, entry Entry) error {
	actor := entry.Actor
	if actor == "" {
		actor = "anonymous"
	}
	s.logger.Printf("audit %s actor=%s role=%s resource=%s/%s ip=%s meta=%s",
		entry.Action, actor, entry.Role, entry.ResourceType, entry.ResourceID, entry.IP, string(entry.Metadata))
	return nil
}
