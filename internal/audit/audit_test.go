package audit

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantwatch/internal/auth"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:4321"
	assert.Equal(t, "10.0.0.5", ClientIP(req))

	req.Header.Set("X-Real-IP", " 10.0.0.9 ")
	assert.Equal(t, "10.0.0.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "192.168.1.20, 10.0.0.1")
	assert.Equal(t, "192.168.1.20", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "unknown, 172.16.0.3")
	assert.Equal(t, "172.16.0.3", ClientIP(req))
	assert.Empty(t, ClientIP(nil))
}

func TestFromRequestCarriesIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/history/capture", nil)
	req.RemoteAddr = "10.1.2.3:5000"
	req.Header.Set("User-Agent", "panel/1.0")
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{Subject: "op-7", Role: auth.RoleOperator}))

	entry := FromRequest(req, "history.capture", "history", "e-1", map[string]int{"row": 2})
	assert.Equal(t, "op-7", entry.Actor)
	assert.Equal(t, "operator", entry.Role)
	assert.Equal(t, "10.1.2.3", entry.IP)
	assert.Equal(t, "panel/1.0", entry.UserAgent)
	assert.JSONEq(t, `{"row":2}`, string(entry.Metadata))

	anon := FromRequest(httptest.NewRequest(http.MethodGet, "/", nil), "x", "y", "", nil)
	assert.Empty(t, anon.Actor)
	assert.Nil(t, anon.Metadata)
}

func TestStdLoggerWritesLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdLogger(log.New(&buf, "", 0))
	require.NoError(t, logger.Log(context.Background(), Entry{
		Action:       "history.clear",
		Role:         "admin",
		ResourceType: "history",
		Metadata:     []byte(`{"entries":3}`),
	}))
	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "audit history.clear actor=anonymous role=admin"))
	assert.Contains(t, line, `meta={"entries":3}`)
}

func TestDigestAndID(t *testing.T) {
	assert.Empty(t, DigestJSON(nil))
	assert.Len(t, DigestJSON([]byte(`{}`)), 64)
	assert.True(t, strings.HasPrefix(NewID(), "audit-"))
	assert.NotEqual(t, NewID(), NewID())
}
