package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOriginPolicy_IsAllowed(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost:8080", " HTTPS://Chat.Example.com ", "not a url", ""}, zap.NewNop())

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact match", "http://localhost:8080", true},
		{"case insensitive", "https://chat.example.com", true},
		{"path ignored", "https://chat.example.com/room", true},
		{"different port", "http://localhost:3000", false},
		{"different scheme", "https://localhost:8080", false},
		{"missing header", "", false},
		{"garbage header", "localhost", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.isAllowed(r))
		})
	}
}

func TestOriginPolicy_Wildcard(t *testing.T) {
	policy := newOriginPolicy([]string{"*"}, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://anywhere.example")
	assert.True(t, policy.isAllowed(r))

	r.Header.Del("Origin")
	assert.False(t, policy.isAllowed(r), "a wildcard still requires an Origin header")
}

func TestOriginPolicy_LogsInvalidAndBlocked(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	policy := newOriginPolicy([]string{"ftp//broken"}, zap.New(core))

	assert.Equal(t, 1, logs.FilterMessage("Ignoring invalid origin in configuration").Len())

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, policy.check(r))

	blocked := logs.FilterMessage("Blocked WebSocket connection from disallowed origin").All()
	if assert.Len(t, blocked, 1) {
		assert.Equal(t, "http://evil.example", blocked[0].ContextMap()["origin"])
	}
}
