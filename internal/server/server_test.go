package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/bridgebot/internal/bridge"
	"github.com/memohai/bridgebot/internal/handlers"
	"github.com/memohai/bridgebot/internal/logger"
)

type platform struct{}

func (platform) Channel(_ context.Context, id string) (bridge.ChannelInfo, error) {
	return bridge.ChannelInfo{ID: id, Name: "chan-" + id, GuildName: "Guild"}, nil
}

func (platform) EnsureWebhook(_ context.Context, channelID, _ string) (bridge.Webhook, error) {
	return bridge.Webhook{ID: "hook-" + channelID, Token: "secret-token", ChannelID: channelID}, nil
}

func newTestServer(t *testing.T, adminToken string) *Server {
	t.Helper()
	ctx := context.Background()
	reg := bridge.NewRegistry(logger.Discard(), bridge.NewMemoryStore(), platform{}, "")
	require.NoError(t, reg.Load(ctx))
	_, err := reg.Create(ctx, "100", "200")
	require.NoError(t, err)
	return NewServer(logger.Discard(), "", adminToken,
		handlers.NewPingHandler(logger.Discard()),
		handlers.NewBridgesHandler(logger.Discard(), reg),
	)
}

func do(s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestProbesSkipAuth(t *testing.T) {
	s := newTestServer(t, "admin")
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/ping", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodHead, "/health", "").Code)
}

func TestBridgesRequireToken(t *testing.T) {
	s := newTestServer(t, "admin")
	assert.NotEqual(t, http.StatusOK, do(s, http.MethodGet, "/bridges", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/bridges", "wrong").Code)

	rec := do(s, http.MethodGet, "/bridges", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-token")

	var body handlers.ListBridgesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "100", body.Items[0].ChannelA)
	assert.Equal(t, "#chan-200 (Guild)", body.Items[0].DisplayNameB)
	assert.True(t, body.Items[0].HasWebhookA)
	assert.True(t, body.Items[0].HasWebhookB)
}

func TestGetBridge(t *testing.T) {
	s := newTestServer(t, "")
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/bridges/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/bridges/2", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/bridges/x", "").Code)
}
