package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/domain/event"
)

func TestWebhookNotifier_DeliversSignedEvent(t *testing.T) {
	var (
		gotBody      []byte
		gotSignature string
		gotEventType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		gotSignature = r.Header.Get("X-Signature")
		gotEventType = r.Header.Get("X-Event-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Secret: "topsecret"}, zap.NewNop())

	evt := event.New(event.TypeNotifyRequested, 42, "ECO", "ECO-1001").
		WithStage(2).
		WithPayload("user", "qa-lead")
	require.NoError(t, n.Handle(context.Background(), evt))

	var decoded event.Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, int64(42), decoded.InstanceID)
	assert.Equal(t, "notification.requested", gotEventType)

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(gotBody)
	assert.Equal(t, fmt.Sprintf("%x", mac.Sum(nil)), gotSignature)
}

func TestWebhookNotifier_NoURLIsNoop(t *testing.T) {
	n := NewWebhookNotifier(WebhookConfig{}, zap.NewNop())
	evt := event.New(event.TypeInstanceCompleted, 1, "NCR", "NCR-7")
	assert.NoError(t, n.Handle(context.Background(), evt))
}

func TestWebhookNotifier_ErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL}, zap.NewNop())
	err := n.Handle(context.Background(), event.New(event.TypeStageEscalated, 5, "CAPA", "CAPA-3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
