package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/engine"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func newTestClient(t *testing.T, handler http.Handler, key string) (*engine.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cache := engine.NewAPIKeyCache(engine.StaticAPIKey(key), time.Minute)
	client := engine.NewClient(engine.Config{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
	}, cache, getTestLogger())
	return client, server
}

func TestCreateWorkflowSendsAPIKey(t *testing.T) {
	var seenKey atomic.Value

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKey.Store(r.Header.Get("X-N8N-API-KEY"))
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/workflows", r.URL.Path)

		var wf engine.Workflow
		require.NoError(t, json.NewDecoder(r.Body).Decode(&wf))
		wf.ID = "wf-123"

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(wf)
	})

	client, _ := newTestClient(t, handler, "secret-key")

	created, err := client.CreateWorkflow(context.Background(), &engine.Workflow{
		Name:        "chatbot-telegram-test",
		Nodes:       []engine.Node{{Name: "Webhook", Type: engine.WebhookTriggerType}},
		Connections: map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, "wf-123", created.ID)
	assert.Equal(t, "secret-key", seenKey.Load())
}

func TestUnauthorizedInvalidatesKeyAndRetriesOnce(t *testing.T) {
	var fetches atomic.Int32
	source := engine.APIKeySourceFunc(func(ctx context.Context) (string, error) {
		if fetches.Add(1) == 1 {
			return "stale-key", nil
		}
		return "fresh-key", nil
	})

	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("X-N8N-API-KEY") != "fresh-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(engine.Workflow{ID: "wf-1"})
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cache := engine.NewAPIKeyCache(source, time.Minute)
	client := engine.NewClient(engine.Config{BaseURL: server.URL}, cache, getTestLogger())

	wf, err := client.GetWorkflow(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", wf.ID)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, int32(2), fetches.Load())
}

func TestPersistentUnauthorizedSurfacesError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"unauthorized"}`))
	})

	client, _ := newTestClient(t, handler, "revoked-key")

	_, err := client.GetWorkflow(context.Background(), "wf-1")
	require.Error(t, err)

	var engineErr *engine.Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, http.StatusUnauthorized, engineErr.StatusCode)
}

func TestNotFoundClassification(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"workflow not found"}`))
	})

	client, _ := newTestClient(t, handler, "key")

	err := client.DeleteWorkflow(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, engine.IsNotFound(err))

	var engineErr *engine.Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "delete_workflow", engineErr.Operation)
	assert.Equal(t, "workflow not found", engineErr.Message)
}

func TestStructuralActivationClassification(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Workflow could not be activated: no node to start the workflow"}`))
	})

	client, _ := newTestClient(t, handler, "key")

	_, err := client.Activate(context.Background(), "wf-1")
	require.Error(t, err)
	assert.True(t, engine.IsStructuralActivation(err))
	assert.False(t, engine.IsNotFound(err))
}

func TestUpdateWorkflowStripsServerFields(t *testing.T) {
	var received engine.Workflow
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(received)
	})

	client, _ := newTestClient(t, handler, "key")

	_, err := client.UpdateWorkflow(context.Background(), "wf-1", &engine.Workflow{
		ID:        "wf-1",
		Name:      "chatbot-telegram-test",
		VersionID: "v42",
		CreatedAt: "2024-01-01T00:00:00Z",
		Nodes: []engine.Node{
			{
				ID:        "node-1",
				Name:      "Webhook",
				Type:      engine.WebhookTriggerType,
				WebhookID: "wh-abc",
				Parameters: map[string]any{
					"options": map[string]any{"id": "gen-1", "path": "inbound"},
				},
			},
		},
		Connections: map[string]any{},
	})
	require.NoError(t, err)

	assert.Empty(t, received.ID)
	assert.Empty(t, received.VersionID)
	assert.Empty(t, received.CreatedAt)
	require.Len(t, received.Nodes, 1)
	assert.Empty(t, received.Nodes[0].ID)
	assert.Empty(t, received.Nodes[0].WebhookID)

	options, ok := received.Nodes[0].Parameters["options"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, options, "id")
	assert.Equal(t, "inbound", options["path"])
}

func TestErrorMessageFallsBackToBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	})

	client, _ := newTestClient(t, handler, "key")

	err := client.DeleteCredential(context.Background(), "cred-1")
	require.Error(t, err)

	var engineErr *engine.Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "upstream exploded", engineErr.Message)
}

func TestPingUsesWorkflowList(t *testing.T) {
	var path atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	client, _ := newTestClient(t, handler, "key")

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "/api/v1/workflows", path.Load())
}
