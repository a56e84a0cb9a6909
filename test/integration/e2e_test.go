//go:build integration

// Package integration contains end-to-end tests for the chatbot provisioning
// API. They run against a live stack (API, database, workflow engine, Kafka):
//
//	go test -v ./test/integration/... -tags=integration
//
// Provisioning tests need a real Telegram bot token in TEST_TELEGRAM_BOT_TOKEN
// and are skipped without one.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	baseURL      = getEnv("TEST_BASE_URL", "http://localhost:3000/api/v1")
	tenantID     = getEnv("TEST_TENANT_ID", "11111111-1111-1111-1111-111111111111")
	kafkaBroker  = getEnv("TEST_KAFKA_BROKER", "localhost:9092")
	eventTopic   = getEnv("TEST_KAFKA_TOPIC", "chatbot-events")
	telegramBots = os.Getenv("TEST_TELEGRAM_BOT_TOKEN")
)

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// TestClient wraps http.Client with common headers
type TestClient struct {
	*http.Client
	baseURL  string
	tenantID string
}

func NewTestClient() *TestClient {
	return &TestClient{
		Client:   &http.Client{Timeout: 120 * time.Second},
		baseURL:  baseURL,
		tenantID: tenantID,
	}
}

func (c *TestClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenantID)
	return c.Client.Do(req)
}

func (c *TestClient) Get(path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func (c *TestClient) Post(path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func (c *TestClient) Put(path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPut, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func (c *TestClient) Delete(path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func parseResponse(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	if target != nil {
		require.NoError(t, json.Unmarshal(body, target), "failed to parse response: %s", string(body))
	}
}

func requireBotToken(t *testing.T) string {
	t.Helper()
	if telegramBots == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set, skipping live provisioning test")
	}
	return telegramBots
}

func telegramCreateRequest(token string) map[string]any {
	return map[string]any{
		"platform":        "telegram",
		"platform_config": map[string]any{"bot_token": token},
		"ai_model":        "gpt-4o-mini",
		"ai_temperature":  0.7,
		"system_prompt":   fmt.Sprintf("You are a scheduling assistant. (%d)", time.Now().UnixNano()),
	}
}

func deleteChatbot(t *testing.T, client *TestClient, id string) {
	t.Helper()
	resp, _ := client.Delete("/chatbots/" + id)
	if resp != nil {
		resp.Body.Close()
	}
}

// TestHealthCheck verifies the API and its dependencies are up
func TestHealthCheck(t *testing.T) {
	client := NewTestClient()

	resp, err := client.Get("/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	parseResponse(t, resp, &result)
	assert.Equal(t, "healthy", result["status"])
}

// TestChatbotLifecycle provisions a chatbot, toggles its state and tears it
// down, checking the record at each step.
func TestChatbotLifecycle(t *testing.T) {
	token := requireBotToken(t)
	client := NewTestClient()

	// Provision
	resp, err := client.Post("/chatbots", telegramCreateRequest(token))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "provisioning failed")

	var created map[string]any
	parseResponse(t, resp, &created)
	chatbotID := created["id"].(string)
	require.NotEmpty(t, chatbotID)
	assert.Equal(t, "telegram", created["platform"])
	assert.NotEmpty(t, created["remote_workflow_id"], "provisioning should record the engine workflow id")
	assert.Equal(t, true, created["active"], "a freshly provisioned chatbot should be active")
	t.Logf("Provisioned chatbot %s with workflow %v", chatbotID, created["remote_workflow_id"])

	t.Cleanup(func() { deleteChatbot(t, client, chatbotID) })

	// Read
	resp, err = client.Get("/chatbots/" + chatbotID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched map[string]any
	parseResponse(t, resp, &fetched)
	assert.Equal(t, chatbotID, fetched["id"])

	// List
	resp, err = client.Get("/chatbots")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []map[string]any
	parseResponse(t, resp, &list)
	assert.GreaterOrEqual(t, len(list), 1)

	// Deactivate, then reactivate
	resp, err = client.Put("/chatbots/"+chatbotID+"/state", map[string]any{"active": false})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "deactivation failed")

	var deactivated map[string]any
	parseResponse(t, resp, &deactivated)
	assert.Equal(t, false, deactivated["active"])

	resp, err = client.Put("/chatbots/"+chatbotID+"/state", map[string]any{"active": true})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "reactivation failed")

	var reactivated map[string]any
	parseResponse(t, resp, &reactivated)
	assert.Equal(t, true, reactivated["active"])

	// Deprovision
	resp, err = client.Delete("/chatbots/" + chatbotID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// Verify gone
	resp, err = client.Get("/chatbots/" + chatbotID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

// TestDuplicatePlatformRejected verifies one integration per platform per
// tenant.
func TestDuplicatePlatformRejected(t *testing.T) {
	token := requireBotToken(t)
	client := NewTestClient()

	resp, err := client.Post("/chatbots", telegramCreateRequest(token))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]any
	parseResponse(t, resp, &created)
	chatbotID := created["id"].(string)
	t.Cleanup(func() { deleteChatbot(t, client, chatbotID) })

	resp, err = client.Post("/chatbots", telegramCreateRequest(token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

// TestInvalidCredentialsLeaveNoRecord verifies a failed saga has no visible
// footprint.
func TestInvalidCredentialsLeaveNoRecord(t *testing.T) {
	client := NewTestClient()

	before := countChatbots(t, client)

	req := telegramCreateRequest("123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	resp, err := client.Post("/chatbots", req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, before, countChatbots(t, client))
}

func countChatbots(t *testing.T, client *TestClient) int {
	t.Helper()
	resp, err := client.Get("/chatbots")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	parseResponse(t, resp, &list)
	return len(list)
}

// TestProvisioningPublishesEvent checks the chatbot.provisioned event lands
// on the event topic.
func TestProvisioningPublishesEvent(t *testing.T) {
	token := requireBotToken(t)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{kafkaBroker},
		Topic:    eventTopic,
		GroupID:  fmt.Sprintf("e2e-%d", time.Now().UnixNano()),
		MaxWait:  time.Second,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	defer reader.Close()

	client := NewTestClient()
	resp, err := client.Post("/chatbots", telegramCreateRequest(token))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]any
	parseResponse(t, resp, &created)
	chatbotID := created["id"].(string)
	t.Cleanup(func() { deleteChatbot(t, client, chatbotID) })

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	msg, err := reader.ReadMessage(ctx)
	if err != nil {
		t.Skipf("Kafka read timed out (Kafka may not be configured): %v", err)
	}

	var event map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &event))

	// Other tests may publish concurrently, so check shape rather than ids.
	assert.NotEmpty(t, event["type"], "type should be present")
	assert.NotEmpty(t, event["tenant_id"], "tenant_id should be present")
	assert.NotEmpty(t, event["chatbot_id"], "chatbot_id should be present")
	assert.NotEmpty(t, event["platform"], "platform should be present")

	t.Logf("Received event: type=%s tenant=%s platform=%s",
		event["type"], event["tenant_id"], event["platform"])
}
