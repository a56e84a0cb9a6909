package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const apiKeyHeader = "X-N8N-API-KEY"

// Config holds workflow-engine client configuration.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// Client is a typed client for the workflow engine's REST API. The API key is
// resolved through an injected cache because the engine rotates it.
type Client struct {
	http    *httpclient.Client
	baseURL string
	apiKeys *APIKeyCache
	logger  ectologger.Logger
}

// NewClient creates a new workflow engine client.
func NewClient(cfg Config, apiKeys *APIKeyCache, logger ectologger.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = httpclient.DefaultTimeout
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = timeout

	return &Client{
		http:    httpclient.NewClient(httpCfg, logger),
		baseURL: cfg.BaseURL,
		apiKeys: apiKeys,
		logger:  logger,
	}
}

// CreateWorkflow submits a new workflow definition.
func (c *Client) CreateWorkflow(ctx context.Context, workflow *Workflow) (*Workflow, error) {
	ctx, span := tracing.StartSpan(ctx, "EngineClient.CreateWorkflow")
	defer span.End()

	var created Workflow
	if err := c.call(ctx, "create_workflow", http.MethodPost, "/api/v1/workflows", workflow, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetWorkflow reads a workflow back, including node webhook identifiers.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	ctx, span := tracing.StartSpan(ctx, "EngineClient.GetWorkflow")
	defer span.End()

	var workflow Workflow
	if err := c.call(ctx, "get_workflow", http.MethodGet, "/api/v1/workflows/"+id, nil, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// UpdateWorkflow re-submits a workflow definition. The payload is sanitized
// of server-assigned fields the engine rejects on write.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, workflow *Workflow) (*Workflow, error) {
	ctx, span := tracing.StartSpan(ctx, "EngineClient.UpdateWorkflow")
	defer span.End()

	var updated Workflow
	if err := c.call(ctx, "update_workflow", http.MethodPut, "/api/v1/workflows/"+id, SanitizeForUpdate(workflow), &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteWorkflow removes a workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "EngineClient.DeleteWorkflow")
	defer span.End()

	return c.call(ctx, "delete_workflow", http.MethodDelete, "/api/v1/workflows/"+id, nil, nil)
}

// Activate turns a workflow on.
func (c *Client) Activate(ctx context.Context, id string) (*Workflow, error) {
	ctx, span := tracing.StartSpan(ctx, "EngineClient.Activate")
	defer span.End()

	var workflow Workflow
	if err := c.call(ctx, "activate_workflow", http.MethodPost, "/api/v1/workflows/"+id+"/activate", nil, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// Deactivate turns a workflow off.
func (c *Client) Deactivate(ctx context.Context, id string) (*Workflow, error) {
	ctx, span := tracing.StartSpan(ctx, "EngineClient.Deactivate")
	defer span.End()

	var workflow Workflow
	if err := c.call(ctx, "deactivate_workflow", http.MethodPost, "/api/v1/workflows/"+id+"/deactivate", nil, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// CreateCredential stores a credential in the engine and returns its id.
func (c *Client) CreateCredential(ctx context.Context, credential *Credential) (*Credential, error) {
	ctx, span := tracing.StartSpan(ctx, "EngineClient.CreateCredential")
	defer span.End()

	var created Credential
	if err := c.call(ctx, "create_credential", http.MethodPost, "/api/v1/credentials", credential, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteCredential removes a stored credential.
func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "EngineClient.DeleteCredential")
	defer span.End()

	return c.call(ctx, "delete_credential", http.MethodDelete, "/api/v1/credentials/"+id, nil, nil)
}

// Ping verifies the engine API is reachable and accepts our key.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "EngineClient.Ping")
	defer span.End()

	return c.call(ctx, "ping", http.MethodGet, "/api/v1/workflows?limit=1", nil, nil)
}

// call performs one engine request, retrying once on 401 after invalidating
// the cached API key (the key rotates out-of-band).
func (c *Client) call(ctx context.Context, operation, method, path string, body, out any) error {
	resp, err := c.doAuthed(ctx, operation, method, path, body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.WithContext(ctx).Warnf("Engine rejected API key for %s, refreshing and retrying", operation)
		c.apiKeys.Invalidate()
		resp, err = c.doAuthed(ctx, operation, method, path, body)
		if err != nil {
			return err
		}
	}

	metrics.RecordEngineRequest(operation, strconv.Itoa(resp.StatusCode), resp.Duration.Seconds())

	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		return &Error{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    extractMessage(resp.Body),
		}
	}

	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("failed to decode engine %s response: %w", operation, err)
		}
	}

	return nil
}

func (c *Client) doAuthed(ctx context.Context, operation, method, path string, body any) (*httpclient.Response, error) {
	apiKey, err := c.apiKeys.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve engine API key for %s: %w", operation, err)
	}

	headers := map[string]string{
		apiKeyHeader: apiKey,
		"Accept":     "application/json",
	}

	return c.http.DoJSON(ctx, method, c.baseURL+path, body, headers)
}

// extractMessage pulls the engine's error message out of a failure body.
func extractMessage(body []byte) string {
	if len(body) == 0 {
		return "no response body"
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}

	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}
	return string(body)
}
