// Package workflow builds the chatbot workflow definition submitted to the
// workflow engine: a webhook trigger receiving platform messages, an AI agent
// node carrying the tenant's prompt settings, and a platform reply node.
package workflow

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	triggerNodeName = "Incoming Message"
	agentNodeName   = "AI Agent"
	replyNodeName   = "Send Reply"

	agentNodeType = "@n8n/n8n-nodes-langchain.agent"
)

// replyNodeTypes maps each platform onto the engine node that sends replies.
var replyNodeTypes = map[models.Platform]string{
	models.PlatformTelegram:  "n8n-nodes-base.telegram",
	models.PlatformWhatsApp:  "n8n-nodes-base.whatsApp",
	models.PlatformInstagram: "n8n-nodes-base.httpRequest",
	models.PlatformMessenger: "n8n-nodes-base.httpRequest",
}

// BuildInput carries everything the workflow definition embeds.
type BuildInput struct {
	TenantID     uuid.UUID
	Platform     models.Platform
	AIModel      string
	Temperature  float64
	SystemPrompt string

	// Engine credential references. Ids only, never secrets.
	PlatformCredentialID string
	AuthCredentialID     string

	// CredentialType is the engine credential type of the platform credential.
	CredentialType string
}

// Builder renders chatbot workflow definitions.
type Builder struct {
	evaluator *expressions.Evaluator
}

func NewBuilder(evaluator *expressions.Evaluator) *Builder {
	return &Builder{evaluator: evaluator}
}

// Build assembles the workflow definition for one chatbot integration.
func (b *Builder) Build(input BuildInput) (*engine.Workflow, error) {
	if input.PlatformCredentialID == "" || input.AuthCredentialID == "" {
		return nil, fmt.Errorf("workflow build requires both credential ids")
	}

	replyType, ok := replyNodeTypes[input.Platform]
	if !ok {
		return nil, fmt.Errorf("no reply node type for platform %q", input.Platform)
	}

	data := map[string]any{
		"chatbot": map[string]any{
			"tenant_id":     input.TenantID.String(),
			"platform":      input.Platform.String(),
			"ai_model":      input.AIModel,
			"temperature":   input.Temperature,
			"system_prompt": input.SystemPrompt,
		},
	}

	triggerParams, err := resolveMapTemplates(b.evaluator, map[string]any{
		"httpMethod": "POST",
		"path":       "chatbot/{{ chatbot.tenant_id }}/{{ chatbot.platform }}",
		"options": map[string]any{
			"rawBody": false,
		},
	}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render trigger parameters: %w", err)
	}

	agentParams, err := resolveMapTemplates(b.evaluator, map[string]any{
		"promptType": "auto",
		"options": map[string]any{
			"systemMessage": "{{ chatbot.system_prompt }}",
			"model":         "{{ chatbot.ai_model }}",
			"temperature":   input.Temperature,
		},
	}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render agent parameters: %w", err)
	}

	replyParams, err := resolveMapTemplates(b.evaluator, map[string]any{
		"operation": "sendMessage",
		"chatId":    "={{ $json.chat_id }}",
		"text":      "={{ $json.reply }}",
	}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render reply parameters: %w", err)
	}

	workflow := &engine.Workflow{
		Name: fmt.Sprintf("chatbot-%s-%s", input.Platform, input.TenantID),
		Nodes: []engine.Node{
			{
				Name:        triggerNodeName,
				Type:        engine.WebhookTriggerType,
				TypeVersion: 2,
				Position:    []float64{0, 0},
				Parameters:  triggerParams,
			},
			{
				Name:        agentNodeName,
				Type:        agentNodeType,
				TypeVersion: 1.7,
				Position:    []float64{260, 0},
				Parameters:  agentParams,
				Credentials: map[string]engine.NodeCredential{
					"httpBearerAuth": {
						ID:   input.AuthCredentialID,
						Name: fmt.Sprintf("tenant-%s-callback", input.TenantID),
					},
				},
			},
			{
				Name:        replyNodeName,
				Type:        replyType,
				TypeVersion: 1.2,
				Position:    []float64{520, 0},
				Parameters:  replyParams,
				Credentials: map[string]engine.NodeCredential{
					input.CredentialType: {
						ID:   input.PlatformCredentialID,
						Name: fmt.Sprintf("chatbot-%s-%s", input.Platform, input.TenantID),
					},
				},
			},
		},
		Connections: map[string]any{
			triggerNodeName: map[string]any{
				"main": []any{
					[]any{
						map[string]any{"node": agentNodeName, "type": "main", "index": 0},
					},
				},
			},
			agentNodeName: map[string]any{
				"main": []any{
					[]any{
						map[string]any{"node": replyNodeName, "type": "main", "index": 0},
					},
				},
			},
		},
		Settings: map[string]any{
			"executionOrder": "v1",
		},
	}

	return workflow, nil
}
