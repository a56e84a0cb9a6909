package provisioning

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validators"
)

// Engine is the slice of the workflow engine client the provisioning flows
// call. engine.Client satisfies it; tests substitute a fake.
type Engine interface {
	CreateWorkflow(ctx context.Context, workflow *engine.Workflow) (*engine.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*engine.Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, workflow *engine.Workflow) (*engine.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) (*engine.Workflow, error)
	Deactivate(ctx context.Context, id string) (*engine.Workflow, error)
	CreateCredential(ctx context.Context, credential *engine.Credential) (*engine.Credential, error)
	DeleteCredential(ctx context.Context, id string) error
}

// ValidatorSource resolves the validator for a platform. validators.Registry
// satisfies it.
type ValidatorSource interface {
	Get(platform models.Platform) (validators.PlatformValidator, error)
}

// EventPublisher publishes chatbot lifecycle events. kafka.Producer satisfies
// it. Publishing is best-effort everywhere it is called.
type EventPublisher interface {
	Publish(ctx context.Context, event *kafka.ChatbotEvent) error
}

// MemoryStore seeds conversational memory for the downstream AI agent.
type MemoryStore interface {
	RPush(ctx context.Context, key string, values ...interface{}) error
	Expire(ctx context.Context, key string, expiration time.Duration) error
}
