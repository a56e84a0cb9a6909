package provisioning_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/provisioning"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/validators"
)

func timeNow() time.Time {
	return time.Now().UTC()
}

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestContext(tenantID uuid.UUID) context.Context {
	return appctx.SetTenantID(context.Background(), tenantID.String())
}

// zeroTiming removes every sleep so tests run instantly.
func zeroTiming() provisioning.Timing {
	return provisioning.Timing{CompensationTimeout: time.Second}
}

// fakeEngine is an in-memory workflow engine with injectable failures.
type fakeEngine struct {
	mu  sync.Mutex
	seq int

	workflows   map[string]*engine.Workflow
	credentials map[string]*engine.Credential

	// Webhook identifier behavior. By default the identifier is assigned at
	// creation. webhookNever simulates the unrecoverable defect;
	// webhookAfterResaves n assigns it once n update calls have happened;
	// webhookAfterCycle assigns it after a deactivate/reactivate pair.
	webhookNever        bool
	webhookAfterResaves int
	webhookAfterCycle   bool

	// activationFailures makes the first n activate calls fail transiently;
	// structuralActivation makes every activate fail with the no-startable-
	// node message.
	activationFailures   int
	structuralActivation bool

	failCreateWorkflow   error
	failCreateCredential error
	failDeleteWorkflow   error
	failDeleteCredential error

	createWorkflowCalls   int
	createCredentialCalls int
	updateCalls           int
	getCalls              int
	activateCalls         int
	deactivateCalls       int
	deletedWorkflows      []string
	deletedCredentials    []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		workflows:   make(map[string]*engine.Workflow),
		credentials: make(map[string]*engine.Credential),
	}
}

func (f *fakeEngine) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeEngine) webhookReady() bool {
	switch {
	case f.webhookNever:
		return false
	case f.webhookAfterResaves > 0:
		return f.updateCalls >= f.webhookAfterResaves
	case f.webhookAfterCycle:
		return f.deactivateCalls >= 1 && f.activateCalls >= 1
	default:
		return true
	}
}

func (f *fakeEngine) CreateWorkflow(ctx context.Context, workflow *engine.Workflow) (*engine.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createWorkflowCalls++
	if f.failCreateWorkflow != nil {
		return nil, f.failCreateWorkflow
	}

	stored := *workflow
	stored.ID = f.nextID("wf")
	f.workflows[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeEngine) GetWorkflow(ctx context.Context, id string) (*engine.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++
	stored, ok := f.workflows[id]
	if !ok {
		return nil, &engine.Error{Operation: "get_workflow", StatusCode: http.StatusNotFound, Message: "workflow not found"}
	}

	out := *stored
	out.Nodes = make([]engine.Node, len(stored.Nodes))
	copy(out.Nodes, stored.Nodes)
	for i := range out.Nodes {
		if out.Nodes[i].Type == engine.WebhookTriggerType {
			if f.webhookReady() {
				out.Nodes[i].WebhookID = "wh-" + id
			} else {
				out.Nodes[i].WebhookID = ""
			}
		}
	}
	return &out, nil
}

func (f *fakeEngine) UpdateWorkflow(ctx context.Context, id string, workflow *engine.Workflow) (*engine.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updateCalls++
	stored, ok := f.workflows[id]
	if !ok {
		return nil, &engine.Error{Operation: "update_workflow", StatusCode: http.StatusNotFound, Message: "workflow not found"}
	}
	stored.Name = workflow.Name
	stored.Nodes = workflow.Nodes
	return stored, nil
}

func (f *fakeEngine) DeleteWorkflow(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failDeleteWorkflow != nil {
		return f.failDeleteWorkflow
	}
	f.deletedWorkflows = append(f.deletedWorkflows, id)
	if _, ok := f.workflows[id]; !ok {
		return &engine.Error{Operation: "delete_workflow", StatusCode: http.StatusNotFound, Message: "workflow not found"}
	}
	delete(f.workflows, id)
	return nil
}

func (f *fakeEngine) Activate(ctx context.Context, id string) (*engine.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.activateCalls++
	if f.structuralActivation {
		return nil, &engine.Error{Operation: "activate_workflow", StatusCode: http.StatusBadRequest, Message: "workflow has no node to start the workflow"}
	}
	if f.activationFailures > 0 {
		f.activationFailures--
		return nil, &engine.Error{Operation: "activate_workflow", StatusCode: http.StatusServiceUnavailable, Message: "workflow is not ready yet"}
	}

	stored, ok := f.workflows[id]
	if !ok {
		return nil, &engine.Error{Operation: "activate_workflow", StatusCode: http.StatusNotFound, Message: "workflow not found"}
	}
	stored.Active = true
	return stored, nil
}

func (f *fakeEngine) Deactivate(ctx context.Context, id string) (*engine.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deactivateCalls++
	stored, ok := f.workflows[id]
	if !ok {
		return nil, &engine.Error{Operation: "deactivate_workflow", StatusCode: http.StatusNotFound, Message: "workflow not found"}
	}
	stored.Active = false
	return stored, nil
}

func (f *fakeEngine) CreateCredential(ctx context.Context, credential *engine.Credential) (*engine.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCredentialCalls++
	if f.failCreateCredential != nil {
		return nil, f.failCreateCredential
	}

	stored := *credential
	stored.ID = f.nextID("cred")
	f.credentials[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeEngine) DeleteCredential(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failDeleteCredential != nil {
		return f.failDeleteCredential
	}
	f.deletedCredentials = append(f.deletedCredentials, id)
	if _, ok := f.credentials[id]; !ok {
		return &engine.Error{Operation: "delete_credential", StatusCode: http.StatusNotFound, Message: "credential not found"}
	}
	delete(f.credentials, id)
	return nil
}

// fakeChatbots is an in-memory ChatbotRepo.
type fakeChatbots struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*models.ChatbotIntegration
	createErr error

	flagUpdates []flagUpdate
}

type flagUpdate struct {
	id        uuid.UUID
	active    bool
	lastError *string
}

func newFakeChatbots() *fakeChatbots {
	return &fakeChatbots{rows: make(map[uuid.UUID]*models.ChatbotIntegration)}
}

func (f *fakeChatbots) Create(ctx context.Context, chatbot *models.ChatbotIntegration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}
	for _, row := range f.rows {
		if row.TenantID == chatbot.TenantID && row.Platform == chatbot.Platform && row.DeletedAt == nil {
			return repositories.Conflict("a %s chatbot already exists for this tenant", chatbot.Platform)
		}
	}
	if chatbot.ID == uuid.Nil {
		chatbot.ID = uuid.New()
	}
	stored := *chatbot
	f.rows[chatbot.ID] = &stored
	return nil
}

func (f *fakeChatbots) GetByID(ctx context.Context, id uuid.UUID) (*models.ChatbotIntegration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok || row.DeletedAt != nil {
		return nil, repositories.NotFound("chatbot integration %s does not exist", id)
	}
	out := *row
	return &out, nil
}

func (f *fakeChatbots) GetByTenantAndPlatform(ctx context.Context, platform models.Platform) (*models.ChatbotIntegration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.rows {
		if row.Platform == platform && row.DeletedAt == nil {
			out := *row
			return &out, nil
		}
	}
	return nil, repositories.NotFound("no %s chatbot integration exists for this tenant", platform)
}

func (f *fakeChatbots) List(ctx context.Context) ([]models.ChatbotIntegration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.ChatbotIntegration
	for _, row := range f.rows {
		if row.DeletedAt == nil {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeChatbots) Update(ctx context.Context, chatbot *models.ChatbotIntegration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.rows[chatbot.ID]; !ok {
		return repositories.NotFound("chatbot integration %s does not exist", chatbot.ID)
	}
	stored := *chatbot
	f.rows[chatbot.ID] = &stored
	return nil
}

func (f *fakeChatbots) UpdateFlags(ctx context.Context, id uuid.UUID, active bool, lastError *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok || row.DeletedAt != nil {
		return repositories.NotFound("chatbot integration %s does not exist", id)
	}
	row.Active = active
	row.LastError = lastError
	f.flagUpdates = append(f.flagUpdates, flagUpdate{id: id, active: active, lastError: lastError})
	return nil
}

func (f *fakeChatbots) SoftDelete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok || row.DeletedAt != nil {
		return repositories.NotFound("chatbot integration %s does not exist", id)
	}
	now := timeNow()
	row.DeletedAt = &now
	row.Active = false
	return nil
}

func (f *fakeChatbots) CountForTenant(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, row := range f.rows {
		if row.DeletedAt == nil {
			count++
		}
	}
	return count, nil
}

// fakeTenants is an in-memory TenantRepo.
type fakeTenants struct {
	mu       sync.Mutex
	tenant   *models.Tenant
	setCalls []*string
}

func (f *fakeTenants) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tenant == nil || f.tenant.ID != id {
		return nil, repositories.NotFound("tenant %s does not exist", id)
	}
	out := *f.tenant
	return &out, nil
}

func (f *fakeTenants) SetSharedAuthCredentialID(ctx context.Context, id uuid.UUID, credentialID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tenant == nil || f.tenant.ID != id {
		return repositories.NotFound("tenant %s does not exist", id)
	}
	f.tenant.SharedAuthCredentialID = credentialID
	f.setCalls = append(f.setCalls, credentialID)
	return nil
}

// fakeEvents records published lifecycle events.
type fakeEvents struct {
	mu     sync.Mutex
	events []*kafka.ChatbotEvent
	err    error
}

func (f *fakeEvents) Publish(ctx context.Context, event *kafka.ChatbotEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

// stubValidator accepts everything and reports telegram credential shapes.
type stubValidator struct {
	platform models.Platform
	result   *validators.Result
	err      error
}

func (v *stubValidator) Platform() models.Platform { return v.platform }

func (v *stubValidator) Validate(ctx context.Context, config map[string]any) (*validators.Result, error) {
	if v.err != nil {
		return nil, v.err
	}
	if v.result != nil {
		return v.result, nil
	}
	return &validators.Result{Valid: true, Identity: "test_bot"}, nil
}

func (v *stubValidator) CredentialType() string { return "telegramApi" }

func (v *stubValidator) BuildSecretPayload(config map[string]any) map[string]any {
	return map[string]any{"accessToken": config["token"]}
}

// stubValidatorSource resolves every platform to the same validator.
type stubValidatorSource struct {
	validator validators.PlatformValidator
	err       error
}

func (s *stubValidatorSource) Get(platform models.Platform) (validators.PlatformValidator, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.validator, nil
}
