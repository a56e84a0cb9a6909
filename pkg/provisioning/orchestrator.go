// Package provisioning contains the chatbot provisioning saga and its
// supporting state machines: webhook identifier repair, activation retry,
// pre-state-change drift reconciliation, and deprovisioning teardown.
package provisioning

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validators"
	"github.com/Ramsey-B/fern/pkg/workflow"
)

// AuthCredentialType is the engine credential type of the tenant's shared
// bearer-token credential.
const AuthCredentialType = "httpBearerAuth"

// ProvisionInput is a validated provisioning request for one platform.
type ProvisionInput struct {
	Platform       models.Platform
	PlatformConfig map[string]any
	AIModel        string
	AITemperature  float64
	SystemPrompt   string
}

// Orchestrator drives the provisioning saga: validate, create remote
// credentials, build and submit the workflow, repair the webhook identifier,
// activate, persist. Any failure before persistence compensates every remote
// resource created so far, in reverse order.
type Orchestrator struct {
	chatbots   repositories.ChatbotRepo
	tenants    repositories.TenantRepo
	engine     Engine
	validators ValidatorSource
	builder    *workflow.Builder
	webhooks   *WebhookReconciler
	activator  *ActivationRetrier
	events     EventPublisher
	memory     *MemorySeeder
	logger     ectologger.Logger
	timing     Timing
}

// OrchestratorDeps bundles the orchestrator's collaborators.
type OrchestratorDeps struct {
	Chatbots   repositories.ChatbotRepo
	Tenants    repositories.TenantRepo
	Engine     Engine
	Validators ValidatorSource
	Builder    *workflow.Builder
	Webhooks   *WebhookReconciler
	Activator  *ActivationRetrier

	// Events and Memory are optional; both are best-effort side channels.
	Events EventPublisher
	Memory *MemorySeeder
}

// NewOrchestrator creates a provisioning orchestrator
func NewOrchestrator(deps OrchestratorDeps, timing Timing, logger ectologger.Logger) *Orchestrator {
	return &Orchestrator{
		chatbots:   deps.Chatbots,
		tenants:    deps.Tenants,
		engine:     deps.Engine,
		validators: deps.Validators,
		builder:    deps.Builder,
		webhooks:   deps.Webhooks,
		activator:  deps.Activator,
		events:     deps.Events,
		memory:     deps.Memory,
		logger:     logger,
		timing:     timing,
	}
}

// sagaState tracks the remote resources a saga instance has created, for
// reverse-order compensation. authCredentialReused marks a shared credential
// that predates this saga and must never be deleted by its rollback.
type sagaState struct {
	tenantID             uuid.UUID
	platformCredentialID string
	authCredentialID     string
	authCredentialReused bool
	workflowID           string
}

// Provision runs the full creation saga for one (tenant, platform) pair.
// On success the returned record reflects whatever activation achieved: a
// workflow that was created but never activated is persisted with
// active=false and the activation error recorded, not rolled back.
func (o *Orchestrator) Provision(ctx context.Context, input ProvisionInput) (*models.ChatbotIntegration, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.Provision")
	defer span.End()

	start := time.Now()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	if !models.TemperatureInRange(input.AITemperature) {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(
			"ai_temperature must be between %.1f and %.1f", models.MinTemperature, models.MaxTemperature))
	}

	// Uniqueness pre-check. Check-then-act with no lock: two concurrent
	// requests can both pass and both create remote resources. The unique
	// index behind Create is the safety net; the loser's compensation
	// still runs, so the race costs transient engine churn, not state.
	existing, err := o.chatbots.GetByTenantAndPlatform(ctx, input.Platform)
	if err != nil && !repositories.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		metrics.RecordSaga(string(input.Platform), "conflict", time.Since(start).Seconds())
		return nil, repositories.Conflict("a %s chatbot already exists for this tenant", input.Platform)
	}

	validator, err := o.validators.Get(input.Platform)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := validator.Validate(ctx, input.PlatformConfig)
	if err != nil {
		metrics.RecordSaga(string(input.Platform), "validation_error", time.Since(start).Seconds())
		return nil, err
	}
	if !result.Valid {
		metrics.RecordSaga(string(input.Platform), "invalid_credentials", time.Since(start).Seconds())
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(
			"%s credentials rejected: %s", input.Platform, result.Detail))
	}

	state := &sagaState{tenantID: tenantID}

	record, err := o.createRemoteResources(ctx, input, validator, state)
	if err != nil {
		o.compensate(ctx, state)
		metrics.RecordSaga(string(input.Platform), "failed", time.Since(start).Seconds())
		return nil, err
	}

	if err := o.chatbots.Create(ctx, record); err != nil {
		// Persistence lost the race (or the database is down). The remote
		// footprint must not outlive the failed attempt regardless of how
		// far activation got.
		o.compensate(ctx, state)
		metrics.RecordSaga(string(input.Platform), "persist_failed", time.Since(start).Seconds())
		return nil, err
	}

	o.memorySeed(ctx, record)
	o.publishEvent(ctx, kafka.EventChatbotProvisioned, record)

	metrics.RecordSaga(string(input.Platform), "ok", time.Since(start).Seconds())
	o.logger.WithContext(ctx).WithFields(map[string]any{
		"chatbot_id":  record.ID,
		"platform":    record.Platform,
		"workflow_id": state.workflowID,
		"active":      record.Active,
	}).Info("Chatbot provisioned")
	return record, nil
}

// createRemoteResources runs saga steps three through seven, filling state
// as each remote resource appears. The caller compensates on any error.
func (o *Orchestrator) createRemoteResources(ctx context.Context, input ProvisionInput, validator validators.PlatformValidator, state *sagaState) (*models.ChatbotIntegration, error) {
	platformCred, err := o.engine.CreateCredential(ctx, &engine.Credential{
		Name: fmt.Sprintf("fern-%s-%s", input.Platform, state.tenantID),
		Type: validator.CredentialType(),
		Data: validator.BuildSecretPayload(input.PlatformConfig),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create platform credential: %w", err)
	}
	state.platformCredentialID = platformCred.ID

	if err := o.ensureSharedAuthCredential(ctx, state); err != nil {
		return nil, err
	}

	definition, err := o.builder.Build(workflow.BuildInput{
		TenantID:             state.tenantID,
		Platform:             input.Platform,
		AIModel:              input.AIModel,
		Temperature:          input.AITemperature,
		SystemPrompt:         input.SystemPrompt,
		PlatformCredentialID: state.platformCredentialID,
		AuthCredentialID:     state.authCredentialID,
		CredentialType:       validator.CredentialType(),
	})
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := o.engine.CreateWorkflow(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}
	state.workflowID = created.ID

	if err := o.webhooks.EnsureWebhook(ctx, state.workflowID); err != nil {
		return nil, err
	}

	record := &models.ChatbotIntegration{
		TenantID:                   state.tenantID,
		Platform:                   input.Platform,
		PlatformConfig:             database.NewJSONB(input.PlatformConfig),
		RemoteWorkflowID:           &state.workflowID,
		RemotePlatformCredentialID: &state.platformCredentialID,
		RemoteAuthCredentialID:     &state.authCredentialID,
		AIModel:                    input.AIModel,
		AITemperature:              input.AITemperature,
		SystemPrompt:               input.SystemPrompt,
	}

	// Activation failure is not fatal: the workflow exists and the tenant
	// can retry activation later through the state endpoint.
	if err := o.activator.Activate(ctx, state.workflowID); err != nil {
		msg := err.Error()
		record.Active = false
		record.LastError = &msg
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"workflow_id": state.workflowID,
			"platform":    input.Platform,
		}).Warn("Workflow activation failed, persisting inactive integration")
	} else {
		record.Active = true
	}

	return record, nil
}

// ensureSharedAuthCredential resolves the tenant's shared bearer credential,
// minting and persisting a new one when absent. Only a freshly minted
// credential is eligible for compensation.
func (o *Orchestrator) ensureSharedAuthCredential(ctx context.Context, state *sagaState) error {
	tenant, err := o.tenants.Get(ctx, state.tenantID)
	if err != nil {
		return err
	}

	if tenant.SharedAuthCredentialID != nil && *tenant.SharedAuthCredentialID != "" {
		state.authCredentialID = *tenant.SharedAuthCredentialID
		state.authCredentialReused = true
		return nil
	}

	token, err := mintBearerToken()
	if err != nil {
		return fmt.Errorf("failed to mint auth token: %w", err)
	}

	authCred, err := o.engine.CreateCredential(ctx, &engine.Credential{
		Name: fmt.Sprintf("fern-auth-%s", state.tenantID),
		Type: AuthCredentialType,
		Data: map[string]any{"token": token},
	})
	if err != nil {
		return fmt.Errorf("failed to create shared auth credential: %w", err)
	}
	state.authCredentialID = authCred.ID

	if err := o.tenants.SetSharedAuthCredentialID(ctx, state.tenantID, &authCred.ID); err != nil {
		return err
	}
	return nil
}

// compensate deletes, in reverse creation order, every remote resource the
// saga created. It runs under a detached bounded context so a cancelled
// request still cleans up, treats resource-already-gone as success, and only
// logs failures: the saga's outward error is always the original one.
func (o *Orchestrator) compensate(ctx context.Context, state *sagaState) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timing.CompensationTimeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "Orchestrator.Compensate")
	defer span.End()

	if state.workflowID != "" {
		o.compensateDelete(ctx, "workflow", state.workflowID, o.engine.DeleteWorkflow)
	}

	if state.authCredentialID != "" && !state.authCredentialReused {
		o.compensateDelete(ctx, "auth_credential", state.authCredentialID, o.engine.DeleteCredential)
		// The tenant record was pointed at the credential when it was
		// minted; leave no dangling reference behind.
		if err := o.tenants.SetSharedAuthCredentialID(ctx, state.tenantID, nil); err != nil {
			o.logger.WithContext(ctx).WithError(err).Warn("Failed to clear shared auth credential reference during rollback")
		}
	}

	if state.platformCredentialID != "" {
		o.compensateDelete(ctx, "platform_credential", state.platformCredentialID, o.engine.DeleteCredential)
	}
}

func (o *Orchestrator) compensateDelete(ctx context.Context, resource, id string, del func(context.Context, string) error) {
	err := del(ctx, id)
	if err != nil && !engine.IsNotFound(err) {
		metrics.RecordCompensation(resource, "error")
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"resource":    resource,
			"resource_id": id,
		}).Error("Compensating delete failed, remote resource may be orphaned")
		return
	}

	metrics.RecordCompensation(resource, "ok")
	o.logger.WithContext(ctx).WithFields(map[string]any{
		"resource":    resource,
		"resource_id": id,
	}).Debug("Compensated remote resource")
}

func (o *Orchestrator) memorySeed(ctx context.Context, record *models.ChatbotIntegration) {
	if o.memory == nil {
		return
	}
	o.memory.Seed(ctx, record.TenantID, record.Platform, record.SystemPrompt)
}

func (o *Orchestrator) publishEvent(ctx context.Context, eventType string, record *models.ChatbotIntegration) {
	if o.events == nil {
		return
	}

	err := o.events.Publish(ctx, &kafka.ChatbotEvent{
		Type:       eventType,
		TenantID:   record.TenantID,
		ChatbotID:  record.ID,
		Platform:   record.Platform,
		WorkflowID: record.RemoteWorkflowID,
		Active:     record.Active,
	})
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
			"chatbot_id": record.ID,
		}).Warn("Failed to publish lifecycle event")
	}
}

// mintBearerToken generates the tenant-scoped bearer token stored in the
// shared auth credential.
func mintBearerToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
