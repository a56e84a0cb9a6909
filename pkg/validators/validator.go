package validators

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Result is the outcome of validating platform credentials.
type Result struct {
	Valid bool
	// Identity is the platform's name for the credentialed account (bot
	// username, business phone number), when the platform reports one.
	Identity string
	// Detail carries the platform's rejection reason when Valid is false.
	Detail string
}

// PlatformValidator validates one platform's credentials and knows how the
// workflow engine stores them. The set of implementations is closed: adding a
// platform means adding a variant here, not growing a switch elsewhere.
type PlatformValidator interface {
	Platform() models.Platform
	// Validate checks the platform config syntactically first (no network
	// call) and then against the live platform.
	Validate(ctx context.Context, config map[string]any) (*Result, error)
	// CredentialType is the engine's credential type name for this platform.
	CredentialType() string
	// BuildSecretPayload maps the platform config onto the engine's
	// credential data shape.
	BuildSecretPayload(config map[string]any) map[string]any
}

// Registry holds the closed set of platform validators.
type Registry struct {
	validators map[models.Platform]PlatformValidator
	logger     ectologger.Logger
}

// NewRegistry builds the registry with every supported platform. Platforms
// accepted for progressive rollout but without live validation yet are
// registered as logged no-ops.
func NewRegistry(http *httpclient.Client, logger ectologger.Logger) *Registry {
	r := &Registry{
		validators: make(map[models.Platform]PlatformValidator),
		logger:     logger,
	}

	r.Register(NewTelegramValidator(http, logger))
	r.Register(NewWhatsAppValidator(http, logger))
	r.Register(newUnsupportedValidator(models.PlatformInstagram, logger))
	r.Register(newUnsupportedValidator(models.PlatformMessenger, logger))

	return r
}

// Register adds or replaces a validator.
func (r *Registry) Register(v PlatformValidator) {
	r.validators[v.Platform()] = v
}

// Get returns the validator for a platform.
func (r *Registry) Get(platform models.Platform) (PlatformValidator, error) {
	v, ok := r.validators[platform]
	if !ok {
		return nil, fmt.Errorf("no validator registered for platform %q", platform)
	}
	return v, nil
}

// unsupportedValidator accepts any config without checking it. Used while a
// platform is being rolled out and live validation is not implemented yet.
type unsupportedValidator struct {
	platform models.Platform
	logger   ectologger.Logger
}

func newUnsupportedValidator(platform models.Platform, logger ectologger.Logger) *unsupportedValidator {
	return &unsupportedValidator{platform: platform, logger: logger}
}

func (v *unsupportedValidator) Platform() models.Platform {
	return v.platform
}

func (v *unsupportedValidator) Validate(ctx context.Context, config map[string]any) (*Result, error) {
	v.logger.WithContext(ctx).Warnf("Credential validation for platform %s is not implemented, accepting without checks", v.platform)
	return &Result{Valid: true, Detail: "validation not implemented for this platform"}, nil
}

func (v *unsupportedValidator) CredentialType() string {
	return "httpHeaderAuth"
}

func (v *unsupportedValidator) BuildSecretPayload(config map[string]any) map[string]any {
	return config
}

// stringField extracts a non-empty string field from a platform config blob.
func stringField(config map[string]any, key string) (string, error) {
	raw, ok := config[key]
	if !ok {
		return "", fmt.Errorf("platform config is missing %q", key)
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", fmt.Errorf("platform config field %q must be a non-empty string", key)
	}
	return value, nil
}
