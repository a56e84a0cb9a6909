package validators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DefaultGraphAPIBaseURL is the Meta Graph API host used for WhatsApp
// Business credentials.
const DefaultGraphAPIBaseURL = "https://graph.facebook.com/v19.0"

// WhatsAppValidator validates WhatsApp Business access tokens against the
// Graph API.
type WhatsAppValidator struct {
	http    *httpclient.Client
	baseURL string
	logger  ectologger.Logger
}

func NewWhatsAppValidator(http *httpclient.Client, logger ectologger.Logger) *WhatsAppValidator {
	return &WhatsAppValidator{
		http:    http,
		baseURL: DefaultGraphAPIBaseURL,
		logger:  logger,
	}
}

// WithBaseURL overrides the API host, for tests.
func (v *WhatsAppValidator) WithBaseURL(baseURL string) *WhatsAppValidator {
	v.baseURL = baseURL
	return v
}

func (v *WhatsAppValidator) Platform() models.Platform {
	return models.PlatformWhatsApp
}

func (v *WhatsAppValidator) Validate(ctx context.Context, config map[string]any) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "WhatsAppValidator.Validate")
	defer span.End()

	token, err := stringField(config, "access_token")
	if err != nil {
		return &Result{Valid: false, Detail: err.Error()}, nil
	}
	phoneNumberID, err := stringField(config, "phone_number_id")
	if err != nil {
		return &Result{Valid: false, Detail: err.Error()}, nil
	}

	// Syntactic pre-flight. Graph tokens are long opaque strings; catch the
	// obvious paste errors before calling out.
	if len(token) < 32 {
		return &Result{Valid: false, Detail: "access token is too short to be a Graph API token"}, nil
	}

	url := fmt.Sprintf("%s/%s?access_token=%s", v.baseURL, phoneNumberID, token)
	resp, err := v.http.Get(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("graph api call failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		detail := fmt.Sprintf("graph api rejected the credentials (status %d)", resp.StatusCode)
		if err := json.Unmarshal(resp.Body, &failure); err == nil && failure.Error.Message != "" {
			detail = failure.Error.Message
		}
		return &Result{Valid: false, Detail: detail}, nil
	}

	var payload struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		VerifiedName       string `json:"verified_name"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode graph api response: %w", err)
	}

	identity := payload.VerifiedName
	if identity == "" {
		identity = payload.DisplayPhoneNumber
	}

	v.logger.WithContext(ctx).Debugf("Validated whatsapp number %s", payload.DisplayPhoneNumber)
	return &Result{Valid: true, Identity: identity}, nil
}

func (v *WhatsAppValidator) CredentialType() string {
	return "whatsAppApi"
}

func (v *WhatsAppValidator) BuildSecretPayload(config map[string]any) map[string]any {
	token, _ := stringField(config, "access_token")
	phoneNumberID, _ := stringField(config, "phone_number_id")
	return map[string]any{
		"accessToken":   token,
		"phoneNumberId": phoneNumberID,
	}
}
