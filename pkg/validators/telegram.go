package validators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DefaultTelegramAPIBaseURL is the Telegram Bot API host.
const DefaultTelegramAPIBaseURL = "https://api.telegram.org"

// telegramTokenPattern matches bot tokens: numeric bot id, a colon, then the
// secret part.
var telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{30,}$`)

// TelegramValidator validates Telegram bot tokens via getMe.
type TelegramValidator struct {
	http    *httpclient.Client
	baseURL string
	logger  ectologger.Logger
}

func NewTelegramValidator(http *httpclient.Client, logger ectologger.Logger) *TelegramValidator {
	return &TelegramValidator{
		http:    http,
		baseURL: DefaultTelegramAPIBaseURL,
		logger:  logger,
	}
}

// WithBaseURL overrides the API host, for tests.
func (v *TelegramValidator) WithBaseURL(baseURL string) *TelegramValidator {
	v.baseURL = baseURL
	return v
}

func (v *TelegramValidator) Platform() models.Platform {
	return models.PlatformTelegram
}

func (v *TelegramValidator) Validate(ctx context.Context, config map[string]any) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "TelegramValidator.Validate")
	defer span.End()

	token, err := stringField(config, "bot_token")
	if err != nil {
		return &Result{Valid: false, Detail: err.Error()}, nil
	}

	// Syntactic pre-flight: reject malformed tokens before any network call.
	if !telegramTokenPattern.MatchString(token) {
		return &Result{Valid: false, Detail: "bot token does not match the expected <bot-id>:<secret> shape"}, nil
	}

	resp, err := v.http.Get(ctx, fmt.Sprintf("%s/bot%s/getMe", v.baseURL, token), nil)
	if err != nil {
		return nil, fmt.Errorf("telegram getMe call failed: %w", err)
	}

	var payload struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		Result      struct {
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode telegram getMe response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !payload.OK {
		detail := payload.Description
		if detail == "" {
			detail = fmt.Sprintf("telegram rejected the token (status %d)", resp.StatusCode)
		}
		return &Result{Valid: false, Detail: detail}, nil
	}

	v.logger.WithContext(ctx).Debugf("Validated telegram bot @%s", payload.Result.Username)
	return &Result{Valid: true, Identity: payload.Result.Username}, nil
}

func (v *TelegramValidator) CredentialType() string {
	return "telegramApi"
}

func (v *TelegramValidator) BuildSecretPayload(config map[string]any) map[string]any {
	token, _ := stringField(config, "bot_token")
	return map[string]any{
		"accessToken": token,
	}
}
