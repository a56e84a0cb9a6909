package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	memorySeedTimeout = 5 * time.Second
	memorySeedTTL     = 24 * time.Hour
)

// MemorySeeder writes a synthetic system message into the conversational
// memory list a newly provisioned chatbot's AI agent reads from, so the first
// real conversation starts with context. Seeding is fire-and-forget: failures
// are logged and never block or fail the saga.
type MemorySeeder struct {
	store  MemoryStore
	logger ectologger.Logger
}

// NewMemorySeeder creates a memory seeder
func NewMemorySeeder(store MemoryStore, logger ectologger.Logger) *MemorySeeder {
	return &MemorySeeder{store: store, logger: logger}
}

type memoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Seed pushes the system prompt as the first memory entry. It detaches from
// the caller's context so a cancelled request doesn't abort the write.
func (s *MemorySeeder) Seed(ctx context.Context, tenantID uuid.UUID, platform models.Platform, systemPrompt string) {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), memorySeedTimeout)
	defer cancel()

	key := fmt.Sprintf("chatbot:memory:%s:%s", tenantID, platform)
	payload, err := json.Marshal(memoryMessage{
		Role:      "system",
		Content:   systemPrompt,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to serialize memory seed message")
		return
	}

	if err := s.store.RPush(ctx, key, payload); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"platform":  platform,
		}).Warn("Failed to seed conversational memory")
		return
	}

	if err := s.store.Expire(ctx, key, memorySeedTTL); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to set memory seed TTL")
	}
}
