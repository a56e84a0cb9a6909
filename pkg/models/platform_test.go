package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestParsePlatformNormalizes(t *testing.T) {
	for raw, want := range map[string]models.Platform{
		"telegram":   models.PlatformTelegram,
		" Telegram ": models.PlatformTelegram,
		"WHATSAPP":   models.PlatformWhatsApp,
		"instagram":  models.PlatformInstagram,
		"messenger":  models.PlatformMessenger,
	} {
		got, err := models.ParsePlatform(raw)
		require.NoError(t, err, "input %q", raw)
		assert.Equal(t, want, got)
	}
}

func TestParsePlatformRejectsUnknown(t *testing.T) {
	_, err := models.ParsePlatform("smoke-signals")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smoke-signals")

	_, err = models.ParsePlatform("")
	require.Error(t, err)
}

func TestTemperatureBoundsAreInclusive(t *testing.T) {
	assert.True(t, models.TemperatureInRange(0.0))
	assert.True(t, models.TemperatureInRange(2.0))
	assert.True(t, models.TemperatureInRange(0.7))
	assert.False(t, models.TemperatureInRange(-0.1))
	assert.False(t, models.TemperatureInRange(2.1))
}
