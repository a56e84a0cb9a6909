package models

import (
	"fmt"
	"strings"
)

// Platform identifies the messaging platform a chatbot integration targets.
type Platform string

const (
	PlatformTelegram  Platform = "telegram"
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformInstagram Platform = "instagram"
	PlatformMessenger Platform = "messenger"
)

// AllPlatforms lists every platform the service knows about, whether or not
// credential validation is implemented for it yet.
var AllPlatforms = []Platform{
	PlatformTelegram,
	PlatformWhatsApp,
	PlatformInstagram,
	PlatformMessenger,
}

// ParsePlatform normalizes and validates a platform string.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

func (p Platform) String() string {
	return string(p)
}
