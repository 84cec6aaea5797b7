package platform

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPlatform is returned for identifiers that name no known platform.
	ErrInvalidPlatform = errors.New("invalid platform")
	// ErrUnsupportedPlatform is returned for known platforms without an implementation.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Platform is the closed set of social networks the pipeline knows about.
type Platform int

const (
	LinkedIn Platform = iota + 1
	Twitter
	Facebook
	Instagram
	TikTok
)

var identifiers = map[Platform]string{
	LinkedIn:  "linkedin",
	Twitter:   "twitter",
	Facebook:  "facebook",
	Instagram: "instagram",
	TikTok:    "tiktok",
}

var displayNames = map[Platform]string{
	LinkedIn:  "LinkedIn",
	Twitter:   "Twitter",
	Facebook:  "Facebook",
	Instagram: "Instagram",
	TikTok:    "TikTok",
}

// All lists every known platform in declaration order.
func All() []Platform {
	return []Platform{LinkedIn, Twitter, Facebook, Instagram, TikTok}
}

// Parse maps an identifier such as "LinkedIn" or " twitter " to its Platform.
func Parse(s string) (Platform, error) {
	id := strings.ToLower(strings.TrimSpace(s))
	for p, name := range identifiers {
		if name == id {
			return p, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidPlatform, s)
}

func (p Platform) String() string {
	if name, ok := identifiers[p]; ok {
		return name
	}

	return fmt.Sprintf("platform(%d)", int(p))
}

// DisplayName is the human-facing spelling used in warnings and messages.
func (p Platform) DisplayName() string {
	if name, ok := displayNames[p]; ok {
		return name
	}

	return p.String()
}
