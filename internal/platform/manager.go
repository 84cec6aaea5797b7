package platform

import (
	"context"
	"encoding/json"

	"promoter/internal/domain"
)

// PostingResult carries provider failures as data instead of errors.
type PostingResult struct {
	Success      bool
	PostURL      string
	PostID       string
	ErrorMessage string
	// Transient marks failures worth retrying later (rate limits, 5xx, network).
	Transient bool
	Raw       json.RawMessage
}

type Validation struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Manager is the capability set every platform implementation provides.
type Manager interface {
	PostContent(ctx context.Context, user domain.User, text string, contentID int64) PostingResult
	CheckAuthorization(user domain.User) bool
	AuthURL(redirectURI, state string) string
	ValidateContent(text string) Validation
}

type RefreshOutcome int

const (
	Refreshed RefreshOutcome = iota + 1
	RefreshFailed
	RevokedOrExpired
)

func (o RefreshOutcome) String() string {
	switch o {
	case Refreshed:
		return "refreshed"
	case RefreshFailed:
		return "failed"
	case RevokedOrExpired:
		return "revoked_or_expired"
	default:
		return "unknown"
	}
}

// TokenRefresher is implemented by managers whose platform issues refresh tokens.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, user domain.User) (domain.Grant, RefreshOutcome, error)
}

// DefaultValidation accepts any text. Managers without format rules use it.
func DefaultValidation(string) Validation {
	return Validation{Valid: true}
}
