package linkedin

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"promoter/internal/domain"
	"promoter/internal/platform"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"golang.org/x/oauth2"
	"mvdan.cc/xurls/v2"
)

const (
	DefaultAuthURL  = "https://www.linkedin.com/oauth/v2/authorization"
	DefaultTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
	DefaultAPIURL   = "https://api.linkedin.com/v2"

	postURLFormat = "https://www.linkedin.com/feed/update/%s/"

	maxContentLength  = 3000
	warnContentLength = 2500
	refreshSkew       = 5 * time.Minute
	maxResponseBytes  = 1 << 20
	defaultTokenTTL   = time.Hour
)

var scopes = []string{"openid", "profile", "w_member_social", "email"}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIURL       string
}

// TokenStore persists grants obtained while refreshing before a post.
type TokenStore interface {
	SaveGrant(ctx context.Context, userID int64, grant domain.Grant) error
}

type Manager struct {
	oauth   oauth2.Config
	apiURL  string
	client  *http.Client
	breaker circuitbreaker.CircuitBreaker[*http.Response]
	tokens  TokenStore
	now     func() time.Time
	log     *slog.Logger
}

func New(cfg Config, client *http.Client, tokens TokenStore, log *slog.Logger) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	authURL := cmp.Or(cfg.AuthURL, DefaultAuthURL)
	tokenURL := cmp.Or(cfg.TokenURL, DefaultTokenURL)

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError)
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(30 * time.Second).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			log.Warn("LinkedIn circuit breaker changed state",
				"from", event.OldState,
				"to", event.NewState)
		}).
		Build()

	return &Manager{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:  strings.TrimRight(cmp.Or(cfg.APIURL, DefaultAPIURL), "/"),
		client:  client,
		breaker: breaker,
		tokens:  tokens,
		now:     time.Now,
		log:     log,
	}
}

func (m *Manager) CheckAuthorization(user domain.User) bool {
	return user.LinkedInAuthorized &&
		user.AccessToken != "" &&
		user.LinkedInNativeID != ""
}

func (m *Manager) AuthURL(redirectURI, state string) string {
	conf := m.oauth
	if redirectURI != "" {
		conf.RedirectURL = redirectURI
	}

	return conf.AuthCodeURL(state)
}

func (m *Manager) ValidateContent(text string) platform.Validation {
	v := platform.Validation{Valid: true}

	length := utf8.RuneCountInString(text)
	switch {
	case length > maxContentLength:
		v.Valid = false
		v.Errors = append(v.Errors, fmt.Sprintf(
			"Content exceeds LinkedIn's %d character limit (%d characters)", maxContentLength, length))
	case length > warnContentLength:
		v.Warnings = append(v.Warnings, fmt.Sprintf(
			"Content is %d characters; LinkedIn collapses long posts behind \"see more\"", length))
	}

	if links := xurls.Strict().FindAllString(text, -1); len(links) > 1 {
		v.Warnings = append(v.Warnings, fmt.Sprintf(
			"Content contains %d links; LinkedIn previews only the first", len(links)))
	}

	return v
}

// RefreshToken exchanges the user's refresh token. An invalid_grant answer
// means the grant is gone for good.
func (m *Manager) RefreshToken(
	ctx context.Context,
	user domain.User,
) (domain.Grant, platform.RefreshOutcome, error) {
	if user.RefreshToken == "" {
		return domain.Grant{}, platform.RefreshFailed, errors.New("no refresh token stored")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: user.RefreshToken})

	tok, err := src.Token()
	if err != nil {
		if isInvalidGrant(err) {
			return domain.Grant{}, platform.RevokedOrExpired, fmt.Errorf("refresh token: %w", err)
		}

		return domain.Grant{}, platform.RefreshFailed, fmt.Errorf("refresh token: %w", err)
	}

	grant := domain.Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: cmp.Or(tok.RefreshToken, user.RefreshToken),
		ExpiresAt:    tok.Expiry,
	}
	if grant.ExpiresAt.IsZero() {
		grant.ExpiresAt = m.now().Add(defaultTokenTTL)
	}

	return grant, platform.Refreshed, nil
}

func isInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}

	return retrieveErr.ErrorCode == "invalid_grant" ||
		bytes.Contains(retrieveErr.Body, []byte("invalid_grant"))
}

type ugcPost struct {
	Author          string         `json:"author"`
	LifecycleState  string         `json:"lifecycleState"`
	SpecificContent map[string]any `json:"specificContent"`
	Visibility      map[string]any `json:"visibility"`
}

func (m *Manager) PostContent(
	ctx context.Context,
	user domain.User,
	text string,
	contentID int64,
) platform.PostingResult {
	if !m.CheckAuthorization(user) {
		return platform.PostingResult{ErrorMessage: "User not authorized for LinkedIn"}
	}

	user, outcome, err := m.ensureFreshToken(ctx, user)
	switch outcome {
	case platform.Refreshed:
	case platform.RevokedOrExpired:
		return platform.PostingResult{
			ErrorMessage: "LinkedIn token is invalid and refresh failed. Please re-authenticate.",
		}
	default:
		return platform.PostingResult{
			ErrorMessage: fmt.Sprintf("LinkedIn token refresh failed temporarily: %v", err),
			Transient:    true,
		}
	}

	body, err := json.Marshal(ugcPost{
		Author:         "urn:li:person:" + user.LinkedInNativeID,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]string{"text": text},
				"shareMediaCategory": "NONE",
			},
		},
		Visibility: map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	})
	if err != nil {
		return platform.PostingResult{ErrorMessage: fmt.Sprintf("encode LinkedIn post: %v", err)}
	}

	resp, err := failsafe.With(m.breaker).WithContext(ctx).Get(func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL+"/ugcPosts", bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}

		req.Header.Set("Authorization", "Bearer "+user.AccessToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

		return m.client.Do(req)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return platform.PostingResult{
				ErrorMessage: "LinkedIn API is temporarily unavailable",
				Transient:    true,
			}
		}

		return platform.PostingResult{
			ErrorMessage: fmt.Sprintf("LinkedIn request failed: %v", err),
			Transient:    true,
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			m.log.ErrorContext(ctx, "Failed to close LinkedIn response body",
				"error", closeErr,
				"contentID", contentID)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return platform.PostingResult{
			ErrorMessage: fmt.Sprintf("read LinkedIn response: %v", err),
			Transient:    true,
		}
	}

	return m.postingResult(ctx, resp, respBody, user.ID, contentID)
}

func (m *Manager) postingResult(
	ctx context.Context,
	resp *http.Response,
	body []byte,
	userID int64,
	contentID int64,
) platform.PostingResult {
	var raw json.RawMessage
	if json.Valid(body) {
		raw = body
	}

	switch status := resp.StatusCode; {
	case status == http.StatusOK || status == http.StatusCreated:
		postID := resp.Header.Get("X-Restli-Id")
		if postID == "" && raw != nil {
			var created struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &created); err == nil {
				postID = created.ID
			}
		}

		result := platform.PostingResult{Success: true, PostID: postID, Raw: raw}
		if postID != "" {
			result.PostURL = fmt.Sprintf(postURLFormat, postID)
		}

		m.log.InfoContext(ctx, "LinkedIn post is published",
			"userID", userID,
			"contentID", contentID,
			"postID", postID)

		return result
	case status == http.StatusUnauthorized:
		return platform.PostingResult{
			ErrorMessage: "LinkedIn authentication error (401). Please re-connect your LinkedIn account.",
			Raw:          raw,
		}
	case status == http.StatusForbidden:
		return platform.PostingResult{
			ErrorMessage: "LinkedIn permission denied (403). The app may be missing the w_member_social scope.",
			Raw:          raw,
		}
	case status == http.StatusTooManyRequests:
		return platform.PostingResult{
			ErrorMessage: "LinkedIn rate limit exceeded (429)",
			Transient:    true,
			Raw:          raw,
		}
	default:
		return platform.PostingResult{
			ErrorMessage: fmt.Sprintf("LinkedIn API error: %d - %s", status, strings.TrimSpace(string(body))),
			Transient:    status >= http.StatusInternalServerError,
			Raw:          raw,
		}
	}
}

// ensureFreshToken refreshes tokens that expire within refreshSkew and
// persists the new grant.
// ensureFreshToken refreshes a token that expires within refreshSkew. A token
// that needs no refresh reports Refreshed.
func (m *Manager) ensureFreshToken(
	ctx context.Context,
	user domain.User,
) (domain.User, platform.RefreshOutcome, error) {
	if user.TokenExpiresAt == nil || m.now().Add(refreshSkew).Before(*user.TokenExpiresAt) {
		return user, platform.Refreshed, nil
	}

	if user.RefreshToken == "" {
		if m.now().Before(*user.TokenExpiresAt) {
			return user, platform.Refreshed, nil
		}

		return user, platform.RevokedOrExpired, errors.New("access token expired and no refresh token stored")
	}

	grant, outcome, err := m.RefreshToken(ctx, user)
	if outcome != platform.Refreshed {
		m.log.WarnContext(ctx, "Failed to refresh LinkedIn token before posting",
			"error", err,
			"userID", user.ID,
			"outcome", outcome.String())

		return user, outcome, err
	}

	if m.tokens != nil {
		if err = m.tokens.SaveGrant(ctx, user.ID, grant); err != nil {
			m.log.ErrorContext(ctx, "Failed to save refreshed LinkedIn token",
				"error", err,
				"userID", user.ID)
		}
	}

	user.AccessToken = grant.AccessToken
	user.RefreshToken = grant.RefreshToken
	user.TokenExpiresAt = &grant.ExpiresAt

	return user, platform.Refreshed, nil
}
