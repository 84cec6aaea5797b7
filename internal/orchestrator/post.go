package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"promoter/internal/database"
	"promoter/internal/domain"
	"promoter/internal/platform"
)

// AuthorizationError is returned when a user has not connected the platform.
type AuthorizationError struct {
	Platform platform.Platform
}

func (e *AuthorizationError) Error() string {
	name := e.Platform.DisplayName()

	return fmt.Sprintf("User is not authorized for %s posting. Please connect/re-connect your %s account.", name, name)
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrNotAuthorized
}

type PostRequest struct {
	UserID    int64
	ContentID int64
	Platform  platform.Platform
	Text      string
	// TaskID makes retries of the same task reuse an already recorded share.
	TaskID string
}

type PostReport struct {
	Share   domain.Share
	PostURL string
}

// Post publishes text for the user and records the share. Errors wrapping
// ErrNotAuthorized, ErrPostRejected, ErrCredentialExpired or
// database.ErrNotFound are final; anything else may succeed on retry.
func (o *Orchestrator) Post(ctx context.Context, req PostRequest) (PostReport, error) {
	user, err := o.store.GetUser(ctx, req.UserID)
	if err != nil {
		return PostReport{}, fmt.Errorf("load user: %w", err)
	}

	if _, err = o.store.GetContent(ctx, req.ContentID); err != nil {
		return PostReport{}, fmt.Errorf("load content: %w", err)
	}

	manager, err := o.registry.Manager(req.Platform)
	if err != nil {
		return PostReport{}, err
	}

	if !manager.CheckAuthorization(user) {
		return PostReport{}, &AuthorizationError{Platform: req.Platform}
	}

	share, _, err := o.publish(ctx, user, req.ContentID, req.Platform, manager, req.Text,
		shareKey(req.TaskID, req.Platform))
	if err != nil {
		return PostReport{}, err
	}

	return PostReport{Share: share, PostURL: share.PostURL}, nil
}

// publish validates and posts text, then records the share. A share already
// stored under key is returned without posting again.
func (o *Orchestrator) publish(
	ctx context.Context,
	user domain.User,
	contentID int64,
	p platform.Platform,
	manager platform.Manager,
	text string,
	key string,
) (domain.Share, platform.PostingResult, error) {
	if key != "" {
		existing, err := o.store.ShareByTask(ctx, key)
		if err == nil {
			o.log.InfoContext(ctx, "Share already recorded for task so posting is skipped",
				"taskKey", key,
				"shareID", existing.ID)

			return existing, platform.PostingResult{Success: true, PostURL: existing.PostURL}, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return domain.Share{}, platform.PostingResult{}, fmt.Errorf("look up share: %w", err)
		}
	}

	if validation := manager.ValidateContent(text); !validation.Valid {
		message := strings.Join(validation.Errors, "; ")

		return domain.Share{}, platform.PostingResult{ErrorMessage: message},
			fmt.Errorf("%w: %s", ErrPostRejected, message)
	}

	result := manager.PostContent(ctx, user, text, contentID)
	o.metrics.Post(p.String(), result.Success)

	if !result.Success {
		return domain.Share{}, result, o.postFailure(ctx, user, p, result)
	}

	share, created, err := o.store.RecordShare(ctx, domain.Share{
		UserID:      user.ID,
		ContentID:   contentID,
		Platform:    p.String(),
		PostContent: text,
		PostURL:     result.PostURL,
		TaskID:      key,
	})
	if err != nil {
		return domain.Share{}, result, err
	}

	o.log.InfoContext(ctx, "Content is posted",
		"platform", p.String(),
		"contentID", contentID,
		"userID", user.ID,
		"shareID", share.ID,
		"created", created,
		"postURL", result.PostURL)

	return share, result, nil
}

func (o *Orchestrator) postFailure(
	ctx context.Context,
	user domain.User,
	p platform.Platform,
	result platform.PostingResult,
) error {
	message := result.ErrorMessage
	if message == "" {
		message = fmt.Sprintf("%s posting failed", p.DisplayName())
	}

	switch {
	case result.Transient:
		return errors.New(message)
	case platform.IsAuthFailure(message):
		o.expireCredentials(ctx, user, p, message)

		return fmt.Errorf("%w: %s", ErrCredentialExpired, message)
	default:
		return fmt.Errorf("%w: %s", ErrPostRejected, message)
	}
}
