package notify

import (
	"cmp"
	"context"
	"fmt"

	"promoter/internal/chat"
	"promoter/internal/domain"
	"promoter/internal/platform"
	"promoter/internal/render"
)

type Status string

const (
	StatusSent     Status = "sent"
	StatusSkipped  Status = "skipped"
	StatusNotFound Status = "not_found"
	StatusFailed   Status = "failed"
)

type SingleReport struct {
	Status  Status
	Message string
}

// RunSingle asks the default channel to promote one content item.
func (n *Notifier) RunSingle(ctx context.Context, contentID int64) (SingleReport, error) {
	content, err := n.store.GetContent(ctx, contentID)
	if err != nil {
		return SingleReport{Status: StatusNotFound, Message: "Content not found."},
			fmt.Errorf("load content: %w", err)
	}

	if !n.chatEnabled() {
		n.log.InfoContext(ctx, "Chat notifications are disabled so single notification is skipped",
			"contentID", contentID)

		return SingleReport{Status: StatusSkipped, Message: "Chat notifications are disabled."}, nil
	}

	item := n.item(content)

	text, err := n.renderer.Text(render.SingleChat, item)
	if err != nil {
		return SingleReport{Status: StatusFailed, Message: err.Error()}, err
	}

	err = n.chat.PostMessage(ctx, n.cfg.DefaultChannel, chat.Message{
		Text: text,
		Blocks: []chat.Block{
			chat.Header(singleTitle),
			chat.LinkSection(item.Title, item.URL, cmp.Or(content.Excerpt, noExcerpt)),
			chat.Actions(chat.Button{Text: promoteLabel, URL: item.PromoteURL, Primary: true}),
		},
	})
	n.metrics.Notification("chat", err == nil)

	if err != nil {
		n.log.ErrorContext(ctx, "Failed to send single notification",
			"error", err,
			"code", chat.CodeOf(err),
			"contentID", contentID,
			"channel", n.cfg.DefaultChannel)

		return SingleReport{Status: StatusFailed, Message: err.Error()}, fmt.Errorf("post message: %w", err)
	}

	return SingleReport{Status: StatusSent, Message: "Notification sent."}, nil
}

type reauthData struct {
	Platform   string
	ProfileURL string
	Reason     string
}

// SendReauthorization DMs a user whose credentials stopped working. It
// reports false without error when the user has no chat identity.
func (n *Notifier) SendReauthorization(
	ctx context.Context,
	user domain.User,
	p platform.Platform,
	reason string,
) (bool, error) {
	if !user.HasChatIdentity() {
		n.log.WarnContext(ctx, "User has no chat identity so reauthorization notice is skipped",
			"userID", user.ID,
			"platform", p.String())

		return false, nil
	}

	if n.chat == nil {
		return false, errNoChatBackend
	}

	text, err := n.renderer.Text(render.ReauthChat, reauthData{
		Platform:   p.DisplayName(),
		ProfileURL: n.ProfileURL(),
		Reason:     reason,
	})
	if err != nil {
		return false, err
	}

	err = n.chat.PostMessage(ctx, user.ChatID, chat.Message{
		Text: text,
		Blocks: []chat.Block{
			chat.Section(text),
			chat.Actions(chat.Button{Text: reconnectLabel, URL: n.ProfileURL(), Primary: true}),
		},
	})
	n.metrics.Notification("reauth", err == nil)

	if err != nil {
		return false, fmt.Errorf("post reauthorization message: %w", err)
	}

	n.log.InfoContext(ctx, "Reauthorization notice is sent",
		"userID", user.ID,
		"platform", p.String())

	return true, nil
}

// InviteToDefaultChannel adds the user's chat identity to the default channel.
func (n *Notifier) InviteToDefaultChannel(ctx context.Context, user domain.User) error {
	if !user.HasChatIdentity() {
		return fmt.Errorf("user %d has no chat identity", user.ID)
	}

	inviter, ok := n.chat.(chat.Inviter)
	if !ok || n.cfg.DefaultChannel == "" {
		return errNoChatBackend
	}

	if err := inviter.InviteToChannel(ctx, n.cfg.DefaultChannel, user.ChatID); err != nil {
		return fmt.Errorf("invite user %d: %w", user.ID, err)
	}

	return nil
}
