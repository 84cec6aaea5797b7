package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"promoter/internal/chat"

	"github.com/slack-go/slack"
)

// Client posts Block Kit messages through the Slack Web API.
type Client struct {
	api *slack.Client
}

func New(token string, opts ...slack.Option) *Client {
	return &Client{api: slack.New(token, opts...)}
}

func (c *Client) PostMessage(ctx context.Context, destination string, msg chat.Message) error {
	options := []slack.MsgOption{slack.MsgOptionText(escape(msg.Text), false)}
	if len(msg.Blocks) > 0 {
		options = append(options, slack.MsgOptionBlocks(toBlocks(msg.Blocks)...))
	}

	if _, _, err := c.api.PostMessageContext(ctx, destination, options...); err != nil {
		return classify(fmt.Errorf("post message: %w", err))
	}

	return nil
}

func (c *Client) InviteToChannel(ctx context.Context, channel, user string) error {
	_, err := c.api.InviteUsersToConversationContext(ctx, channel, user)
	if err == nil {
		return nil
	}

	err = classify(fmt.Errorf("invite user: %w", err))
	if chat.CodeOf(err) == chat.CodeAlreadyInChannel {
		return nil
	}

	return err
}

func classify(err error) error {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return &chat.Error{Code: chat.CodeRateLimited, Err: err}
	}

	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) {
		return &chat.Error{Code: chat.ParseCode(slackErr.Err), Err: err}
	}

	for _, code := range []chat.Code{
		chat.CodeAlreadyInChannel,
		chat.CodeChannelNotFound,
		chat.CodeUserNotFound,
		chat.CodeNotInChannel,
		chat.CodeMissingScope,
		chat.CodeRateLimited,
	} {
		if strings.Contains(err.Error(), string(code)) {
			return &chat.Error{Code: code, Err: err}
		}
	}

	return &chat.Error{Code: chat.CodeUnknown, Err: err}
}

func toBlocks(blocks []chat.Block) []slack.Block {
	out := make([]slack.Block, 0, len(blocks))

	for _, b := range blocks {
		switch b.Kind {
		case chat.BlockHeader:
			out = append(out, slack.NewHeaderBlock(
				slack.NewTextBlockObject(slack.PlainTextType, b.Text, true, false)))
		case chat.BlockSection:
			out = append(out, slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, sectionText(b), false, false), nil, nil))
		case chat.BlockDivider:
			out = append(out, slack.NewDividerBlock())
		case chat.BlockActions:
			if b.Button == nil {
				continue
			}

			button := slack.NewButtonBlockElement("", "",
				slack.NewTextBlockObject(slack.PlainTextType, b.Button.Text, true, false))
			button.URL = b.Button.URL
			if b.Button.Primary {
				button.Style = slack.StylePrimary
			}

			out = append(out, slack.NewActionBlock("", button))
		}
	}

	return out
}

func sectionText(b chat.Block) string {
	text := escape(b.Text)
	if b.Link == nil {
		return text
	}

	link := fmt.Sprintf("*<%s|%s>*", b.Link.URL, escape(b.Link.Title))
	if text == "" {
		return link
	}

	return link + "\n" + text
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return escaper.Replace(s)
}
