package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"promoter/internal/chat"
	"promoter/internal/markdown"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Client renders blocks as MarkdownV2 text with URL buttons.
type Client struct {
	bot *bot.Bot
}

func New(token string, opts ...bot.Option) (*Client, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return &Client{bot: b}, nil
}

func (c *Client) PostMessage(ctx context.Context, destination string, msg chat.Message) error {
	text, buttons := render(msg)

	params := &bot.SendMessageParams{
		ChatID:    chatID(destination),
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: bot.True(),
		},
	}
	if len(buttons) > 0 {
		params.ReplyMarkup = &models.InlineKeyboardMarkup{InlineKeyboard: buttons}
	}

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return classify(fmt.Errorf("send message: %w", err))
	}

	return nil
}

func chatID(destination string) any {
	if id, err := strconv.ParseInt(destination, 10, 64); err == nil {
		return id
	}

	return destination
}

func render(msg chat.Message) (string, [][]models.InlineKeyboardButton) {
	if len(msg.Blocks) == 0 {
		return markdown.EscapeV2(msg.Text), nil
	}

	var actionCount int
	for _, b := range msg.Blocks {
		if b.Kind == chat.BlockActions && b.Button != nil {
			actionCount++
		}
	}

	var (
		lines   []string
		buttons [][]models.InlineKeyboardButton
	)

	for _, b := range msg.Blocks {
		switch b.Kind {
		case chat.BlockHeader:
			lines = append(lines, markdown.Bold(markdown.EscapeV2(b.Text)))
		case chat.BlockSection:
			lines = append(lines, sectionText(b, len(buttons)+1, actionCount > 1))
		case chat.BlockDivider:
			lines = append(lines, "")
		case chat.BlockActions:
			if b.Button == nil {
				continue
			}

			label := b.Button.Text
			if actionCount > 1 {
				label = fmt.Sprintf("%d. %s", len(buttons)+1, label)
			}

			buttons = append(buttons, []models.InlineKeyboardButton{{Text: label, URL: b.Button.URL}})
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), buttons
}

func sectionText(b chat.Block, index int, numbered bool) string {
	text := markdown.EscapeV2(b.Text)
	if b.Link == nil {
		return text
	}

	link := markdown.Bold(markdown.Link(b.Link.Title, b.Link.URL))
	if numbered {
		link = markdown.EscapeV2(fmt.Sprintf("%d. ", index)) + link
	}

	if text == "" {
		return link
	}

	return link + "\n" + text
}

func classify(err error) error {
	var tooMany *bot.TooManyRequestsError
	switch {
	case errors.As(err, &tooMany):
		return &chat.Error{Code: chat.CodeRateLimited, Err: err}
	case errors.Is(err, bot.ErrorForbidden):
		return &chat.Error{Code: chat.CodeNotInChannel, Err: err}
	case errors.Is(err, bot.ErrorNotFound),
		errors.Is(err, bot.ErrorBadRequest) && strings.Contains(err.Error(), "chat not found"):
		return &chat.Error{Code: chat.CodeChannelNotFound, Err: err}
	default:
		return &chat.Error{Code: chat.CodeUnknown, Err: err}
	}
}
