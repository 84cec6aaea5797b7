package notify

import (
	"cmp"
	"context"
	"fmt"
	"time"

	"promoter/internal/chat"
	"promoter/internal/domain"
	"promoter/internal/render"
)

type DigestReport struct {
	ContentCount     int
	UserCount        int
	EmailsSent       int
	ChatMessagesSent int
}

type digestEmailData struct {
	UserName    string
	CompanyName string
	BaseURL     string
	Items       []Item
}

// RunDigest announces content created since the previous run. The last-run
// marker advances even when deliveries fail, so failed notices are not
// retried on the next run.
func (n *Notifier) RunDigest(ctx context.Context) (DigestReport, error) {
	var report DigestReport

	since := n.lastRun(ctx)

	contents, err := n.store.ListContentCreatedAfter(ctx, since)
	if err != nil {
		return report, fmt.Errorf("list new content: %w", err)
	}
	report.ContentCount = len(contents)

	defer n.markRun(ctx)

	if len(contents) == 0 {
		n.log.InfoContext(ctx, "No new content to announce",
			"since", since)

		return report, nil
	}

	users, err := n.store.ListLinkedInAuthorizedUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("list authorized users: %w", err)
	}
	report.UserCount = len(users)

	if len(users) == 0 {
		n.log.InfoContext(ctx, "No authorized users to notify",
			"contentCount", len(contents))

		return report, nil
	}

	items := make([]Item, 0, len(contents))
	for _, c := range contents {
		items = append(items, n.item(c))
	}

	if n.cfg.EmailEnabled && n.email != nil {
		for _, user := range users {
			if n.sendDigestEmail(ctx, user, items) {
				report.EmailsSent++
			}
		}
	}

	if n.chatEnabled() {
		report.ChatMessagesSent = n.sendDigestChat(ctx, items)
	}

	n.log.InfoContext(ctx, "Digest notification is finished",
		"since", since,
		"contentCount", report.ContentCount,
		"userCount", report.UserCount,
		"emailsSent", report.EmailsSent,
		"chatMessagesSent", report.ChatMessagesSent)

	return report, nil
}

func (n *Notifier) lastRun(ctx context.Context) time.Time {
	fallback := n.now().Add(-DefaultLookback)

	value, ok, err := n.cache.Get(ctx, LastRunKey)
	if err != nil {
		n.log.WarnContext(ctx, "Failed to read last digest run so default lookback will be used",
			"error", err,
			"key", LastRunKey)

		return fallback
	}
	if !ok {
		return fallback
	}

	last, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		n.log.WarnContext(ctx, "Failed to parse last digest run so default lookback will be used",
			"error", err,
			"value", value)

		return fallback
	}

	return last
}

func (n *Notifier) markRun(ctx context.Context) {
	now := n.now().UTC().Format(time.RFC3339Nano)
	if err := n.cache.Set(ctx, LastRunKey, now); err != nil {
		n.log.ErrorContext(ctx, "Failed to store last digest run",
			"error", err,
			"key", LastRunKey)
	}
}

func (n *Notifier) sendDigestEmail(ctx context.Context, user domain.User, items []Item) bool {
	if user.Email == "" {
		return false
	}

	body, err := n.renderer.HTML(render.DigestEmail, digestEmailData{
		UserName:    cmp.Or(user.Name, user.Email),
		CompanyName: n.cfg.CompanyName,
		BaseURL:     n.cfg.BaseURL,
		Items:       items,
	})
	if err == nil {
		err = n.email.Send(ctx, user.Email, digestSubject, body)
	}

	n.metrics.Notification("email", err == nil)

	if err != nil {
		n.log.ErrorContext(ctx, "Failed to send digest email",
			"error", err,
			"userID", user.ID,
			"itemCount", len(items))

		return false
	}

	return true
}

func (n *Notifier) sendDigestChat(ctx context.Context, items []Item) int {
	summary, err := n.renderer.Text(render.DigestChat, map[string]int{"Count": len(items)})
	if err != nil {
		n.log.ErrorContext(ctx, "Failed to render digest chat summary",
			"error", err)

		return 0
	}

	messages := digestMessages(items, summary)

	sent := 0
	for i, msg := range messages {
		err = n.chat.PostMessage(ctx, n.cfg.DefaultChannel, msg)
		n.metrics.Notification("chat", err == nil)

		if err != nil {
			n.log.ErrorContext(ctx, "Failed to send digest chat message",
				"error", err,
				"code", chat.CodeOf(err),
				"channel", n.cfg.DefaultChannel,
				"part", i+1,
				"parts", len(messages))

			continue
		}

		sent++
	}

	return sent
}

// digestMessages splits items into ChunkSize-item messages.
func digestMessages(items []Item, summary string) []chat.Message {
	total := (len(items) + ChunkSize - 1) / ChunkSize
	messages := make([]chat.Message, 0, total)

	for part := 1; part <= total; part++ {
		chunk := items[(part-1)*ChunkSize : min(part*ChunkSize, len(items))]

		title := digestTitle
		if total > 1 {
			title = fmt.Sprintf("%s (Part %d/%d)", digestTitle, part, total)
		}

		blocks := []chat.Block{
			chat.Header(title),
			chat.Section(summary),
			chat.Divider(),
		}

		for _, item := range chunk {
			blocks = append(blocks,
				chat.LinkSection(item.Title, item.URL, item.Description),
				chat.Actions(chat.Button{Text: promoteLabel, URL: item.PromoteURL, Primary: true}),
				chat.Divider(),
			)
		}

		if len(blocks) > 3 && blocks[len(blocks)-1].Kind == chat.BlockDivider {
			blocks = blocks[:len(blocks)-1]
		}

		messages = append(messages, chat.Message{
			Text:   fmt.Sprintf("New content available to share! (%d items - Part %d/%d)", len(chunk), part, total),
			Blocks: blocks,
		})
	}

	return messages
}
