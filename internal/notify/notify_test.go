package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"promoter/internal/cache"
	"promoter/internal/chat"
	"promoter/internal/domain"
	"promoter/internal/platform"
	"promoter/internal/render"
)

var errNotFound = errors.New("not found")

type stubStore struct {
	mu       sync.Mutex
	contents []domain.Content
	users    []domain.User
	after    []time.Time
}

func (s *stubStore) GetContent(_ context.Context, id int64) (domain.Content, error) {
	for _, c := range s.contents {
		if c.ID == id {
			return c, nil
		}
	}

	return domain.Content{}, errNotFound
}

func (s *stubStore) ListContentCreatedAfter(_ context.Context, after time.Time) ([]domain.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.after = append(s.after, after)

	var out []domain.Content
	for _, c := range s.contents {
		if c.CreatedAt.After(after) {
			out = append(out, c)
		}
	}

	return out, nil
}

func (s *stubStore) ListLinkedInAuthorizedUsers(context.Context) ([]domain.User, error) {
	return s.users, nil
}

type sentMessage struct {
	destination string
	msg         chat.Message
}

type stubMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	failOn  map[int]error
	calls   int
	invites []string
}

func (m *stubMessenger) PostMessage(_ context.Context, destination string, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if err, ok := m.failOn[m.calls]; ok {
		return err
	}

	m.sent = append(m.sent, sentMessage{destination: destination, msg: msg})

	return nil
}

func (m *stubMessenger) InviteToChannel(_ context.Context, channel, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invites = append(m.invites, channel+":"+user)

	return nil
}

type sentEmail struct {
	to      string
	subject string
	body    string
}

type stubSender struct {
	mu     sync.Mutex
	sent   []sentEmail
	failTo map[string]bool
}

func (s *stubSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failTo[to] {
		return errors.New("smtp unavailable")
	}

	s.sent = append(s.sent, sentEmail{to: to, subject: subject, body: body})

	return nil
}

var testNow = time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)

func newTestNotifier(store Store, lastRun cache.Store, messenger chat.Messenger, sender *stubSender) *Notifier {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	n := New(store, lastRun, messenger, sender, render.MustNew(), Config{
		BaseURL:        "http://localhost:5001/",
		CompanyName:    "Acme",
		DefaultChannel: "C1",
		EmailEnabled:   true,
		ChatEnabled:    true,
	}, nil, log)
	n.now = func() time.Time { return testNow }

	return n
}

func makeContents(n int) []domain.Content {
	contents := make([]domain.Content, 0, n)
	for i := 1; i <= n; i++ {
		contents = append(contents, domain.Content{
			ID:        int64(i),
			URL:       fmt.Sprintf("https://example.com/%d", i),
			Title:     fmt.Sprintf("Post %d", i),
			Excerpt:   "excerpt",
			CreatedAt: testNow.Add(-time.Hour),
		})
	}

	return contents
}

func countItems(msg chat.Message) int {
	n := 0
	for _, b := range msg.Blocks {
		if b.Kind == chat.BlockActions {
			n++
		}
	}

	return n
}

func TestRunDigestChunksChatMessages(t *testing.T) {
	store := &stubStore{
		contents: makeContents(37),
		users: []domain.User{
			{ID: 1, Email: "a@example.com", Name: "Ada"},
			{ID: 2, Email: "b@example.com"},
		},
	}
	messenger := &stubMessenger{}
	sender := &stubSender{}
	lastRun := cache.NewMemory(0)

	report, err := newTestNotifier(store, lastRun, messenger, sender).RunDigest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.ChatMessagesSent != 3 || report.EmailsSent != 2 || report.ContentCount != 37 || report.UserCount != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	if len(messenger.sent) != 3 {
		t.Fatalf("expected 3 chat messages, got %d", len(messenger.sent))
	}

	wantCounts := []int{15, 15, 7}
	for i, sent := range messenger.sent {
		if sent.destination != "C1" {
			t.Errorf("message %d sent to %q", i, sent.destination)
		}

		if got := countItems(sent.msg); got != wantCounts[i] {
			t.Errorf("message %d has %d items, want %d", i, got, wantCounts[i])
		}

		wantPart := fmt.Sprintf("Part %d/3", i+1)
		if !strings.Contains(sent.msg.Blocks[0].Text, wantPart) {
			t.Errorf("message %d header %q does not contain %q", i, sent.msg.Blocks[0].Text, wantPart)
		}

		if last := sent.msg.Blocks[len(sent.msg.Blocks)-1]; last.Kind != chat.BlockActions {
			t.Errorf("message %d should end with an action block, got %v", i, last.Kind)
		}
	}

	if !strings.Contains(messenger.sent[2].msg.Text, "(7 items - Part 3/3)") {
		t.Errorf("unexpected fallback text: %q", messenger.sent[2].msg.Text)
	}

	if sender.sent[0].subject != "New Content Available to Share!" {
		t.Errorf("unexpected subject: %q", sender.sent[0].subject)
	}

	if !strings.Contains(sender.sent[0].body, "http://localhost:5001/?promote=1") {
		t.Errorf("expected promote URL in email body")
	}

	marker, ok, _ := lastRun.Get(context.Background(), LastRunKey)
	if !ok || marker != testNow.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected last-run marker: %q ok=%v", marker, ok)
	}
}

func TestRunDigestSingleChunkHasNoPartLabel(t *testing.T) {
	store := &stubStore{
		contents: makeContents(2),
		users:    []domain.User{{ID: 1, Email: "a@example.com"}},
	}
	messenger := &stubMessenger{}

	_, err := newTestNotifier(store, cache.NewMemory(0), messenger, &stubSender{}).RunDigest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(messenger.sent) != 1 {
		t.Fatalf("expected one chat message, got %d", len(messenger.sent))
	}

	blocks := messenger.sent[0].msg.Blocks
	if blocks[0].Text != "📢 New Content Ready for Promotion!" {
		t.Fatalf("unexpected header: %q", blocks[0].Text)
	}

	// header, summary, divider, then (section, actions, divider) per item minus the trailing divider
	if len(blocks) != 3+2*3-1 {
		t.Fatalf("unexpected block count %d", len(blocks))
	}
}

func TestRunDigestUsesLastRunMarker(t *testing.T) {
	ctx := context.Background()
	lastRun := cache.NewMemory(0)
	marker := testNow.Add(-2 * time.Hour)
	_ = lastRun.Set(ctx, LastRunKey, marker.Format(time.RFC3339Nano))

	store := &stubStore{}
	if _, err := newTestNotifier(store, lastRun, &stubMessenger{}, &stubSender{}).RunDigest(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.after) != 1 || !store.after[0].Equal(marker) {
		t.Fatalf("expected lookup after %v, got %v", marker, store.after)
	}

	store = &stubStore{}
	if _, err := newTestNotifier(store, cache.NewMemory(0), &stubMessenger{}, &stubSender{}).RunDigest(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := testNow.Add(-DefaultLookback); !store.after[0].Equal(want) {
		t.Fatalf("expected default lookback %v, got %v", want, store.after[0])
	}
}

// Failed deliveries are not retried: the marker still advances past the
// content they were about. This pins the current behaviour as a known
// limitation.
func TestRunDigestAdvancesMarkerDespiteDeliveryFailures(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{
		contents: makeContents(20),
		users: []domain.User{
			{ID: 1, Email: "fail@example.com"},
			{ID: 2, Email: "ok@example.com"},
		},
	}
	messenger := &stubMessenger{failOn: map[int]error{1: &chat.Error{Code: chat.CodeRateLimited}}}
	sender := &stubSender{failTo: map[string]bool{"fail@example.com": true}}
	lastRun := cache.NewMemory(0)

	report, err := newTestNotifier(store, lastRun, messenger, sender).RunDigest(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.EmailsSent != 1 || report.ChatMessagesSent != 1 {
		t.Fatalf("expected delivery to continue past failures: %+v", report)
	}

	if marker, ok, _ := lastRun.Get(ctx, LastRunKey); !ok || marker != testNow.Format(time.RFC3339Nano) {
		t.Fatalf("expected marker to advance, got %q", marker)
	}

	store.after = nil
	later := newTestNotifier(store, lastRun, messenger, sender)
	later.now = func() time.Time { return testNow.Add(time.Hour) }

	report, err = later.RunDigest(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.ContentCount != 0 {
		t.Fatalf("known limitation: failed items are not announced again, got %d", report.ContentCount)
	}
}

func TestRunDigestSkipsDisabledChannels(t *testing.T) {
	store := &stubStore{
		contents: makeContents(3),
		users:    []domain.User{{ID: 1, Email: "a@example.com"}},
	}
	messenger := &stubMessenger{}
	sender := &stubSender{}

	n := newTestNotifier(store, cache.NewMemory(0), messenger, sender)
	n.cfg.EmailEnabled = false
	n.cfg.ChatEnabled = false

	report, err := n.RunDigest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.EmailsSent != 0 || report.ChatMessagesSent != 0 || len(messenger.sent) != 0 || len(sender.sent) != 0 {
		t.Fatalf("expected nothing sent: %+v", report)
	}
}

func TestItemDescriptionFallsBackToBody(t *testing.T) {
	n := newTestNotifier(&stubStore{}, cache.NewMemory(0), nil, &stubSender{})

	got := n.item(domain.Content{ID: 3, URL: "https://e.com", ScrapedBody: strings.Repeat("x", 250)})
	if len([]rune(got.Description)) != 203 || !strings.HasSuffix(got.Description, "...") {
		t.Fatalf("unexpected description length %d", len(got.Description))
	}

	if got.Title != "https://e.com" || got.PromoteURL != "http://localhost:5001/?promote=3" {
		t.Fatalf("unexpected item: %+v", got)
	}
}

func TestRunSingle(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{contents: makeContents(1)}

	t.Run("Sent", func(t *testing.T) {
		messenger := &stubMessenger{}
		report, err := newTestNotifier(store, cache.NewMemory(0), messenger, &stubSender{}).RunSingle(ctx, 1)
		if err != nil || report.Status != StatusSent {
			t.Fatalf("unexpected result: %+v, %v", report, err)
		}

		if len(messenger.sent) != 1 || countItems(messenger.sent[0].msg) != 1 {
			t.Fatalf("expected exactly one single-item message, got %+v", messenger.sent)
		}
	})

	t.Run("Not found", func(t *testing.T) {
		report, err := newTestNotifier(store, cache.NewMemory(0), &stubMessenger{}, &stubSender{}).RunSingle(ctx, 99)
		if !errors.Is(err, errNotFound) || report.Status != StatusNotFound || report.Message != "Content not found." {
			t.Fatalf("unexpected result: %+v, %v", report, err)
		}
	})

	t.Run("Chat disabled", func(t *testing.T) {
		messenger := &stubMessenger{}
		n := newTestNotifier(store, cache.NewMemory(0), messenger, &stubSender{})
		n.cfg.ChatEnabled = false

		report, err := n.RunSingle(ctx, 1)
		if err != nil || report.Status != StatusSkipped || len(messenger.sent) != 0 {
			t.Fatalf("unexpected result: %+v, %v", report, err)
		}
	})

	t.Run("Provider error", func(t *testing.T) {
		messenger := &stubMessenger{failOn: map[int]error{1: &chat.Error{Code: chat.CodeChannelNotFound}}}
		report, err := newTestNotifier(store, cache.NewMemory(0), messenger, &stubSender{}).RunSingle(ctx, 1)
		if err == nil || report.Status != StatusFailed || chat.CodeOf(err) != chat.CodeChannelNotFound {
			t.Fatalf("unexpected result: %+v, %v", report, err)
		}
	})
}

func TestSendReauthorization(t *testing.T) {
	ctx := context.Background()

	messenger := &stubMessenger{}
	n := newTestNotifier(&stubStore{}, cache.NewMemory(0), messenger, &stubSender{})

	sent, err := n.SendReauthorization(ctx, domain.User{ID: 1, ChatID: "U123"}, platform.LinkedIn, "invalid_grant")
	if err != nil || !sent {
		t.Fatalf("unexpected result: %v, %v", sent, err)
	}

	if len(messenger.sent) != 1 || messenger.sent[0].destination != "U123" {
		t.Fatalf("expected one DM, got %+v", messenger.sent)
	}

	if !strings.Contains(messenger.sent[0].msg.Text, "http://localhost:5001/auth/profile") {
		t.Fatalf("expected profile URL in message: %q", messenger.sent[0].msg.Text)
	}

	sent, err = n.SendReauthorization(ctx, domain.User{ID: 2}, platform.LinkedIn, "")
	if err != nil || sent {
		t.Fatalf("expected silent skip, got %v, %v", sent, err)
	}

	if len(messenger.sent) != 1 {
		t.Fatalf("expected no extra messages, got %d", len(messenger.sent))
	}
}

func TestInviteToDefaultChannel(t *testing.T) {
	messenger := &stubMessenger{}
	n := newTestNotifier(&stubStore{}, cache.NewMemory(0), messenger, &stubSender{})

	if err := n.InviteToDefaultChannel(context.Background(), domain.User{ID: 1, ChatID: "U1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(messenger.invites) != 1 || messenger.invites[0] != "C1:U1" {
		t.Fatalf("unexpected invites: %v", messenger.invites)
	}

	if err := n.InviteToDefaultChannel(context.Background(), domain.User{ID: 2}); err == nil {
		t.Fatalf("expected error for user without chat identity")
	}
}
