package database_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"promoter/internal/database"
	"promoter/internal/domain"

	"github.com/google/go-cmp/cmp"
)

func openTestDB(t *testing.T) *database.Database {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"), log)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestContentRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	published := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	created := time.Date(2025, 5, 2, 9, 30, 0, 0, time.UTC)

	id, err := db.CreateContent(ctx, domain.Content{
		URL:         " https://example.com/a ",
		Title:       "A",
		Excerpt:     "excerpt",
		UTMCampaign: "spring",
		PublishedAt: &published,
		CreatedAt:   created,
	})
	if err != nil {
		t.Fatalf("create content: %v", err)
	}

	got, err := db.GetContent(ctx, id)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}

	want := domain.Content{
		ID:          id,
		URL:         "https://example.com/a",
		Title:       "A",
		Excerpt:     "excerpt",
		UTMCampaign: "spring",
		PublishedAt: &published,
		CreatedAt:   created,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}

	if _, err = db.GetContent(ctx, id+100); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListContentCreatedAfter(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, url := range []string{"https://e.com/1", "https://e.com/2", "https://e.com/3"} {
		if _, err := db.CreateContent(ctx, domain.Content{
			URL:       url,
			Title:     url,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("create content: %v", err)
		}
	}

	got, err := db.ListContentCreatedAfter(ctx, base)
	if err != nil {
		t.Fatalf("list content: %v", err)
	}

	if len(got) != 2 || got[0].URL != "https://e.com/2" || got[1].URL != "https://e.com/3" {
		t.Fatalf("unexpected content: %+v", got)
	}
}

func TestUserTokens(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	soon := now.Add(3 * 24 * time.Hour)
	later := now.Add(30 * 24 * time.Hour)

	users := []domain.User{
		{Email: "soon@example.com", RefreshToken: "r1", TokenExpiresAt: &soon, LinkedInAuthorized: true},
		{Email: "later@example.com", RefreshToken: "r2", TokenExpiresAt: &later, LinkedInAuthorized: true},
		{Email: "none@example.com", TokenExpiresAt: &soon},
		{Email: "noexpiry@example.com", RefreshToken: "r3"},
	}

	ids := make([]int64, len(users))
	for i, u := range users {
		id, err := db.CreateUser(ctx, u)
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		ids[i] = id
	}

	expiring, err := db.ListUsersWithExpiringTokens(ctx, now.Add(7*24*time.Hour))
	if err != nil {
		t.Fatalf("list expiring: %v", err)
	}

	if len(expiring) != 1 || expiring[0].Email != "soon@example.com" {
		t.Fatalf("unexpected expiring users: %+v", expiring)
	}

	newExpiry := now.Add(60 * 24 * time.Hour)
	if err = db.SaveGrant(ctx, ids[0], domain.Grant{
		AccessToken:  "a2",
		RefreshToken: "r1b",
		ExpiresAt:    newExpiry,
	}); err != nil {
		t.Fatalf("save grant: %v", err)
	}

	u, err := db.GetUser(ctx, ids[0])
	if err != nil {
		t.Fatalf("get user: %v", err)
	}

	if u.AccessToken != "a2" || u.RefreshToken != "r1b" || !u.TokenExpiresAt.Equal(newExpiry) {
		t.Fatalf("unexpected user after save: %+v", u)
	}

	if err = db.ClearGrant(ctx, ids[1]); err != nil {
		t.Fatalf("clear grant: %v", err)
	}

	authorized, err := db.ListLinkedInAuthorizedUsers(ctx)
	if err != nil {
		t.Fatalf("list authorized: %v", err)
	}

	if len(authorized) != 1 || authorized[0].ID != ids[0] {
		t.Fatalf("unexpected authorized users: %+v", authorized)
	}

	if err = db.SaveGrant(ctx, 999, domain.Grant{}); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestSharesWithTx(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	contentID, err := db.CreateContent(ctx, domain.Content{URL: "https://e.com/x", Title: "x"})
	if err != nil {
		t.Fatalf("create content: %v", err)
	}

	userID, err := db.CreateUser(ctx, domain.User{
		Email:              "u@example.com",
		ExampleSocialPosts: []string{"one", "two"},
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	rollback := errors.New("rollback")
	err = db.WithTx(ctx, func(tx *database.Database) error {
		if _, txErr := tx.CreateShare(ctx, domain.Share{
			UserID: userID, ContentID: contentID, Platform: "linkedin", PostContent: "discarded",
		}); txErr != nil {
			return txErr
		}

		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	err = db.WithTx(ctx, func(tx *database.Database) error {
		_, txErr := tx.CreateShare(ctx, domain.Share{
			UserID:      userID,
			ContentID:   contentID,
			Platform:    "linkedin",
			PostContent: "kept",
			PostURL:     "https://www.linkedin.com/feed/update/1/",
			TaskID:      "task-1",
		})

		return txErr
	})
	if err != nil {
		t.Fatalf("commit share: %v", err)
	}

	shares, err := db.ListSharesForContent(ctx, contentID)
	if err != nil {
		t.Fatalf("list shares: %v", err)
	}

	if len(shares) != 1 || shares[0].PostContent != "kept" {
		t.Fatalf("unexpected shares: %+v", shares)
	}

	byTask, err := db.ShareByTask(ctx, "task-1")
	if err != nil || byTask.ID != shares[0].ID {
		t.Fatalf("unexpected share by task: %+v, %v", byTask, err)
	}

	if _, err = db.ShareByTask(ctx, "task-2"); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err = db.CreateShare(ctx, domain.Share{
		UserID: userID, ContentID: contentID, Platform: "linkedin", PostContent: "dup", TaskID: "task-1",
	}); err == nil {
		t.Fatalf("expected duplicate task id to be rejected")
	}

	u, err := db.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}

	if diff := cmp.Diff([]string{"one", "two"}, u.ExampleSocialPosts); diff != "" {
		t.Fatalf("example posts mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordShareIsIdempotentPerTask(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	contentID, err := db.CreateContent(ctx, domain.Content{URL: "https://e.com/y", Title: "y"})
	if err != nil {
		t.Fatalf("create content: %v", err)
	}

	userID, err := db.CreateUser(ctx, domain.User{Email: "r@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	share := domain.Share{
		UserID:      userID,
		ContentID:   contentID,
		Platform:    "linkedin",
		PostContent: "first",
		TaskID:      "task-9",
	}

	first, created, err := db.RecordShare(ctx, share)
	if err != nil || !created {
		t.Fatalf("unexpected first record: %+v, %v, %v", first, created, err)
	}

	share.PostContent = "second"
	again, created, err := db.RecordShare(ctx, share)
	if err != nil || created {
		t.Fatalf("unexpected second record: %+v, %v, %v", again, created, err)
	}

	if again.ID != first.ID || again.PostContent != "first" {
		t.Fatalf("expected the original share back, got %+v", again)
	}

	shares, err := db.ListSharesForContent(ctx, contentID)
	if err != nil {
		t.Fatalf("list shares: %v", err)
	}

	if len(shares) != 1 {
		t.Fatalf("expected one share, got %d", len(shares))
	}
}
