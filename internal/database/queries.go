package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"promoter/internal/domain"
)

const contentColumns = `id, url, title, copy, excerpt, scraped_content, image_url,
	utm_campaign, publish_date, created_at`

const userColumns = `id, email, name, bio, is_admin, slack_id, linkedin_authorized,
	linkedin_native_id, linkedin_access_token, linkedin_refresh_token,
	linkedin_token_expires_at, example_social_posts`

const shareColumns = `id, created_at, user_id, content_id, platform, post_content, post_url,
	coalesce(task_id, '')`

type scanner interface {
	Scan(dest ...any) error
}

func (d *Database) CreateContent(ctx context.Context, c domain.Content) (int64, error) {
	c.URL = strings.TrimSpace(c.URL)
	if c.URL == "" {
		return 0, errors.New("content URL is empty")
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = d.now()
	}

	query := `insert into contents
		(url, title, copy, excerpt, scraped_content, image_url, utm_campaign, publish_date, created_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := d.q.ExecContext(ctx, query,
		c.URL, strings.TrimSpace(c.Title), c.Copy, c.Excerpt, c.ScrapedBody, c.ImageURL,
		c.UTMCampaign, nullableTime(c.PublishedAt), formatTime(createdAt))
	if err != nil {
		return 0, fmt.Errorf("insert content: %w", err)
	}

	return res.LastInsertId()
}

func (d *Database) GetContent(ctx context.Context, id int64) (domain.Content, error) {
	query := "select " + contentColumns + " from contents where id = ?"

	c, err := scanContent(d.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Content{}, fmt.Errorf("content %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Content{}, fmt.Errorf("select content: %w", err)
	}

	return c, nil
}

// UpdateContentBody stores an excerpt and body found by the scraper.
func (d *Database) UpdateContentBody(ctx context.Context, id int64, excerpt, body string) error {
	query := "update contents set excerpt = ?, scraped_content = ? where id = ?"

	_, err := d.q.ExecContext(ctx, query, excerpt, body, id)

	return err
}

func (d *Database) ListContentCreatedAfter(ctx context.Context, after time.Time) ([]domain.Content, error) {
	query := "select " + contentColumns + " from contents where created_at > ? order by created_at, id"

	rows, err := d.q.QueryContext(ctx, query, formatTime(after))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"after", after,
				"operation", "ListContentCreatedAfter")
		}
	}()

	var contents []domain.Content
	for rows.Next() {
		c, scanErr := scanContent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan row: %w", scanErr)
		}

		contents = append(contents, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return contents, nil
}

func scanContent(row scanner) (domain.Content, error) {
	var (
		c         domain.Content
		published sql.NullTime
	)

	err := row.Scan(&c.ID, &c.URL, &c.Title, &c.Copy, &c.Excerpt, &c.ScrapedBody, &c.ImageURL,
		&c.UTMCampaign, &published, &c.CreatedAt)
	if err != nil {
		return domain.Content{}, err
	}

	c.PublishedAt = timePtr(published)
	c.CreatedAt = c.CreatedAt.UTC()

	return c, nil
}

func (d *Database) CreateUser(ctx context.Context, u domain.User) (int64, error) {
	u.Email = strings.TrimSpace(u.Email)
	if u.Email == "" {
		return 0, errors.New("user email is empty")
	}

	examples, err := json.Marshal(nonNil(u.ExampleSocialPosts))
	if err != nil {
		return 0, fmt.Errorf("encode example posts: %w", err)
	}

	query := `insert into users
		(email, name, bio, is_admin, slack_id, linkedin_authorized, linkedin_native_id,
		 linkedin_access_token, linkedin_refresh_token, linkedin_token_expires_at, example_social_posts)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := d.q.ExecContext(ctx, query,
		u.Email, u.Name, u.Bio, u.IsAdmin, u.ChatID, u.LinkedInAuthorized, u.LinkedInNativeID,
		u.AccessToken, u.RefreshToken, nullableTime(u.TokenExpiresAt), string(examples))
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}

	return res.LastInsertId()
}

func (d *Database) GetUser(ctx context.Context, id int64) (domain.User, error) {
	query := "select " + userColumns + " from users where id = ?"

	u, err := scanUser(d.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}

	return u, nil
}

func (d *Database) ListLinkedInAuthorizedUsers(ctx context.Context) ([]domain.User, error) {
	return d.listUsers(ctx, "ListLinkedInAuthorizedUsers",
		"select "+userColumns+" from users where linkedin_authorized = 1 order by id")
}

// ListUsersWithExpiringTokens returns users holding a refresh token whose
// access token expires before the given instant.
func (d *Database) ListUsersWithExpiringTokens(ctx context.Context, before time.Time) ([]domain.User, error) {
	return d.listUsers(ctx, "ListUsersWithExpiringTokens",
		`select `+userColumns+` from users
		where linkedin_refresh_token != ''
		  and linkedin_token_expires_at is not null
		  and linkedin_token_expires_at < ?
		order by id`,
		formatTime(before))
}

func (d *Database) listUsers(ctx context.Context, operation, query string, args ...any) ([]domain.User, error) {
	rows, err := d.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", operation)
		}
	}()

	var users []domain.User
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan row: %w", scanErr)
		}

		users = append(users, u)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return users, nil
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u        domain.User
		expires  sql.NullTime
		examples string
	)

	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Bio, &u.IsAdmin, &u.ChatID, &u.LinkedInAuthorized,
		&u.LinkedInNativeID, &u.AccessToken, &u.RefreshToken, &expires, &examples)
	if err != nil {
		return domain.User{}, err
	}

	u.TokenExpiresAt = timePtr(expires)

	if examples != "" {
		if err = json.Unmarshal([]byte(examples), &u.ExampleSocialPosts); err != nil {
			return domain.User{}, fmt.Errorf("decode example posts: %w", err)
		}
	}

	return u, nil
}

// SaveGrant stores refreshed LinkedIn credentials.
func (d *Database) SaveGrant(ctx context.Context, userID int64, grant domain.Grant) error {
	query := `update users
		set linkedin_access_token = ?, linkedin_refresh_token = ?, linkedin_token_expires_at = ?
		where id = ?`

	res, err := d.q.ExecContext(ctx, query,
		grant.AccessToken, grant.RefreshToken, nullableTime(&grant.ExpiresAt), userID)
	if err != nil {
		return fmt.Errorf("update user tokens: %w", err)
	}

	return requireRow(res, "user", userID)
}

// ClearGrant forgets a revoked LinkedIn grant and marks the user unauthorized.
func (d *Database) ClearGrant(ctx context.Context, userID int64) error {
	query := `update users
		set linkedin_access_token = '', linkedin_refresh_token = '',
		    linkedin_token_expires_at = null, linkedin_authorized = 0
		where id = ?`

	res, err := d.q.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("clear user tokens: %w", err)
	}

	return requireRow(res, "user", userID)
}

func (d *Database) CreateShare(ctx context.Context, s domain.Share) (domain.Share, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = d.now().UTC()
	}

	var taskID any
	if s.TaskID != "" {
		taskID = s.TaskID
	}

	query := `insert into shares
		(created_at, user_id, content_id, platform, post_content, post_url, task_id)
		values (?, ?, ?, ?, ?, ?, ?)`

	res, err := d.q.ExecContext(ctx, query,
		formatTime(s.CreatedAt), s.UserID, s.ContentID, s.Platform, s.PostContent, s.PostURL, taskID)
	if err != nil {
		return domain.Share{}, fmt.Errorf("insert share: %w", err)
	}

	if s.ID, err = res.LastInsertId(); err != nil {
		return domain.Share{}, fmt.Errorf("read share id: %w", err)
	}

	return s, nil
}

// RecordShare stores s unless a share for the same task id already exists,
// in which case the existing row is returned with created set to false.
func (d *Database) RecordShare(ctx context.Context, s domain.Share) (domain.Share, bool, error) {
	var (
		stored  domain.Share
		created bool
	)

	err := d.WithTx(ctx, func(tx *Database) error {
		if s.TaskID != "" {
			existing, err := tx.ShareByTask(ctx, s.TaskID)
			if err == nil {
				stored = existing
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		inserted, err := tx.CreateShare(ctx, s)
		if err != nil {
			return err
		}

		stored, created = inserted, true

		return nil
	})
	if err != nil {
		return domain.Share{}, false, fmt.Errorf("record share: %w", err)
	}

	return stored, created, nil
}

func (d *Database) ShareByTask(ctx context.Context, taskID string) (domain.Share, error) {
	query := "select " + shareColumns + " from shares where task_id = ?"

	s, err := scanShare(d.q.QueryRowContext(ctx, query, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Share{}, fmt.Errorf("share for task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return domain.Share{}, fmt.Errorf("select share: %w", err)
	}

	return s, nil
}

func (d *Database) ListSharesForContent(ctx context.Context, contentID int64) ([]domain.Share, error) {
	query := "select " + shareColumns + " from shares where content_id = ? order by id"

	rows, err := d.q.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"contentID", contentID,
				"operation", "ListSharesForContent")
		}
	}()

	var shares []domain.Share
	for rows.Next() {
		s, scanErr := scanShare(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan row: %w", scanErr)
		}

		shares = append(shares, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return shares, nil
}

func scanShare(row scanner) (domain.Share, error) {
	var s domain.Share

	err := row.Scan(&s.ID, &s.CreatedAt, &s.UserID, &s.ContentID, &s.Platform, &s.PostContent,
		&s.PostURL, &s.TaskID)
	if err != nil {
		return domain.Share{}, err
	}

	s.CreatedAt = s.CreatedAt.UTC()

	return s, nil
}

func requireRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}

	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
