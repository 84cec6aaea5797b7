package domain

import (
	"strings"
	"time"
)

type Content struct {
	ID          int64
	URL         string
	Title       string
	Copy        string
	Excerpt     string
	ScrapedBody string
	ImageURL    string
	UTMCampaign string
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// HasCopy reports whether a human supplied the text to post.
func (c Content) HasCopy() bool {
	return strings.TrimSpace(c.Copy) != ""
}

type User struct {
	ID                 int64
	Email              string
	Name               string
	Bio                string
	IsAdmin            bool
	ChatID             string
	LinkedInAuthorized bool
	LinkedInNativeID   string
	AccessToken        string
	RefreshToken       string
	TokenExpiresAt     *time.Time
	ExampleSocialPosts []string
}

// HasChatIdentity reports whether direct messages can reach the user.
func (u User) HasChatIdentity() bool {
	return strings.TrimSpace(u.ChatID) != ""
}

type Share struct {
	ID          int64
	UserID      int64
	ContentID   int64
	Platform    string
	PostContent string
	PostURL     string
	TaskID      string
	CreatedAt   time.Time
}

// Grant is a freshly issued OAuth credential set.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
