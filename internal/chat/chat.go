package chat

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies provider errors. Values follow Slack's error strings.
type Code string

const (
	CodeAlreadyInChannel Code = "already_in_channel"
	CodeChannelNotFound  Code = "channel_not_found"
	CodeUserNotFound     Code = "users_not_found"
	CodeNotInChannel     Code = "not_in_channel"
	CodeRateLimited      Code = "ratelimited"
	CodeMissingScope     Code = "missing_scope"
	CodeUnknown          Code = "unknown"
)

var knownCodes = map[string]Code{
	string(CodeAlreadyInChannel): CodeAlreadyInChannel,
	string(CodeChannelNotFound):  CodeChannelNotFound,
	string(CodeUserNotFound):     CodeUserNotFound,
	"user_not_found":             CodeUserNotFound,
	string(CodeNotInChannel):     CodeNotInChannel,
	string(CodeRateLimited):      CodeRateLimited,
	"rate_limited":               CodeRateLimited,
	string(CodeMissingScope):     CodeMissingScope,
}

// ParseCode maps a provider error string to a Code.
func ParseCode(s string) Code {
	if code, ok := knownCodes[s]; ok {
		return code
	}

	return CodeUnknown
}

type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}

	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the Code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Code
	}

	return CodeUnknown
}

type BlockKind int

const (
	BlockHeader BlockKind = iota + 1
	BlockSection
	BlockDivider
	BlockActions
)

type Link struct {
	Title string
	URL   string
}

type Button struct {
	Text    string
	URL     string
	Primary bool
}

// Block is a provider-neutral layout element. Text is plain; each backend
// applies its own markup and escaping.
type Block struct {
	Kind   BlockKind
	Text   string
	Link   *Link
	Button *Button
}

func Header(text string) Block {
	return Block{Kind: BlockHeader, Text: text}
}

func Section(text string) Block {
	return Block{Kind: BlockSection, Text: text}
}

func LinkSection(title, url, text string) Block {
	return Block{Kind: BlockSection, Text: text, Link: &Link{Title: title, URL: url}}
}

func Divider() Block {
	return Block{Kind: BlockDivider}
}

func Actions(button Button) Block {
	return Block{Kind: BlockActions, Button: &button}
}

// Message carries fallback Text for clients that cannot show Blocks.
type Message struct {
	Text   string
	Blocks []Block
}

type Messenger interface {
	PostMessage(ctx context.Context, destination string, msg Message) error
}

// Inviter is implemented by backends that can add users to channels.
// Inviting a user already present is not an error.
type Inviter interface {
	InviteToChannel(ctx context.Context, channel, user string) error
}
