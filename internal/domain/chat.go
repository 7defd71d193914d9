package domain

import "context"

// ProfileResolver looks up the display name of a chat user.
type ProfileResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// ContentFetcher downloads the binary content attached to a message.
type ContentFetcher interface {
	MessageContent(ctx context.Context, messageID string) ([]byte, error)
}

// ReplyNotifier answers an inbound event through its one-time reply token.
type ReplyNotifier interface {
	Reply(ctx context.Context, replyToken string, text string) error
}
