// File: internal/domain/ports/adapter/telegram.go
package adapter

import "context"

// Button is one keyboard key. Inline keys carry Data (callback) or URL;
// reply-keyboard keys only use Text.
type Button struct {
	Text string
	Data string
	URL  string
}

type ReplyMarkup struct {
	Buttons  [][]Button
	IsInline bool
	OneTime  bool
}

type SendMessageParams struct {
	ChatID      int64
	Text        string
	ParseMode   string
	ReplyMarkup *ReplyMarkup
}

type EditMessageParams struct {
	ChatID      int64
	MessageID   int
	Text        string
	ReplyMarkup *ReplyMarkup
}

// TelegramBotAdapter is the outbound chat-platform sink. All calls are best-effort.
type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, params SendMessageParams) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	EditMessage(ctx context.Context, params EditMessageParams) error
}
