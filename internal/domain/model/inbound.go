package model

// CallbackQuery is a structured button press.
type CallbackQuery struct {
	ID        string
	Data      string
	MessageID int
}

// InboundEvent is one decoded chat-platform update: free text or a callback.
type InboundEvent struct {
	ChatID   int64
	From     TelegramProfile
	Text     string
	Callback *CallbackQuery
}

func (e InboundEvent) IsCallback() bool { return e.Callback != nil }
