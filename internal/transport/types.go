package transport

import "context"

type EventKind string

const (
	EventCommand  EventKind = "command"
	EventCallback EventKind = "callback"
	EventText     EventKind = "text"
)

// InboundEvent is one normalized platform update. It is immutable once built
// and is handled exactly once.
type InboundEvent struct {
	UpdateID    int64
	Kind        EventKind
	RecipientID int64
	ChatID      int64
	Username    string
	FirstName   string

	// Command without the leading slash or @bot suffix, lowercased.
	Command string
	Args    string

	// Text for EventText, callback data for EventCallback.
	Payload string

	CallbackID string
	MessageID  int // message the callback button is attached to
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is an inline keyboard, one slice per row.
type Keyboard [][]Button

const ParseModeMarkdownV2 = "MarkdownV2"

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Keyboard       Keyboard
}

// Deliverer sends outbound messages to the chat platform.
type Deliverer interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	Typing(ctx context.Context, to ChatTarget) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to publish the bot command menu on the platform.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
