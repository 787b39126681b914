package adapter

import (
	"encoding/json"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"biteiq/internal/domain"
	kit "biteiq/internal/transport"
)

// ErrUnsupported marks a well-formed update the bot does not handle
// (edits, channel posts, media without text and so on).
var ErrUnsupported = errors.New("unsupported update")

// DecodeUpdate parses a webhook body into an InboundEvent. Malformed input
// yields an *domain.IngressError; ErrUnsupported is returned for updates
// that carry nothing to route.
func DecodeUpdate(body []byte) (kit.InboundEvent, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return kit.InboundEvent{}, &domain.IngressError{Reason: "empty body"}
	}
	var u tele.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return kit.InboundEvent{}, &domain.IngressError{Reason: "invalid json", Err: err}
	}
	return Normalize(u)
}

// Normalize converts a decoded telebot update.
func Normalize(u tele.Update) (kit.InboundEvent, error) {
	switch {
	case u.Callback != nil:
		return fromCallback(u)
	case u.Message != nil:
		return fromMessage(u)
	default:
		return kit.InboundEvent{}, ErrUnsupported
	}
}

func fromCallback(u tele.Update) (kit.InboundEvent, error) {
	cb := u.Callback
	if cb.Sender == nil {
		return kit.InboundEvent{}, &domain.IngressError{Reason: "callback without sender"}
	}
	ev := kit.InboundEvent{
		UpdateID:    int64(u.ID),
		Kind:        kit.EventCallback,
		RecipientID: cb.Sender.ID,
		ChatID:      cb.Sender.ID,
		Username:    cb.Sender.Username,
		FirstName:   cb.Sender.FirstName,
		Payload:     cb.Data,
		CallbackID:  cb.ID,
	}
	if m := cb.Message; m != nil {
		ev.MessageID = m.ID
		if m.Chat != nil {
			ev.ChatID = m.Chat.ID
		}
	}
	return ev, nil
}

func fromMessage(u tele.Update) (kit.InboundEvent, error) {
	m := u.Message
	if m.Sender == nil || m.Chat == nil {
		return kit.InboundEvent{}, &domain.IngressError{Reason: "message without sender or chat"}
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return kit.InboundEvent{}, ErrUnsupported
	}
	ev := kit.InboundEvent{
		UpdateID:    int64(u.ID),
		Kind:        kit.EventText,
		RecipientID: m.Sender.ID,
		ChatID:      m.Chat.ID,
		Username:    m.Sender.Username,
		FirstName:   m.Sender.FirstName,
		Payload:     text,
		MessageID:   m.ID,
	}
	if cmd, args, ok := parseCommand(text); ok {
		ev.Kind = kit.EventCommand
		ev.Command = cmd
		ev.Args = args
	}
	return ev, nil
}

// parseCommand splits "/Start@BiteIQBot a b" into ("start", "a b").
func parseCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	head = strings.ToLower(strings.TrimSpace(head))
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(args), true
}
