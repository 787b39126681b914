package adapter

import (
	"errors"
	"testing"

	"biteiq/internal/domain"
	kit "biteiq/internal/transport"
)

func TestDecodeUpdate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    kit.InboundEvent
		wantErr error
		ingress bool
	}{
		{
			name: "text",
			body: `{"update_id":10,"message":{"message_id":3,"date":1,"from":{"id":7,"first_name":"Ana","username":"ana_k"},"chat":{"id":7,"type":"private"},"text":" Ana,29,F,165,60,medium,none,55 "}}`,
			want: kit.InboundEvent{UpdateID: 10, Kind: kit.EventText, RecipientID: 7, ChatID: 7, Username: "ana_k", FirstName: "Ana", Payload: "Ana,29,F,165,60,medium,none,55", MessageID: 3},
		},
		{
			name: "command with bot suffix",
			body: `{"update_id":11,"message":{"message_id":4,"date":1,"from":{"id":7,"first_name":"Ana"},"chat":{"id":7,"type":"private"},"text":"/Start@BiteIQBot  ref "}}`,
			want: kit.InboundEvent{UpdateID: 11, Kind: kit.EventCommand, RecipientID: 7, ChatID: 7, FirstName: "Ana", Command: "start", Args: "ref", Payload: "/Start@BiteIQBot  ref", MessageID: 4},
		},
		{
			name: "callback",
			body: `{"update_id":12,"callback_query":{"id":"cb1","from":{"id":42,"first_name":"Bo"},"message":{"message_id":9,"date":1,"chat":{"id":42,"type":"private"}},"data":"recipe|Salmon & Quinoa"}}`,
			want: kit.InboundEvent{UpdateID: 12, Kind: kit.EventCallback, RecipientID: 42, ChatID: 42, FirstName: "Bo", Payload: "recipe|Salmon & Quinoa", CallbackID: "cb1", MessageID: 9},
		},
		{name: "edited message", body: `{"update_id":13,"edited_message":{"message_id":1,"date":1,"chat":{"id":1,"type":"private"},"text":"x"}}`, wantErr: ErrUnsupported},
		{name: "photo without text", body: `{"update_id":14,"message":{"message_id":1,"date":1,"from":{"id":1,"first_name":"A"},"chat":{"id":1,"type":"private"}}}`, wantErr: ErrUnsupported},
		{name: "empty", body: `  `, ingress: true},
		{name: "garbage", body: `{not json`, ingress: true},
		{name: "message without sender", body: `{"update_id":15,"message":{"message_id":1,"date":1,"chat":{"id":1,"type":"private"},"text":"hi"}}`, ingress: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeUpdate([]byte(tt.body))
			switch {
			case tt.ingress:
				var ie *domain.IngressError
				if !errors.As(err, &ie) {
					t.Fatalf("err = %v, want IngressError", err)
				}
				return
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			case err != nil:
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v\nwant %+v", got, tt.want)
			}
		})
	}
}
