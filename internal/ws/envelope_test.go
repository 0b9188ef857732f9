package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundsThroughRawData(t *testing.T) {
	raw := []byte(`{"event":"sendMessage","data":{"sender":"alice","conversationId":"c1","content":"hi"}}`)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EvSendMessage, env.Event)

	var p SendMessagePayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "alice", p.Sender)
	assert.NoError(t, p.Validate())
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload SendMessagePayload
		wantErr bool
	}{
		{name: "content to conversation", payload: SendMessagePayload{Sender: "a", ConversationID: "c1", Content: "hi"}},
		{name: "content to receiver", payload: SendMessagePayload{Sender: "a", Receiver: "b", Content: "hi"}},
		{name: "missing sender", payload: SendMessagePayload{ConversationID: "c1", Content: "hi"}, wantErr: true},
		{name: "no destination", payload: SendMessagePayload{Sender: "a", Content: "hi"}, wantErr: true},
		{name: "empty without attachment", payload: SendMessagePayload{Sender: "a", ConversationID: "c1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeliveredPayloadValidation(t *testing.T) {
	p := DeliveredPayload{ConversationID: "c1", MessageIDs: []string{"m1"}, DeliveredToUserID: "bob"}
	assert.NoError(t, p.Validate())

	p.MessageIDs = nil
	assert.Error(t, p.Validate())
}

func TestSeenPayloadValidation(t *testing.T) {
	p := SeenPayload{ConversationID: "c1", MessageIDs: []string{"m1"}, SeenByUserID: "bob"}
	assert.NoError(t, p.Validate())

	p.SeenByUserID = ""
	assert.Error(t, p.Validate())
}

func TestMessageActionValidation(t *testing.T) {
	p := MessageActionPayload{MessageID: "m1", ConversationID: "c1"}
	assert.NoError(t, p.Validate())

	p.MessageID = ""
	assert.Error(t, p.Validate())
}
