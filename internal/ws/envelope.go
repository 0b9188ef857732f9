package ws

import (
	"encoding/json"
	"errors"

	"github.com/fathima-sithara/realtime-chat/internal/models"
)

// Envelope is the standard wire format for ws events, both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EvUserConnected       = "userConnected"
	EvJoinConversation    = "joinConversation"
	EvLeaveConversation   = "leaveConversation"
	EvSendMessage         = "sendMessage"
	EvSendDirectMessage   = "sendDirectMessage"
	EvTyping              = "typing"
	EvStopTyping          = "stopTyping"
	EvDirectTyping        = "directTyping"
	EvDirectStopTyping    = "directStopTyping"
	EvMessageDelivered    = "messageDelivered"
	EvMessageSeen         = "messageSeen"
	EvMessageEdited       = "messageEdited"
	EvMessageDeleted      = "messageDeleted"
	EvMessagePinned       = "messagePinned"
	EvMessageReaction     = "messageReaction"
	EvRequestConvsRefresh = "requestConversationsRefresh"
)

// Outbound event names.
const (
	EvMessageReceived          = "messageReceived"
	EvConversationUpdated      = "conversationUpdated"
	EvGlobalUpdate             = "globalUpdate"
	EvMessagesDelivered        = "messagesDelivered"
	EvMessagesSeen             = "messagesSeen"
	EvNewConversationVisible   = "newConversationVisible"
	EvConversationBecameVisible = "conversationBecameVisible"
	EvRefreshConversations     = "refreshConversations"
)

// Each inbound event carries a typed payload validated at the boundary
// before dispatch; malformed payloads are logged and dropped, never echoed
// back (fire-and-forget channel).

type UserConnectedPayload struct {
	UserID string `json:"userId"`
}

func (p *UserConnectedPayload) Validate() error {
	if p.UserID == "" {
		return errors.New("userId required")
	}
	return nil
}

type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

func (p *RoomPayload) Validate() error {
	if p.ConversationID == "" {
		return errors.New("conversationId required")
	}
	return nil
}

type SendMessagePayload struct {
	Sender         string             `json:"sender"`
	ConversationID string             `json:"conversationId"`
	Receiver       string             `json:"receiver,omitempty"` // legacy direct path
	Content        string             `json:"content"`
	Image          *models.Attachment `json:"image,omitempty"`
	Ephemeral      bool               `json:"ephemeral,omitempty"`
}

func (p *SendMessagePayload) Validate() error {
	if p.Sender == "" {
		return errors.New("sender required")
	}
	if p.ConversationID == "" && p.Receiver == "" {
		return errors.New("conversationId or receiver required")
	}
	if p.Content == "" && p.Image == nil {
		return errors.New("content required without attachment")
	}
	return nil
}

type DirectMessagePayload struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

func (p *DirectMessagePayload) Validate() error {
	if p.Sender == "" || p.Receiver == "" {
		return errors.New("sender and receiver required")
	}
	if p.Content == "" {
		return errors.New("content required")
	}
	return nil
}

type TypingPayload struct {
	Sender         string `json:"sender"`
	ConversationID string `json:"conversationId"`
}

func (p *TypingPayload) Validate() error {
	if p.Sender == "" || p.ConversationID == "" {
		return errors.New("sender and conversationId required")
	}
	return nil
}

type DirectTypingPayload struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

func (p *DirectTypingPayload) Validate() error {
	if p.Sender == "" || p.Receiver == "" {
		return errors.New("sender and receiver required")
	}
	return nil
}

type DeliveredPayload struct {
	ConversationID    string   `json:"conversationId"`
	MessageIDs        []string `json:"messageIds"`
	DeliveredToUserID string   `json:"deliveredToUserId"`
}

func (p *DeliveredPayload) Validate() error {
	if p.ConversationID == "" || len(p.MessageIDs) == 0 || p.DeliveredToUserID == "" {
		return errors.New("conversationId, messageIds and deliveredToUserId required")
	}
	return nil
}

type SeenPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	SeenByUserID   string   `json:"seenByUserId"`
}

func (p *SeenPayload) Validate() error {
	if p.ConversationID == "" || len(p.MessageIDs) == 0 || p.SeenByUserID == "" {
		return errors.New("conversationId, messageIds and seenByUserId required")
	}
	return nil
}

// MessageActionPayload covers edit, delete, pin and reaction events; all
// are broadcast to the entire room including the originator so that their
// other devices converge too.
type MessageActionPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Content        string `json:"content,omitempty"` // edit
	Pinned         bool   `json:"pinned,omitempty"`  // pin
	Emoji          string `json:"emoji,omitempty"`   // reaction
}

func (p *MessageActionPayload) Validate() error {
	if p.MessageID == "" || p.ConversationID == "" {
		return errors.New("messageId and conversationId required")
	}
	return nil
}

// GlobalUpdatePayload is the lightweight system-wide refresh signal sent on
// every message so clients not yet joined to the room still refresh their
// conversation lists.
type GlobalUpdatePayload struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}
