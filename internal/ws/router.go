package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/delivery"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/registry"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
)

// handlerTimeout bounds every persistence call made from an event handler
// so a stuck call cannot leak a connection's reader goroutine.
const handlerTimeout = 5 * time.Second

var (
	ErrNotParticipant = errors.New("sender is not a participant")
	ErrRateLimited    = errors.New("message rate exceeded")
)

// Store is the persistence surface the router needs.
// *repository.MongoRepository implements it. Lookups report a missing
// document with repository.ErrNotFound; any other error is a real
// persistence failure and must not be swallowed.
type Store interface {
	Conversation(ctx context.Context, id string) (*models.Conversation, error)
	FindDirectConversation(ctx context.Context, a, b string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) (string, error)
	ConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	RevealToParticipants(ctx context.Context, conversationID string, userIDs []string) error
	TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error
	InsertMessage(ctx context.Context, msg *models.Message) error
	EditMessage(ctx context.Context, messageID, content string) error
	SoftDeleteMessage(ctx context.Context, messageID string) error
	SetPinned(ctx context.Context, messageID string, pinned bool) error
	AddReaction(ctx context.Context, messageID, emoji, userID string) error
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string, lastSeen time.Time) error
}

// StatusCache is the auxiliary Redis state written on a best-effort basis.
type StatusCache interface {
	SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error
	SetLastSeen(ctx context.Context, userID string, t time.Time) error
	AllowMessage(ctx context.Context, userID string, limit int, window time.Duration) (bool, error)
}

// Producer publishes chat events to the pipeline (kafka).
type Producer interface {
	Publish(topic string, payload any) error
}

// Router dispatches inbound events and applies the fan-out rules. It is
// shared by all connections; all mutable state lives in the registry and
// the hub.
type Router struct {
	store    Store
	reg      *registry.Registry
	hub      *Hub
	delivery *delivery.Service
	cache    StatusCache // optional
	producer Producer    // optional
	topicOut string
	msgRate  int
}

func NewRouter(store Store, reg *registry.Registry, hub *Hub, dlv *delivery.Service) *Router {
	return &Router{store: store, reg: reg, hub: hub, delivery: dlv, msgRate: 20}
}

func (r *Router) WithCache(c StatusCache) *Router { r.cache = c; return r }

func (r *Router) WithProducer(p Producer, topic string) *Router {
	r.producer = p
	r.topicOut = topic
	return r
}

func (r *Router) WithMessageRate(perSec int) *Router {
	if perSec > 0 {
		r.msgRate = perSec
	}
	return r
}

// Dispatch routes one inbound event. Malformed payloads are logged and
// dropped; no handler error ever propagates to the connection loop.
func (r *Router) Dispatch(c *Client, env Envelope) {
	metrics.Events.WithLabelValues(env.Event).Inc()
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch env.Event {
	case EvUserConnected:
		r.handleUserConnected(ctx, c, env.Data)
	case EvJoinConversation:
		if p, ok := decode[RoomPayload](env); ok && c.userID != "" {
			r.hub.Join(p.ConversationID, c, c.userID)
		}
	case EvLeaveConversation:
		if p, ok := decode[RoomPayload](env); ok {
			r.hub.Leave(p.ConversationID, c.ID())
		}
	case EvSendMessage:
		if p, ok := decode[SendMessagePayload](env); ok {
			if _, err := r.SendMessage(ctx, p); err != nil {
				log.Error().Err(err).Str("sender", p.Sender).Msg("sendMessage failed")
			}
		}
	case EvSendDirectMessage:
		if p, ok := decode[DirectMessagePayload](env); ok {
			r.handleSendDirect(ctx, c, p)
		}
	case EvTyping, EvStopTyping:
		if p, ok := decode[TypingPayload](env); ok {
			r.handleTyping(ctx, env.Event, p)
		}
	case EvDirectTyping, EvDirectStopTyping:
		if p, ok := decode[DirectTypingPayload](env); ok {
			// legacy path: no rooms, straight to the counterpart's handles
			r.reg.DeliverToUser(p.Receiver, env.Event, p)
		}
	case EvMessageDelivered:
		if p, ok := decode[DeliveredPayload](env); ok {
			affected, err := r.delivery.MarkDelivered(ctx, p.ConversationID, p.MessageIDs, p.DeliveredToUserID)
			if err != nil {
				log.Error().Err(err).Str("conversation", p.ConversationID).Msg("markDelivered failed")
				return
			}
			if len(affected) > 0 {
				metrics.DeliveryTransitions.WithLabelValues("delivered").Add(float64(len(affected)))
				r.publish("message.delivered", map[string]any{"conversation_id": p.ConversationID, "message_ids": affected})
			}
		}
	case EvMessageSeen:
		if p, ok := decode[SeenPayload](env); ok {
			affected, err := r.delivery.MarkSeen(ctx, p.ConversationID, p.MessageIDs, p.SeenByUserID)
			if err != nil {
				log.Error().Err(err).Str("conversation", p.ConversationID).Msg("markSeen failed")
				return
			}
			if len(affected) > 0 {
				metrics.DeliveryTransitions.WithLabelValues("seen").Add(float64(len(affected)))
				r.publish("message.seen", map[string]any{"conversation_id": p.ConversationID, "message_ids": affected})
			}
		}
	case EvMessageEdited, EvMessageDeleted, EvMessagePinned, EvMessageReaction:
		if p, ok := decode[MessageActionPayload](env); ok {
			r.handleMessageAction(ctx, env.Event, p)
		}
	case EvRequestConvsRefresh:
		if c.userID != "" {
			r.reg.DeliverToUser(c.userID, EvRefreshConversations, GlobalUpdatePayload{
				Type:      "refresh",
				Timestamp: time.Now().Unix(),
			})
		}
	default:
		log.Debug().Str("event", env.Event).Msg("unknown event, dropping")
	}
}

func decode[T any, P interface {
	*T
	Validate() error
}](env Envelope) (P, bool) {
	p := P(new(T))
	if err := json.Unmarshal(env.Data, p); err != nil {
		log.Warn().Err(err).Str("event", env.Event).Msg("malformed payload, dropping")
		return nil, false
	}
	if err := p.Validate(); err != nil {
		log.Warn().Err(err).Str("event", env.Event).Msg("invalid payload, dropping")
		return nil, false
	}
	return p, true
}

// handleUserConnected binds the connection to its user and reconstructs room
// membership: one room per conversation the user participates in and has
// revealed. Membership is connection-scoped, so this runs on every
// reconnect.
func (r *Router) handleUserConnected(ctx context.Context, c *Client, data json.RawMessage) {
	var p UserConnectedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Validate() != nil {
		log.Warn().Str("handle", c.ID()).Msg("malformed userConnected, dropping")
		return
	}
	if c.closed() {
		// lost the race with disconnect cleanup; do not resurrect the entry
		return
	}
	if !c.bind(p.UserID) {
		log.Warn().Str("handle", c.ID()).Str("user", p.UserID).Msg("rebind to different user refused")
		return
	}
	r.reg.Bind(p.UserID, c)
	if c.closed() {
		// disconnect slipped in between bind and now; undo
		r.reg.UnbindID(c.ID())
		return
	}

	if err := r.store.SetUserOnline(ctx, p.UserID); err != nil {
		log.Warn().Err(err).Str("user", p.UserID).Msg("set online failed")
	}

	convs, err := r.store.ConversationsForUser(ctx, p.UserID)
	if err != nil {
		log.Error().Err(err).Str("user", p.UserID).Msg("auto-rejoin query failed")
		return
	}
	for i := range convs {
		r.hub.Join(convs[i].ID, c, p.UserID)
	}
	log.Info().Str("user", p.UserID).Int("rooms", len(convs)).Msg("user connected")
}

// Disconnect runs unconditionally when a connection drops, whether or not
// it ever bound. Cleanup is best-effort: individual failures are swallowed
// so one connection's teardown can never take down another's.
func (r *Router) Disconnect(c *Client) {
	r.hub.LeaveAll(c.ID())
	r.reg.UnbindID(c.ID())
	if c.userID == "" {
		return
	}
	// only flip the persisted presence when the last handle is gone
	if r.reg.IsOnline(c.userID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	now := time.Now().UTC()
	if err := r.store.SetUserOffline(ctx, c.userID, now); err != nil {
		log.Warn().Err(err).Str("user", c.userID).Msg("set offline failed")
	}
	if r.cache != nil {
		if err := r.cache.SetLastSeen(ctx, c.userID, now); err != nil {
			log.Debug().Err(err).Str("user", c.userID).Msg("last_seen cache write failed")
		}
	}
	log.Info().Str("user", c.userID).Msg("user disconnected")
}

// SendMessage runs the full send flow: resolve or create the conversation,
// persist, run the visibility transition and fan out. Shared by the ws
// dispatch and the REST endpoint.
func (r *Router) SendMessage(ctx context.Context, p *SendMessagePayload) (*models.Message, error) {
	conv, err := r.resolveConversation(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}
	if !conv.HasParticipant(p.Sender) {
		return nil, ErrNotParticipant
	}
	if r.cache != nil {
		if ok, err := r.cache.AllowMessage(ctx, p.Sender, r.msgRate, time.Second); err == nil && !ok {
			return nil, ErrRateLimited
		}
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       p.Sender,
		ReceiverID:     p.Receiver,
		Content:        p.Content,
		Image:          p.Image,
		Ephemeral:      p.Ephemeral,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	if err := r.store.TouchLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		log.Warn().Err(err).Str("conversation", conv.ID).Msg("touch last message failed")
	}

	r.revealHiddenParticipants(ctx, conv)

	// the sender's own echo comes from the request path, not the room
	r.hub.BroadcastRoom(conv.ID, EvMessageReceived, msg, p.Sender)
	// every member refreshes its conversation list, sender included
	r.hub.BroadcastRoom(conv.ID, EvConversationUpdated, conv)
	// system-wide refresh signal covers clients not yet in the room
	r.reg.DeliverToAll(EvGlobalUpdate, GlobalUpdatePayload{
		Type:           "newMessage",
		ConversationID: conv.ID,
		Timestamp:      msg.CreatedAt.Unix(),
	})
	r.publish("message.new", msg)
	return msg, nil
}

// resolveConversation loads the target conversation, implicitly creating a
// direct one on first message to a never-messaged pair. Creation happens
// only when the lookup positively reports not-found; a transient lookup
// failure propagates, otherwise the pair would end up with two direct
// conversations splitting their history.
func (r *Router) resolveConversation(ctx context.Context, p *SendMessagePayload) (*models.Conversation, error) {
	if p.ConversationID != "" {
		return r.store.Conversation(ctx, p.ConversationID)
	}
	conv, err := r.store.FindDirectConversation(ctx, p.Sender, p.Receiver)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	conv = &models.Conversation{
		Participants: []string{p.Sender, p.Receiver},
		Initiator:    p.Sender,
		VisibleTo:    []string{p.Sender},
	}
	if _, err := r.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// revealHiddenParticipants runs the visibility transition: participants not
// yet in visible_to are persisted into it and, when online, notified on
// every live handle and joined to the room. Offline participants are
// covered by auto-rejoin on their next connect.
func (r *Router) revealHiddenParticipants(ctx context.Context, conv *models.Conversation) {
	hidden := conv.HiddenParticipants()
	if len(hidden) == 0 {
		return
	}
	if err := r.store.RevealToParticipants(ctx, conv.ID, hidden); err != nil {
		log.Error().Err(err).Str("conversation", conv.ID).Msg("persist visibility transition failed")
		return
	}
	conv.VisibleTo = append(conv.VisibleTo, hidden...)

	for _, userID := range hidden {
		for _, h := range r.reg.HandlesOf(userID) {
			r.hub.Join(conv.ID, h, userID)
			h.Deliver(EvNewConversationVisible, conv)
		}
	}
	// redundant room-wide fallback to maximize delivery robustness
	r.hub.BroadcastRoom(conv.ID, EvConversationBecameVisible, conv)
}

// handleSendDirect is the legacy direct path: it bypasses rooms and pushes
// straight to the counterpart's handles.
func (r *Router) handleSendDirect(ctx context.Context, c *Client, p *DirectMessagePayload) {
	conv, err := r.resolveConversation(ctx, &SendMessagePayload{Sender: p.Sender, Receiver: p.Receiver})
	if err != nil {
		log.Error().Err(err).Str("sender", p.Sender).Msg("resolve direct conversation failed")
		return
	}
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       p.Sender,
		ReceiverID:     p.Receiver,
		Content:        p.Content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.store.InsertMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("conversation", conv.ID).Msg("persist direct message failed")
		return
	}
	if err := r.store.TouchLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		log.Warn().Err(err).Str("conversation", conv.ID).Msg("touch last message failed")
	}
	r.revealHiddenParticipants(ctx, conv)
	r.reg.DeliverToUser(p.Receiver, EvMessageReceived, msg)
	r.publish("message.new", msg)
}

func (r *Router) handleTyping(ctx context.Context, event string, p *TypingPayload) {
	if r.cache != nil {
		if err := r.cache.SetTyping(ctx, p.ConversationID, p.Sender, event == EvTyping); err != nil {
			log.Debug().Err(err).Msg("typing cache write failed")
		}
	}
	// no persistence beyond the cache; typing never reaches the sender
	r.hub.BroadcastRoom(p.ConversationID, event, p, p.Sender)
}

// handleMessageAction persists edit/delete/pin/reaction and broadcasts to
// the entire room, originator included, so their other devices converge.
func (r *Router) handleMessageAction(ctx context.Context, event string, p *MessageActionPayload) {
	var err error
	switch event {
	case EvMessageEdited:
		err = r.store.EditMessage(ctx, p.MessageID, p.Content)
	case EvMessageDeleted:
		err = r.store.SoftDeleteMessage(ctx, p.MessageID)
	case EvMessagePinned:
		err = r.store.SetPinned(ctx, p.MessageID, p.Pinned)
	case EvMessageReaction:
		err = r.store.AddReaction(ctx, p.MessageID, p.Emoji, p.UserID)
	}
	if err != nil {
		log.Error().Err(err).Str("event", event).Str("message", p.MessageID).Msg("persist message action failed")
		return
	}
	r.hub.BroadcastRoom(p.ConversationID, event, p)
}

func (r *Router) publish(event string, payload any) {
	if r.producer == nil {
		return
	}
	if err := r.producer.Publish(r.topicOut, map[string]any{"event": event, "payload": payload}); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("kafka publish failed")
	}
}
