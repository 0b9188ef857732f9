package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/models"
)

var (
	ErrNotFound     = errors.New("message not found")
	ErrNotEphemeral = errors.New("message is not ephemeral")
	ErrNotAllowed   = errors.New("not allowed")
)

// Store is the persistence surface the state machine reads and writes.
// *repository.MongoRepository implements it.
type Store interface {
	Conversation(ctx context.Context, id string) (*models.Conversation, error)
	Message(ctx context.Context, id string) (*models.Message, error)
	UndeliveredMessages(ctx context.Context, conversationID string, ids []string, recipientID string) ([]models.Message, error)
	SetDelivered(ctx context.Context, conversationID string, ids []string, at time.Time) error
	UnseenMessages(ctx context.Context, conversationID string, ids []string, viewerID string, group bool) ([]models.Message, error)
	UnseenInConversation(ctx context.Context, conversationID, viewerID string, group bool) ([]models.Message, error)
	SetSeen(ctx context.Context, conversationID string, ids []string, at time.Time) error
	AppendSeenBy(ctx context.Context, messageID, userID string, at time.Time) error
	ClearEphemeralImage(ctx context.Context, messageID string) error
}

// Notifier pushes a named event to every live handle of a user. The session
// registry implements it; tests use a recording fake.
type Notifier interface {
	DeliverToUser(userID, event string, data any)
}

// ObjectStore deletes remote assets of viewed ephemeral messages.
type ObjectStore interface {
	DeleteObject(ctx context.Context, key string) error
}

// Service advances messages through sent -> delivered -> seen. Transitions
// are monotonic and idempotent: a repeated acknowledgement finds no
// candidate messages, changes nothing and notifies nobody.
type Service struct {
	store   Store
	notify  Notifier
	objects ObjectStore
	now     func() time.Time // injectable clock
}

func NewService(store Store, notify Notifier, objects ObjectStore) *Service {
	return &Service{store: store, notify: notify, objects: objects, now: time.Now}
}

// DeliveredUpdate is the batched acknowledgement pushed to a sender.
type DeliveredUpdate struct {
	ConversationID    string    `json:"conversationId"`
	MessageIDs        []string  `json:"messageIds"`
	DeliveredToUserID string    `json:"deliveredToUserId"`
	DeliveredAt       time.Time `json:"deliveredAt"`
}

// SeenUpdate is the batched seen acknowledgement pushed to a sender.
type SeenUpdate struct {
	ConversationID string    `json:"conversationId"`
	MessageIDs     []string  `json:"messageIds"`
	SeenByUserID   string    `json:"seenByUserId"`
	SeenAt         time.Time `json:"seenAt"`
}

// MarkDelivered records that recipient's device received the given
// messages. Only messages still undelivered are touched; their senders get
// one batched messagesDelivered event plus, for older clients, one
// messageDelivered per message, on every live handle. Returns the affected
// message IDs.
func (s *Service) MarkDelivered(ctx context.Context, conversationID string, messageIDs []string, recipientID string) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	candidates, err := s.store.UndeliveredMessages(ctx, conversationID, messageIDs, recipientID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	now := s.now().UTC()
	affected := make([]string, 0, len(candidates))
	bySender := make(map[string][]string)
	for _, m := range candidates {
		affected = append(affected, m.ID)
		bySender[m.SenderID] = append(bySender[m.SenderID], m.ID)
	}
	if err := s.store.SetDelivered(ctx, conversationID, affected, now); err != nil {
		return nil, err
	}

	for sender, ids := range bySender {
		if sender == recipientID {
			continue
		}
		update := DeliveredUpdate{
			ConversationID:    conversationID,
			MessageIDs:        ids,
			DeliveredToUserID: recipientID,
			DeliveredAt:       now,
		}
		s.notify.DeliverToUser(sender, "messagesDelivered", update)
		for _, id := range ids {
			s.notify.DeliverToUser(sender, "messageDelivered", DeliveredUpdate{
				ConversationID:    conversationID,
				MessageIDs:        []string{id},
				DeliveredToUserID: recipientID,
				DeliveredAt:       now,
			})
		}
	}
	return affected, nil
}

// MarkSeen records that recipient looked at the given messages. Seen forces
// delivered; group conversations additionally get a per-user seen_by entry,
// appended at most once per user.
func (s *Service) MarkSeen(ctx context.Context, conversationID string, messageIDs []string, recipientID string) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	conv, err := s.store.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.store.UnseenMessages(ctx, conversationID, messageIDs, recipientID, conv.IsGroup)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	now := s.now().UTC()
	affected := make([]string, 0, len(candidates))
	bySender := make(map[string][]string)
	for _, m := range candidates {
		affected = append(affected, m.ID)
		bySender[m.SenderID] = append(bySender[m.SenderID], m.ID)
	}

	if conv.IsGroup {
		for _, id := range affected {
			if err := s.store.AppendSeenBy(ctx, id, recipientID, now); err != nil {
				return nil, err
			}
		}
	}
	if err := s.store.SetSeen(ctx, conversationID, affected, now); err != nil {
		return nil, err
	}

	for sender, ids := range bySender {
		if sender == recipientID {
			continue
		}
		update := SeenUpdate{
			ConversationID: conversationID,
			MessageIDs:     ids,
			SeenByUserID:   recipientID,
			SeenAt:         now,
		}
		s.notify.DeliverToUser(sender, "messagesSeen", update)
		for _, id := range ids {
			s.notify.DeliverToUser(sender, "messageSeen", SeenUpdate{
				ConversationID: conversationID,
				MessageIDs:     []string{id},
				SeenByUserID:   recipientID,
				SeenAt:         now,
			})
		}
	}
	return affected, nil
}

// MarkConversationSeen is the bulk REST path: every message in the
// conversation not sent by the caller becomes seen. The caller must be a
// participant.
func (s *Service) MarkConversationSeen(ctx context.Context, conversationID, callerID string) ([]string, error) {
	conv, err := s.store.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, ErrNotAllowed
	}
	candidates, err := s.store.UnseenInConversation(ctx, conversationID, callerID, conv.IsGroup)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(candidates))
	for _, m := range candidates {
		ids = append(ids, m.ID)
	}
	return s.MarkSeen(ctx, conversationID, ids, callerID)
}

// MarkEphemeralViewed performs the irreversible first-view transition of an
// ephemeral message. Access policy: when the legacy receiver field is set
// only that user may view; otherwise any non-sender participant of the
// conversation. The remote object is deleted before the local clear commits;
// if deletion fails the whole operation fails and nothing is persisted.
// Repeat calls succeed, reporting alreadyViewed.
func (s *Service) MarkEphemeralViewed(ctx context.Context, messageID, callerID string) (alreadyViewed bool, err error) {
	msg, err := s.store.Message(ctx, messageID)
	if err != nil {
		return false, err
	}
	if !msg.Ephemeral {
		return false, ErrNotEphemeral
	}
	if msg.ReceiverID != "" {
		if callerID != msg.ReceiverID {
			return false, ErrNotAllowed
		}
	} else {
		conv, err := s.store.Conversation(ctx, msg.ConversationID)
		if err != nil {
			return false, err
		}
		if !conv.HasParticipant(callerID) || callerID == msg.SenderID {
			return false, ErrNotAllowed
		}
	}
	if msg.EphemeralViewed {
		return true, nil
	}

	if msg.Image != nil && msg.Image.Key != "" {
		if s.objects == nil {
			return false, fmt.Errorf("ephemeral asset %s: no object storage configured", msg.Image.Key)
		}
		if err := s.objects.DeleteObject(ctx, msg.Image.Key); err != nil {
			return false, fmt.Errorf("delete ephemeral asset: %w", err)
		}
	}
	if err := s.store.ClearEphemeralImage(ctx, messageID); err != nil {
		return false, err
	}
	log.Info().Str("message_id", messageID).Str("viewer", callerID).Msg("ephemeral message viewed")
	return false, nil
}
