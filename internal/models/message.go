package models

import "time"

// Attachment describes an image or file stored in object storage.
type Attachment struct {
	URL      string `bson:"url" json:"url"`
	Key      string `bson:"key,omitempty" json:"key,omitempty"` // object storage key, empty for external URLs
	Filename string `bson:"filename,omitempty" json:"filename,omitempty"`
	Size     int64  `bson:"size,omitempty" json:"size,omitempty"`
	MimeType string `bson:"mime_type,omitempty" json:"mime_type,omitempty"`
}

// SeenEntry records one participant having seen a group message.
// The seen_by list is append-only and holds at most one entry per user.
type SeenEntry struct {
	UserID string    `bson:"user_id" json:"user_id"`
	At     time.Time `bson:"at" json:"at"`
}

// Message delivery state moves sent -> delivered -> seen and never
// regresses: seen implies delivered, and repeated acknowledgements of an
// already-advanced message are no-ops.
type Message struct {
	ID             string      `bson:"_id" json:"id"`
	ConversationID string      `bson:"conversation_id" json:"conversation_id"`
	SenderID       string      `bson:"sender_id" json:"sender_id"`
	ReceiverID     string      `bson:"receiver_id,omitempty" json:"receiver_id,omitempty"` // legacy direct-chat field
	Content        string      `bson:"content" json:"content"`
	Image          *Attachment `bson:"image,omitempty" json:"image,omitempty"`

	Ephemeral       bool `bson:"ephemeral" json:"ephemeral"`
	EphemeralViewed bool `bson:"ephemeral_viewed" json:"ephemeral_viewed"`

	Delivered   bool        `bson:"delivered" json:"delivered"`
	DeliveredAt *time.Time  `bson:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	Seen        bool        `bson:"seen" json:"seen"`
	SeenAt      *time.Time  `bson:"seen_at,omitempty" json:"seen_at,omitempty"`
	SeenBy      []SeenEntry `bson:"seen_by,omitempty" json:"seen_by,omitempty"`

	Edited    bool                `bson:"edited" json:"edited"`
	Deleted   bool                `bson:"deleted" json:"deleted"`
	Pinned    bool                `bson:"pinned" json:"pinned"`
	Reactions map[string][]string `bson:"reactions,omitempty" json:"reactions,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// SeenByUser reports whether userID already appears in seen_by.
func (m *Message) SeenByUser(userID string) bool {
	for _, e := range m.SeenBy {
		if e.UserID == userID {
			return true
		}
	}
	return false
}
