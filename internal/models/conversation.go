package models

import "time"

// Conversation is a direct or group chat between two or more users.
//
// VisibleTo is the subset of participants that currently see the
// conversation in their list. A fresh direct conversation starts with
// VisibleTo = {Initiator}; it grows to all participants the moment the
// first message is sent, never at connect time.
type Conversation struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	Participants  []string  `bson:"participants" json:"participants"`
	IsGroup       bool      `bson:"is_group" json:"is_group"`
	GroupName     string    `bson:"group_name,omitempty" json:"group_name,omitempty"`
	GroupImage    string    `bson:"group_image,omitempty" json:"group_image,omitempty"`
	Initiator     string    `bson:"initiator" json:"initiator"`
	VisibleTo     []string  `bson:"visible_to" json:"visible_to"`
	LastMessageID string    `bson:"last_message_id,omitempty" json:"last_message_id,omitempty"`
	LastActivity  time.Time `bson:"last_activity" json:"last_activity"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsVisibleTo reports whether the conversation is revealed in userID's list.
// An empty visible_to is treated as visible to everyone (legacy documents
// created before the field existed).
func (c *Conversation) IsVisibleTo(userID string) bool {
	if len(c.VisibleTo) == 0 {
		return true
	}
	for _, u := range c.VisibleTo {
		if u == userID {
			return true
		}
	}
	return false
}

// HiddenParticipants returns the participants missing from visible_to.
func (c *Conversation) HiddenParticipants() []string {
	if len(c.VisibleTo) == 0 {
		return nil
	}
	visible := make(map[string]bool, len(c.VisibleTo))
	for _, u := range c.VisibleTo {
		visible[u] = true
	}
	var hidden []string
	for _, p := range c.Participants {
		if !visible[p] {
			hidden = append(hidden, p)
		}
	}
	return hidden
}
