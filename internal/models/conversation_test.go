package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVisibleTo(t *testing.T) {
	tests := []struct {
		name string
		conv Conversation
		user string
		want bool
	}{
		{
			name: "listed user",
			conv: Conversation{Participants: []string{"a", "b"}, VisibleTo: []string{"a"}},
			user: "a",
			want: true,
		},
		{
			name: "hidden participant",
			conv: Conversation{Participants: []string{"a", "b"}, VisibleTo: []string{"a"}},
			user: "b",
			want: false,
		},
		{
			name: "legacy record without visible_to is visible to all",
			conv: Conversation{Participants: []string{"a", "b"}},
			user: "b",
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.conv.IsVisibleTo(tt.user))
		})
	}
}

func TestHiddenParticipants(t *testing.T) {
	conv := Conversation{
		Participants: []string{"a", "b", "c"},
		VisibleTo:    []string{"a"},
	}
	assert.ElementsMatch(t, []string{"b", "c"}, conv.HiddenParticipants())

	legacy := Conversation{Participants: []string{"a", "b"}}
	assert.Empty(t, legacy.HiddenParticipants(), "legacy records have nothing to reveal")
}

func TestSeenByUser(t *testing.T) {
	m := Message{SeenBy: []SeenEntry{{UserID: "a"}}}
	assert.True(t, m.SeenByUser("a"))
	assert.False(t, m.SeenByUser("b"))
}
