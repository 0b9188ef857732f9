package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/registry"
)

// LastSeenSource reads the persisted last_seen timestamp for a user. The
// repository (with its Redis read-through cache) implements this; the value
// is written externally on disconnect.
type LastSeenSource interface {
	LastSeen(ctx context.Context, userID string) (time.Time, error)
}

// Status is a point-in-time presence snapshot for one user.
type Status struct {
	UserID   string    `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// Tracker derives presence from registry occupancy. Presence is a derived
// fact, not stored state: there is no caching beyond the snapshot each call
// produces.
type Tracker struct {
	reg      *registry.Registry
	lastSeen LastSeenSource
}

func NewTracker(reg *registry.Registry, src LastSeenSource) *Tracker {
	return &Tracker{reg: reg, lastSeen: src}
}

func (t *Tracker) IsOnline(userID string) bool {
	return t.reg.IsOnline(userID)
}

func (t *Tracker) OnlineUserIDs() []string {
	return t.reg.AllOnlineUserIDs()
}

// Snapshot pairs each requested user with its online flag and persisted
// last_seen. A missing user record costs the timestamp, not the entry.
func (t *Tracker) Snapshot(ctx context.Context, userIDs []string) []Status {
	out := make([]Status, 0, len(userIDs))
	for _, id := range userIDs {
		st := Status{UserID: id, IsOnline: t.reg.IsOnline(id)}
		if t.lastSeen != nil {
			ts, err := t.lastSeen.LastSeen(ctx, id)
			if err != nil {
				log.Debug().Err(err).Str("user_id", id).Msg("last_seen lookup failed")
			} else {
				st.LastSeen = ts
			}
		}
		out = append(out, st)
	}
	return out
}
