package workers

import (
	"context"
	"log/slog"
	"meet-relay/contract"
	"meet-relay/domain"
	"meet-relay/runtime"
	"time"

	"github.com/samber/lo"
)

var _ contract.Worker = (*ActivityHeartbeat)(nil)

// ActivityHeartbeat refreshes the persisted last-active time of every connected
// participant, so a long call with no roster change still reads as active.
type ActivityHeartbeat struct {
	log        *slog.Logger
	activity   contract.ActivityRecorder
	registries []*runtime.Registry
	interval   time.Duration
}

func NewActivityHeartbeat(log *slog.Logger, activity contract.ActivityRecorder, interval time.Duration, registries ...*runtime.Registry) *ActivityHeartbeat {
	return &ActivityHeartbeat{log: log, activity: activity, registries: registries, interval: interval}
}

func (w *ActivityHeartbeat) Run(ctx context.Context) error {
	w.log.Info("Starting activity heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Beat(ctx)
		}
	}
}

// Beat touches each (room, participant) once even when it holds both a signaling and a chat connection.
func (w *ActivityHeartbeat) Beat(ctx context.Context) int {
	type member struct {
		room domain.RoomID
		user domain.UserID
	}
	var sessions []*runtime.Session
	for _, registry := range w.registries {
		sessions = append(sessions, registry.Sessions()...)
	}
	live := lo.Filter(sessions, func(s *runtime.Session, _ int) bool { return !s.Left() })
	members := lo.UniqBy(lo.Map(live, func(s *runtime.Session, _ int) member {
		return member{room: s.RoomID, user: s.UserID}
	}), func(m member) member { return m })

	touched := 0
	for _, m := range members {
		if err := w.activity.TouchParticipant(ctx, m.room, m.user); err != nil {
			w.log.Warn("Failed to refresh participant activity", "room_id", m.room, "user_id", m.user, "error", err)
			continue
		}
		touched++
	}
	w.log.Debug("Activity heartbeat", "participants", touched)
	return touched
}
