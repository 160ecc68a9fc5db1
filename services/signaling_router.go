package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"meet-relay/contract"
	"meet-relay/domain"
	"meet-relay/domain/event"
	"meet-relay/errors"
	"meet-relay/runtime"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	_ FeatureHandler = (*SignalingRouter)(nil)
	_ Restorer       = (*SignalingRouter)(nil)
)

// SignalingRouter relays WebRTC negotiation between peers and keeps the room media flags in sync.
type SignalingRouter struct {
	log       *slog.Logger
	hub       *runtime.Hub
	media     *runtime.MediaStore
	directory contract.Directory
	activity  contract.ActivityRecorder
}

func NewSignalingRouter(log *slog.Logger, hub *runtime.Hub, media *runtime.MediaStore, directory contract.Directory, activity contract.ActivityRecorder) *SignalingRouter {
	return &SignalingRouter{
		log:       log.With("feature", hub.Feature),
		hub:       hub,
		media:     media,
		directory: directory,
		activity:  activity,
	}
}

// Joined seeds the newcomer media state, announces it and sends it the room snapshot.
func (r *SignalingRouter) Joined(ctx context.Context, s *runtime.Session) error {
	r.media.Seed(s.RoomID, s.UserID)
	r.hub.BroadcastExcept(ctx, s.RoomID, s.UserID, event.New(event.NewPeerType, event.NewPeer{UserID: s.UserID}))
	r.sendAllMediaStates(ctx, s)
	return r.sendParticipants(ctx, s)
}

// Leaving tells the room the participant is gone and forgets its media state.
func (r *SignalingRouter) Leaving(ctx context.Context, s *runtime.Session, reason domain.DisconnectReason) {
	evt := event.New(event.MediaStateUpdateType, event.Offline(s.UserID))
	if reason.Explicit() {
		evt = event.New(event.PeerLeftType, event.PeerLeft{UserID: s.UserID})
	}
	r.hub.BroadcastExcept(ctx, s.RoomID, s.UserID, evt)
	r.media.Remove(s.RoomID, s.UserID)
}

// Restore seeds the media state of a live session again. A session that left
// meanwhile gets its entry removed, whichever of the two cleanups ran last.
func (r *SignalingRouter) Restore(_ context.Context, s *runtime.Session) {
	r.media.Seed(s.RoomID, s.UserID)
	if s.Left() {
		r.media.Remove(s.RoomID, s.UserID)
	}
}

func (r *SignalingRouter) Handle(ctx context.Context, s *runtime.Session, env event.Envelope) error {
	switch env.Type {
	case event.OfferType, event.AnswerType:
		return r.relay(ctx, s, env, func(req event.RelayRequest) (any, bool) {
			return event.SessionDescription{FromUserID: s.UserID, SDP: req.SDP}, present(req.SDP)
		})
	case event.IceCandidateType:
		return r.relay(ctx, s, env, func(req event.RelayRequest) (any, bool) {
			return event.IceCandidate{FromUserID: s.UserID, Candidate: req.Candidate}, present(req.Candidate)
		})
	case event.GetParticipantsType:
		return r.sendParticipants(ctx, s)
	case event.MediaStateUpdateType:
		return r.updateMediaState(ctx, s, env)
	case event.RequestMediaStateType:
		state := r.media.Get(s.RoomID, s.UserID)
		r.hub.Deliver(ctx, s, event.New(event.MediaStateResponseType, event.MediaStateResponse{UserID: s.UserID, MediaState: state}))
		return nil
	case event.RequestAllMediaStatesType:
		r.sendAllMediaStates(ctx, s)
		return nil
	case event.PeerLeftType:
		return errors.ErrLeaveRequested
	case event.NewPeerType:
		r.log.Debug("Ignoring client new_peer", "room_id", s.RoomID, "user_id", s.UserID)
		return nil
	default:
		return fmt.Errorf("%w: %s", errors.ErrUnknownType, env.Type)
	}
}

// relay forwards a negotiation message to one peer of the same room.
// A target without a live connection is not an error: the message is dropped.
func (r *SignalingRouter) relay(ctx context.Context, s *runtime.Session, env event.Envelope, build func(event.RelayRequest) (any, bool)) error {
	var req event.RelayRequest
	if err := env.Bind(&req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if req.TargetUserID == "" {
		return fmt.Errorf("%w: targetUserId is required", errors.ErrInvalidPayload)
	}
	targetID, err := uuid.Parse(req.TargetUserID)
	if err != nil {
		return fmt.Errorf("%w: targetUserId: %v", errors.ErrInvalidPayload, err)
	}
	payload, ok := build(req)
	if !ok {
		return fmt.Errorf("%w: %s payload is required", errors.ErrInvalidPayload, env.Type)
	}

	target, found := r.hub.Registry.Get(targetID)
	if !found || target.RoomID != s.RoomID || target.Left() {
		r.log.Debug("Relay target not connected",
			"type", env.Type, "room_id", s.RoomID, "from", s.UserID, "to", targetID)
		return nil
	}
	r.hub.Deliver(ctx, target, event.New(env.Type, payload))
	return nil
}

func (r *SignalingRouter) updateMediaState(ctx context.Context, s *runtime.Session, env event.Envelope) error {
	var update domain.MediaUpdate
	if err := env.Bind(&update); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	state := r.media.Update(s.RoomID, s.UserID, update)
	if err := r.activity.RecordMediaActivity(ctx, s.RoomID, s.UserID, state); err != nil {
		r.log.Warn("Media activity not persisted", "room_id", s.RoomID, "user_id", s.UserID, "error", err)
	}
	r.hub.Broadcast(ctx, s.RoomID, event.New(event.MediaStateUpdateType, event.NewMediaStateUpdate(s.UserID, state)))
	return nil
}

// sendParticipants sends the persisted roster restricted to connected members.
func (r *SignalingRouter) sendParticipants(ctx context.Context, s *runtime.Session) error {
	roster, err := r.directory.ListParticipants(ctx, s.RoomID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	connected := lo.SliceToMap(r.hub.Presence.Members(s.RoomID), func(id domain.UserID) (domain.UserID, struct{}) {
		return id, struct{}{}
	})
	active := lo.FilterMap(roster, func(info domain.ParticipantInfo, _ int) (domain.ActiveParticipant, bool) {
		if _, ok := connected[info.UserID]; !ok {
			return domain.ActiveParticipant{}, false
		}
		return domain.NewActiveParticipant(info, r.media.Get(s.RoomID, info.UserID)), true
	})

	r.hub.Deliver(ctx, s, event.New(event.ParticipantsListType, event.ParticipantsList{
		Participants: active,
		Count:        len(active),
		RoomID:       s.RoomID,
	}))
	return nil
}

// sendAllMediaStates sends nothing while the room has no stored state.
func (r *SignalingRouter) sendAllMediaStates(ctx context.Context, s *runtime.Session) {
	snapshot := r.media.Snapshot(s.RoomID)
	if len(snapshot) == 0 {
		return
	}
	states := lo.MapEntries(snapshot, func(userID domain.UserID, state domain.MediaState) (string, domain.MediaState) {
		return userID.String(), state
	})
	r.hub.Deliver(ctx, s, event.New(event.AllMediaStatesType, event.AllMediaStates{RoomID: s.RoomID, States: states}))
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}
