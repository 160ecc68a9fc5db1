package event

import (
	"encoding/json"
	"meet-relay/domain"
)

const (
	NewPeerType               Type = "new_peer"
	PeerLeftType              Type = "peer_left"
	OfferType                 Type = "offer"
	AnswerType                Type = "answer"
	IceCandidateType          Type = "ice_candidate"
	GetParticipantsType       Type = "get_participants"
	ParticipantsListType      Type = "participants_list"
	MediaStateUpdateType      Type = "media_state_update"
	RequestMediaStateType     Type = "request_media_state"
	MediaStateResponseType    Type = "media_state_response"
	RequestAllMediaStatesType Type = "request_all_media_states"
	AllMediaStatesType        Type = "all_media_states"
)

type NewPeer struct {
	UserID domain.UserID `json:"userId"`
}

type PeerLeft struct {
	UserID domain.UserID `json:"userId"`
}

// RelayRequest is an inbound offer, answer or ice_candidate.
// Sdp and Candidate are opaque and forwarded untouched.
type RelayRequest struct {
	TargetUserID string          `json:"targetUserId"`
	SDP          json.RawMessage `json:"sdp"`
	Candidate    json.RawMessage `json:"candidate"`
}

type SessionDescription struct {
	FromUserID domain.UserID   `json:"fromUserId"`
	SDP        json.RawMessage `json:"sdp"`
}

type IceCandidate struct {
	FromUserID domain.UserID   `json:"fromUserId"`
	Candidate  json.RawMessage `json:"candidate"`
}

type ParticipantsList struct {
	Participants []domain.ActiveParticipant `json:"participants"`
	Count        int                        `json:"count"`
	RoomID       domain.RoomID              `json:"roomId"`
}

type MediaStateUpdate struct {
	UserID        domain.UserID `json:"userId"`
	AudioEnabled  bool          `json:"audioEnabled"`
	VideoEnabled  bool          `json:"videoEnabled"`
	ScreenSharing bool          `json:"screenSharing"`
	IsOffline     bool          `json:"isOffline,omitempty"`
}

func NewMediaStateUpdate(userID domain.UserID, state domain.MediaState) MediaStateUpdate {
	return MediaStateUpdate{
		UserID:        userID,
		AudioEnabled:  state.AudioEnabled,
		VideoEnabled:  state.VideoEnabled,
		ScreenSharing: state.ScreenSharing,
	}
}

// Offline announces that a participant dropped without saying goodbye.
func Offline(userID domain.UserID) MediaStateUpdate {
	return MediaStateUpdate{UserID: userID, IsOffline: true}
}

type MediaStateResponse struct {
	UserID domain.UserID `json:"userId"`
	domain.MediaState
}

type AllMediaStates struct {
	RoomID domain.RoomID                `json:"roomId"`
	States map[string]domain.MediaState `json:"states"`
}
