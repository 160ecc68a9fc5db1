package domain

import "time"

// MediaState holds the live audio/video/screen flags of one participant.
type MediaState struct {
	AudioEnabled  bool      `json:"audioEnabled"`
	VideoEnabled  bool      `json:"videoEnabled"`
	ScreenSharing bool      `json:"screenSharing"`
	LastUpdate    time.Time `json:"lastUpdate"`
}

// DefaultMediaState is what a participant starts with: microphone and camera on, no screen share.
func DefaultMediaState(now time.Time) MediaState {
	return MediaState{
		AudioEnabled:  true,
		VideoEnabled:  true,
		ScreenSharing: false,
		LastUpdate:    now,
	}
}

// MediaUpdate is an inbound change request. A nil flag means the client omitted it.
type MediaUpdate struct {
	AudioEnabled  *bool `json:"audioEnabled"`
	VideoEnabled  *bool `json:"videoEnabled"`
	ScreenSharing *bool `json:"screenSharing"`
}

// Apply overwrites every flag. Omitted flags are read as false, which is
// how existing clients expect a partial update to behave.
func (u MediaUpdate) Apply(now time.Time) MediaState {
	return MediaState{
		AudioEnabled:  flag(u.AudioEnabled),
		VideoEnabled:  flag(u.VideoEnabled),
		ScreenSharing: flag(u.ScreenSharing),
		LastUpdate:    now,
	}
}

func flag(b *bool) bool {
	return b != nil && *b
}
