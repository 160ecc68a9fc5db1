package repositories

import (
	"fmt"
	"strings"

	"github.com/mama165/sdk-go/database"
	"github.com/vmihailenco/msgpack/v5"
)

// InspectMapper renders the records of this package in the Badger debug inspector.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "msg:"):
		var m diskMessage
		if err := msgpack.Unmarshal(val, &m); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "CHAT"
		row.Detail = m.Content
		if m.Edited {
			row.Scores = "edited"
		}
	case strings.HasPrefix(key, "participant:"):
		var p diskParticipant
		if err := msgpack.Unmarshal(val, &p); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "PARTICIPANT"
		row.Detail = fmt.Sprintf("%s %s", p.Role, p.Status)
		row.Scores = fmt.Sprintf("audio:%t video:%t", p.AudioEnabled, p.VideoEnabled)
	case strings.HasPrefix(key, "user:"):
		var u diskUser
		if err := msgpack.Unmarshal(val, &u); err == nil {
			row.Type = "USER"
			row.Detail = u.Name
		}
	case strings.HasPrefix(key, "room:"):
		var r diskRoom
		if err := msgpack.Unmarshal(val, &r); err == nil {
			row.Type = "ROOM"
			row.Detail = fmt.Sprintf("%s (%s)", r.Title, r.Status)
		}
	}
	return row
}
