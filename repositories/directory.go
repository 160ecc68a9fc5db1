package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"meet-relay/contract"
	"meet-relay/domain"
	"meet-relay/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ contract.Directory        = (*DirectoryRepository)(nil)
	_ contract.ActivityRecorder = (*DirectoryRepository)(nil)
)

// DirectoryRepository stores users, rooms and room participants in BadgerDB.
type DirectoryRepository struct {
	db  *badger.DB
	now func() time.Time
}

func NewDirectoryRepository(db *badger.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type diskUser struct {
	ID             uuid.UUID `msgpack:"id"`
	Name           string    `msgpack:"name"`
	Email          string    `msgpack:"email"`
	Avatar         string    `msgpack:"avatar"`
	Guest          bool      `msgpack:"guest"`
	GuestExpiresAt *int64    `msgpack:"guest_expires_at"`
}

type diskRoom struct {
	ID              uuid.UUID `msgpack:"id"`
	Title           string    `msgpack:"title"`
	OwnerID         uuid.UUID `msgpack:"owner_id"`
	Status          string    `msgpack:"status"`
	Public          bool      `msgpack:"public"`
	MaxParticipants int       `msgpack:"max_participants"`
	CreatedAt       int64     `msgpack:"created_at"`
}

type diskParticipant struct {
	RoomID       uuid.UUID `msgpack:"room_id"`
	UserID       uuid.UUID `msgpack:"user_id"`
	Role         string    `msgpack:"role"`
	Status       string    `msgpack:"status"`
	LeftAt       *int64    `msgpack:"left_at"`
	JoinedAt     int64     `msgpack:"joined_at"`
	LastActiveAt int64     `msgpack:"last_active_at"`
	AudioEnabled bool      `msgpack:"audio_enabled"`
	VideoEnabled bool      `msgpack:"video_enabled"`
}

func userKey(id domain.UserID) []byte { return []byte("user:" + id.String()) }
func roomKey(id domain.RoomID) []byte { return []byte("room:" + id.String()) }

func participantPrefix(roomID domain.RoomID) string {
	return fmt.Sprintf("participant:%s:", roomID)
}

func participantKey(roomID domain.RoomID, userID domain.UserID) []byte {
	return []byte(participantPrefix(roomID) + userID.String())
}

func (d *DirectoryRepository) SaveUser(user domain.User) error {
	return d.put(userKey(user.ID), fromUser(user))
}

func (d *DirectoryRepository) SaveRoom(room domain.Room) error {
	return d.put(roomKey(room.ID), fromRoom(room))
}

func (d *DirectoryRepository) SaveParticipant(participant domain.Participant) error {
	return d.put(participantKey(participant.RoomID, participant.UserID), fromParticipant(participant))
}

func (d *DirectoryRepository) GetUser(_ context.Context, userID domain.UserID) (domain.User, error) {
	var record diskUser
	if err := d.get(userKey(userID), &record, errors.ErrUserNotFound); err != nil {
		return domain.User{}, err
	}
	return toUser(record), nil
}

func (d *DirectoryRepository) GetRoom(_ context.Context, roomID domain.RoomID) (domain.Room, error) {
	var record diskRoom
	if err := d.get(roomKey(roomID), &record, errors.ErrRoomNotFound); err != nil {
		return domain.Room{}, err
	}
	return toRoom(record), nil
}

func (d *DirectoryRepository) GetParticipant(_ context.Context, roomID domain.RoomID, userID domain.UserID) (domain.Participant, error) {
	var record diskParticipant
	if err := d.get(participantKey(roomID, userID), &record, errors.ErrNotParticipant); err != nil {
		return domain.Participant{}, err
	}
	return toParticipant(record), nil
}

// ListParticipants returns the active participants of a room joined with their user profile.
func (d *DirectoryRepository) ListParticipants(_ context.Context, roomID domain.RoomID) ([]domain.ParticipantInfo, error) {
	var infos []domain.ParticipantInfo
	err := d.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(participantPrefix(roomID))
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var record diskParticipant
			if err := it.Item().Value(func(value []byte) error {
				return msgpack.Unmarshal(value, &record)
			}); err != nil {
				return err
			}
			participant := toParticipant(record)
			if !participant.IsActive() {
				continue
			}
			var user diskUser
			if err := getIn(txn, userKey(participant.UserID), &user, errors.ErrUserNotFound); err != nil {
				if stderrors.Is(err, errors.ErrUserNotFound) {
					continue
				}
				return err
			}
			infos = append(infos, domain.ParticipantInfo{
				UserID:       participant.UserID,
				Name:         user.Name,
				Email:        user.Email,
				Role:         participant.Role,
				Guest:        user.Guest,
				JoinedAt:     participant.JoinedAt,
				LastActiveAt: participant.LastActiveAt,
			})
		}
		return nil
	})
	return infos, err
}

// IsHost is true for the room owner and for participants holding the HOST role.
func (d *DirectoryRepository) IsHost(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error) {
	room, err := d.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if room.IsOwner(userID) {
		return true, nil
	}
	participant, err := d.GetParticipant(ctx, roomID, userID)
	if stderrors.Is(err, errors.ErrNotParticipant) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return participant.Role == domain.RoleHost, nil
}

func (d *DirectoryRepository) TouchParticipant(_ context.Context, roomID domain.RoomID, userID domain.UserID) error {
	return d.updateParticipant(roomID, userID, func(p *diskParticipant) {
		p.LastActiveAt = d.now().UnixNano()
	})
}

func (d *DirectoryRepository) RecordMediaActivity(_ context.Context, roomID domain.RoomID, userID domain.UserID, state domain.MediaState) error {
	return d.updateParticipant(roomID, userID, func(p *diskParticipant) {
		p.AudioEnabled = state.AudioEnabled
		p.VideoEnabled = state.VideoEnabled
		p.LastActiveAt = d.now().UnixNano()
	})
}

func (d *DirectoryRepository) updateParticipant(roomID domain.RoomID, userID domain.UserID, fn func(p *diskParticipant)) error {
	key := participantKey(roomID, userID)
	return d.db.Update(func(txn *badger.Txn) error {
		var record diskParticipant
		if err := getIn(txn, key, &record, errors.ErrNotParticipant); err != nil {
			return err
		}
		fn(&record)
		data, err := msgpack.Marshal(&record)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func (d *DirectoryRepository) put(key []byte, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (d *DirectoryRepository) get(key []byte, v any, notFound error) error {
	return d.db.View(func(txn *badger.Txn) error {
		return getIn(txn, key, v, notFound)
	})
}

func getIn(txn *badger.Txn, key []byte, v any, notFound error) error {
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return notFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(value []byte) error {
		return msgpack.Unmarshal(value, v)
	})
}

func unixNano(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	return lo.ToPtr(t.UnixNano())
}

func fromUnixNano(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	return lo.ToPtr(time.Unix(0, *n).UTC())
}

func fromUser(u domain.User) diskUser {
	return diskUser{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Avatar:         u.Avatar,
		Guest:          u.Guest,
		GuestExpiresAt: unixNano(u.GuestExpiresAt),
	}
}

func toUser(r diskUser) domain.User {
	return domain.User{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email,
		Avatar:         r.Avatar,
		Guest:          r.Guest,
		GuestExpiresAt: fromUnixNano(r.GuestExpiresAt),
	}
}

func fromRoom(r domain.Room) diskRoom {
	return diskRoom{
		ID:              r.ID,
		Title:           r.Title,
		OwnerID:         r.OwnerID,
		Status:          string(r.Status),
		Public:          r.Public,
		MaxParticipants: r.MaxParticipants,
		CreatedAt:       r.CreatedAt.UnixNano(),
	}
}

func toRoom(r diskRoom) domain.Room {
	return domain.Room{
		ID:              r.ID,
		Title:           r.Title,
		OwnerID:         r.OwnerID,
		Status:          domain.RoomStatus(r.Status),
		Public:          r.Public,
		MaxParticipants: r.MaxParticipants,
		CreatedAt:       time.Unix(0, r.CreatedAt).UTC(),
	}
}

func fromParticipant(p domain.Participant) diskParticipant {
	return diskParticipant{
		RoomID:       p.RoomID,
		UserID:       p.UserID,
		Role:         string(p.Role),
		Status:       string(p.Status),
		LeftAt:       unixNano(p.LeftAt),
		JoinedAt:     p.JoinedAt.UnixNano(),
		LastActiveAt: p.LastActiveAt.UnixNano(),
		AudioEnabled: p.AudioEnabled,
		VideoEnabled: p.VideoEnabled,
	}
}

func toParticipant(r diskParticipant) domain.Participant {
	return domain.Participant{
		RoomID:       r.RoomID,
		UserID:       r.UserID,
		Role:         domain.Role(r.Role),
		Status:       domain.ParticipantStatus(r.Status),
		LeftAt:       fromUnixNano(r.LeftAt),
		JoinedAt:     time.Unix(0, r.JoinedAt).UTC(),
		LastActiveAt: time.Unix(0, r.LastActiveAt).UTC(),
		AudioEnabled: r.AudioEnabled,
		VideoEnabled: r.VideoEnabled,
	}
}
