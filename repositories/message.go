package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"meet-relay/contract"
	"meet-relay/domain"
	"meet-relay/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vmihailenco/msgpack/v5"
)

var _ contract.MessageRepository = (*MessageRepository)(nil)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

type diskMessage struct {
	ID        uuid.UUID  `msgpack:"id"`
	RoomID    uuid.UUID  `msgpack:"room_id"`
	SenderID  uuid.UUID  `msgpack:"sender_id"`
	Content   string     `msgpack:"content"`
	Type      string     `msgpack:"type"`
	CreatedAt int64      `msgpack:"created_at"`
	Edited    bool       `msgpack:"edited"`
	EditedAt  *int64     `msgpack:"edited_at"`
	ReplyTo   *uuid.UUID `msgpack:"reply_to"`
}

// messageKey is "msg:{room_id}:{timestamp_padded}:{uuid}":
//  1. 19-digit zero padding keeps chronological order lexicographic.
//  2. the UUID disambiguates two messages posted at the same nanosecond.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", m.RoomID, m.CreatedAt.UnixNano(), m.ID))
}

// indexKey points from a message id to its primary key.
func indexKey(roomID domain.RoomID, messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msgidx:%s:%s", roomID, messageID))
}

func roomPrefix(roomID domain.RoomID) string {
	return fmt.Sprintf("msg:%s:", roomID)
}

// StoreMessage writes the message and its id index in one transaction.
func (m *MessageRepository) StoreMessage(_ context.Context, message domain.Message) error {
	bytes, err := msgpack.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	key := messageKey(message)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(message.RoomID, message.ID), key)
	})
}

func (m *MessageRepository) GetMessage(_ context.Context, roomID domain.RoomID, messageID uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		_, msg, err := m.lookup(txn, roomID, messageID)
		message = msg
		return err
	})
	return message, err
}

// UpdateMessage rewrites the content of an existing message. Its key never changes.
func (m *MessageRepository) UpdateMessage(_ context.Context, message domain.Message) error {
	bytes, err := msgpack.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		key, _, err := m.lookup(txn, message.RoomID, message.ID)
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
}

func (m *MessageRepository) DeleteMessage(_ context.Context, roomID domain.RoomID, messageID uuid.UUID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		key, _, err := m.lookup(txn, roomID, messageID)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(indexKey(roomID, messageID))
	})
}

// GetMessages pages through a room, most recent first.
// The cursor is the key suffix of the last message returned by the previous page;
// a nil next cursor means there is nothing older.
func (m *MessageRepository) GetMessages(_ context.Context, roomID domain.RoomID, cursor *string, limit int) ([]domain.Message, *string, error) {
	var records []diskMessage
	var lastKey string
	prefixStr := roomPrefix(roomID)
	prefix := []byte(prefixStr)

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Start past the newest possible key then walk backwards
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999~")...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(records) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				return nil
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			var record diskMessage
			if err := item.Value(func(value []byte) error {
				return msgpack.Unmarshal(value, &record)
			}); err != nil {
				return err
			}
			records = append(records, record)
		}
		// Reached the oldest message
		lastKey = ""
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := lo.Map(records, func(r diskMessage, _ int) domain.Message { return toMessage(r) })
	if lastKey == "" {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

func (m *MessageRepository) lookup(txn *badger.Txn, roomID domain.RoomID, messageID uuid.UUID) ([]byte, domain.Message, error) {
	idx, err := txn.Get(indexKey(roomID, messageID))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return nil, domain.Message{}, err
	}
	key, err := idx.ValueCopy(nil)
	if err != nil {
		return nil, domain.Message{}, err
	}
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return nil, domain.Message{}, err
	}
	var record diskMessage
	if err := item.Value(func(value []byte) error {
		return msgpack.Unmarshal(value, &record)
	}); err != nil {
		return nil, domain.Message{}, err
	}
	return key, toMessage(record), nil
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:        message.ID,
		RoomID:    message.RoomID,
		SenderID:  message.SenderID,
		Content:   message.Content,
		Type:      string(message.Type),
		CreatedAt: message.CreatedAt.UnixNano(),
		Edited:    message.Edited,
		EditedAt:  unixNano(message.EditedAt),
		ReplyTo:   message.ReplyTo,
	}
}

func toMessage(record diskMessage) domain.Message {
	return domain.Message{
		ID:        record.ID,
		RoomID:    record.RoomID,
		SenderID:  record.SenderID,
		Content:   record.Content,
		Type:      domain.MessageType(record.Type),
		CreatedAt: time.Unix(0, record.CreatedAt).UTC(),
		Edited:    record.Edited,
		EditedAt:  fromUnixNano(record.EditedAt),
		ReplyTo:   record.ReplyTo,
	}
}
