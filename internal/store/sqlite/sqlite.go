package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bonfirelabs/bonfire-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'group',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   INTEGER NOT NULL REFERENCES rooms(id),
	user_id   INTEGER NOT NULL,
	joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	room_id       INTEGER NOT NULL REFERENCES rooms(id),
	seq           INTEGER NOT NULL,
	author_id     INTEGER NOT NULL,
	body          TEXT NOT NULL,
	client_msg_id TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (room_id, seq)
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_messages_room_client
	ON messages(room_id, client_msg_id);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file (":memory:" for tests).
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single writer connection. This also makes
	// per-room seq assignment race-free: appends are serialized here.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== RoomStore implementation ====

// CreateRoom creates a new room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, roomType store.RoomType) (*store.Room, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (name, type) VALUES (?, ?)`, name, string(roomType))
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetRoomByID(ctx, id)
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, created_at FROM rooms WHERE id = ?`, id)

	var r store.Room
	var roomType string
	if err := row.Scan(&r.ID, &r.Name, &roomType, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrRoomNotFound
		}
		return nil, fmt.Errorf("scan room: %w", err)
	}
	r.Type = store.RoomType(roomType)
	return &r, nil
}

// ListRooms lists rooms the user is a member of.
func (s *SQLiteStore) ListRooms(ctx context.Context, userID int64) ([]*store.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.type, r.created_at
		FROM rooms r
		JOIN room_members m ON m.room_id = r.id
		WHERE m.user_id = ?
		ORDER BY r.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		var r store.Room
		var roomType string
		if err := rows.Scan(&r.ID, &r.Name, &roomType, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.Type = store.RoomType(roomType)
		rooms = append(rooms, &r)
	}
	return rooms, rows.Err()
}

// AddMember adds a user to a room. Idempotent.
func (s *SQLiteStore) AddMember(ctx context.Context, userID, roomID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`, roomID, userID)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a room.
func (s *SQLiteStore) RemoveMember(ctx context.Context, userID, roomID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// IsMember checks if user is a member of the room.
func (s *SQLiteStore) IsMember(ctx context.Context, userID, roomID int64) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("scan member: %w", err)
	}
	return true, nil
}

// ListMembers lists all member user ids of a room.
func (s *SQLiteStore) ListMembers(ctx context.Context, roomID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM room_members WHERE room_id = ? ORDER BY user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ==== MessageStore implementation ====

// AppendMessage persists a message with the next per-room seq, or returns the
// existing message if the (room_id, client_msg_id) pair was already written.
func (s *SQLiteStore) AppendMessage(ctx context.Context, roomID, authorID int64, clientMessageID, body string) (*store.Message, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (room_id, seq, author_id, body, client_msg_id, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE room_id = ?), ?, ?, ?, ?)`,
		roomID, roomID, authorID, body, clientMessageID, now)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race or a retry: the row already exists. The lookup
			// must go through the open tx, which holds the pool's only
			// connection.
			msg, lookupErr := s.getByClientID(ctx, tx, roomID, clientMessageID)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return msg, false, nil
		}
		return nil, false, fmt.Errorf("insert message: %w", err)
	}

	msg, err := s.getByClientID(ctx, tx, roomID, clientMessageID)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit message: %w", err)
	}
	return msg, true, nil
}

// ListMessagesSince returns up to limit messages with seq > afterSeq.
func (s *SQLiteStore) ListMessagesSince(ctx context.Context, roomID, afterSeq int64, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, seq, author_id, body, client_msg_id, created_at
		FROM messages
		WHERE room_id = ? AND seq > ?
		ORDER BY seq
		LIMIT ?`, roomID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.RoomID, &m.Seq, &m.AuthorID, &m.Body, &m.ClientMessageID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getByClientID(ctx context.Context, q querier, roomID int64, clientMessageID string) (*store.Message, error) {
	row := q.QueryRowContext(ctx, `
		SELECT room_id, seq, author_id, body, client_msg_id, created_at
		FROM messages
		WHERE room_id = ? AND client_msg_id = ?`, roomID, clientMessageID)

	var m store.Message
	if err := row.Scan(&m.RoomID, &m.Seq, &m.AuthorID, &m.Body, &m.ClientMessageID, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan message by client id: %w", err)
	}
	return &m, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
