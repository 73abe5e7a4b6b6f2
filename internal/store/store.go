package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS message_mappings (
	bridge_id       TEXT NOT NULL,
	instance_id     TEXT NOT NULL,
	channel_id      TEXT NOT NULL,
	platform_msg_id TEXT NOT NULL,
	created_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (instance_id, platform_msg_id)
);
CREATE INDEX IF NOT EXISTS idx_mappings_bridge_id ON message_mappings (bridge_id);
`

// Store maps platform-local message IDs to bridge-wide IDs, so a reply on
// one platform can be threaded onto the copies the bridge produced
// elsewhere. Backed by a single SQLite file under the data directory.
type Store struct {
	db *sql.DB
}

// Open creates or opens the mapping database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// SQLite allows one writer; serialize through a single connection
	// instead of fighting over the file lock.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NewBridgeID mints a fresh bridge-wide message ID.
func NewBridgeID() string {
	return uuid.NewString()
}

// SaveMapping records that platformMsgID within channelID of instanceID is
// one copy of bridgeID. Saving the same (instance, message) pair again
// overwrites the old row; drivers may retry after a reconnect.
func (s *Store) SaveMapping(ctx context.Context, bridgeID, instanceID, channelID, platformMsgID string) error {
	if bridgeID == "" || instanceID == "" || platformMsgID == "" {
		return errors.New("store: empty mapping key")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_mappings (bridge_id, instance_id, channel_id, platform_msg_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (instance_id, platform_msg_id)
		DO UPDATE SET bridge_id = excluded.bridge_id, channel_id = excluded.channel_id`,
		bridgeID, instanceID, channelID, platformMsgID)
	if err != nil {
		return fmt.Errorf("save mapping: %w", err)
	}
	return nil
}

// BridgeID resolves a platform-local message ID to its bridge-wide ID.
// Returns "" without error when the message was never seen.
func (s *Store) BridgeID(ctx context.Context, instanceID, platformMsgID string) (string, error) {
	var bridgeID string
	err := s.db.QueryRowContext(ctx, `
		SELECT bridge_id FROM message_mappings
		WHERE instance_id = ? AND platform_msg_id = ?`,
		instanceID, platformMsgID).Scan(&bridgeID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup bridge id: %w", err)
	}
	return bridgeID, nil
}

// PlatformMsgID finds the copy of bridgeID that lives in instanceID.
// Returns "" without error when no copy was recorded there.
func (s *Store) PlatformMsgID(ctx context.Context, bridgeID, instanceID string) (string, error) {
	var msgID string
	err := s.db.QueryRowContext(ctx, `
		SELECT platform_msg_id FROM message_mappings
		WHERE bridge_id = ? AND instance_id = ?`,
		bridgeID, instanceID).Scan(&msgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup platform msg id: %w", err)
	}
	return msgID, nil
}
