package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/ShedrackAmodu/school-comm-service/internal/config"
	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

// CassandraMessageRepository implements MessageRepository on Cassandra.
// History lives in messages_by_room, partitioned by room and clustered
// by seq descending so recent-history reads are one partition slice;
// message_lookup maps message ids back to their partition.
//
//	CREATE TABLE messages_by_room (
//	    room_id text, seq bigint, message_id text, sender_id text,
//	    kind text, body text, reply_to text, edited boolean,
//	    edited_at timestamp, readers set<text>, created_at timestamp,
//	    PRIMARY KEY ((room_id), seq)
//	) WITH CLUSTERING ORDER BY (seq DESC);
//
//	CREATE TABLE message_lookup (
//	    message_id text PRIMARY KEY, room_id text, seq bigint
//	);
type CassandraMessageRepository struct {
	session *gocql.Session
}

// NewCassandraMessageRepository connects to the cluster and returns the
// repository.
func NewCassandraMessageRepository(cfg config.CassandraConfig) (*CassandraMessageRepository, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout
	if cfg.NumConns > 0 {
		cluster.NumConns = cfg.NumConns
	}
	cluster.Consistency = parseConsistency(cfg.Consistency)

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	return &CassandraMessageRepository{session: session}, nil
}

// Close closes the Cassandra session.
func (r *CassandraMessageRepository) Close() {
	if r.session != nil {
		r.session.Close()
	}
}

// Create writes the message and its lookup row in one logged batch.
func (r *CassandraMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	l := log.Ctx(ctx)

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO messages_by_room (
			room_id, seq, message_id, sender_id, kind, body, reply_to,
			edited, edited_at, readers, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.RoomID, int64(msg.Seq), msg.ID, msg.SenderID, string(msg.Kind),
		msg.Body, msg.ReplyTo, msg.Edited, msg.EditedAt, msg.ReadBy, msg.CreatedAt,
	)
	batch.Query(`
		INSERT INTO message_lookup (message_id, room_id, seq)
		VALUES (?, ?, ?)`,
		msg.ID, msg.RoomID, int64(msg.Seq),
	)

	if err := r.session.ExecuteBatch(batch); err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to write message to cassandra")
		return err
	}
	return nil
}

// GetByID retrieves a message with its read-by set.
func (r *CassandraMessageRepository) GetByID(ctx context.Context, id string) (*domain.ChatMessage, error) {
	roomID, seq, err := r.locate(ctx, id)
	if err != nil {
		return nil, err
	}

	l := log.Ctx(ctx)
	msg := domain.ChatMessage{}
	var storedSeq int64
	var kind string
	err = r.session.Query(`
		SELECT message_id, room_id, seq, sender_id, kind, body, reply_to,
		       edited, edited_at, readers, created_at
		FROM messages_by_room WHERE room_id = ? AND seq = ?`,
		roomID, seq,
	).WithContext(ctx).Scan(
		&msg.ID, &msg.RoomID, &storedSeq, &msg.SenderID, &kind, &msg.Body,
		&msg.ReplyTo, &msg.Edited, &msg.EditedAt, &msg.ReadBy, &msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to read message from cassandra")
		return nil, err
	}
	msg.Seq = uint64(storedSeq)
	msg.Kind = domain.MessageKind(kind)
	return &msg, nil
}

// UpdateBody persists an edit in place.
func (r *CassandraMessageRepository) UpdateBody(ctx context.Context, msg *domain.ChatMessage) error {
	roomID, seq, err := r.locate(ctx, msg.ID)
	if err != nil {
		return err
	}

	l := log.Ctx(ctx)
	err = r.session.Query(`
		UPDATE messages_by_room SET body = ?, edited = ?, edited_at = ?
		WHERE room_id = ? AND seq = ?`,
		msg.Body, msg.Edited, msg.EditedAt, roomID, seq,
	).WithContext(ctx).Exec()
	if err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to update message in cassandra")
	}
	return err
}

// Delete removes the message and its lookup row.
func (r *CassandraMessageRepository) Delete(ctx context.Context, id string) error {
	roomID, seq, err := r.locate(ctx, id)
	if err != nil {
		return err
	}

	l := log.Ctx(ctx)
	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM messages_by_room WHERE room_id = ? AND seq = ?`, roomID, seq)
	batch.Query(`DELETE FROM message_lookup WHERE message_id = ?`, id)

	if err := r.session.ExecuteBatch(batch); err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to delete message from cassandra")
		return err
	}
	return nil
}

// ListRecent returns the newest limit messages in ascending order.
func (r *CassandraMessageRepository) ListRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	query := `
		SELECT message_id, room_id, seq, sender_id, kind, body, reply_to,
		       edited, edited_at, readers, created_at
		FROM messages_by_room WHERE room_id = ?`
	args := []interface{}{roomID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	iter := r.session.Query(query, args...).WithContext(ctx).Iter()

	var newestFirst []domain.ChatMessage
	var msg domain.ChatMessage
	var seq int64
	var kind string
	for iter.Scan(
		&msg.ID, &msg.RoomID, &seq, &msg.SenderID, &kind, &msg.Body,
		&msg.ReplyTo, &msg.Edited, &msg.EditedAt, &msg.ReadBy, &msg.CreatedAt,
	) {
		msg.Seq = uint64(seq)
		msg.Kind = domain.MessageKind(kind)
		newestFirst = append(newestFirst, msg)
		msg = domain.ChatMessage{}
	}
	if err := iter.Close(); err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to list recent messages from cassandra")
		return nil, err
	}

	out := make([]domain.ChatMessage, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		out = append(out, newestFirst[i])
	}
	return out, nil
}

// MarkRead adds the user to each message's readers set. Set addition is
// naturally idempotent; unknown ids are skipped.
func (r *CassandraMessageRepository) MarkRead(ctx context.Context, messageIDs []string, userID string, at time.Time) error {
	l := log.Ctx(ctx)

	for _, id := range messageIDs {
		roomID, seq, err := r.locate(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		err = r.session.Query(`
			UPDATE messages_by_room SET readers = readers + ?
			WHERE room_id = ? AND seq = ?`,
			[]string{userID}, roomID, seq,
		).WithContext(ctx).Exec()
		if err != nil {
			l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to mark message read in cassandra")
			return err
		}
	}
	return nil
}

// LatestSeq reads the newest clustering key of the room partition.
func (r *CassandraMessageRepository) LatestSeq(ctx context.Context, roomID string) (uint64, error) {
	var seq int64
	err := r.session.Query(
		`SELECT seq FROM messages_by_room WHERE room_id = ? LIMIT 1`, roomID,
	).WithContext(ctx).Scan(&seq)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return 0, nil
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to read latest seq from cassandra")
		return 0, err
	}
	return uint64(seq), nil
}

// locate resolves a message id to its partition coordinates.
func (r *CassandraMessageRepository) locate(ctx context.Context, id string) (string, int64, error) {
	var roomID string
	var seq int64
	err := r.session.Query(
		`SELECT room_id, seq FROM message_lookup WHERE message_id = ?`, id,
	).WithContext(ctx).Scan(&roomID, &seq)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return "", 0, ErrNotFound
		}
		return "", 0, err
	}
	return roomID, seq, nil
}

// parseConsistency converts a string consistency level to gocql.Consistency.
func parseConsistency(s string) gocql.Consistency {
	switch s {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	default:
		return gocql.LocalQuorum
	}
}

var _ MessageRepository = (*CassandraMessageRepository)(nil)
