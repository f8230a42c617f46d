package database

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ammar1510/docconnect/internal/models"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

type PostgresDB struct {
	*sql.DB
}

var _ DBInterface = (*PostgresDB)(nil)

func NewPostgresDB(ctx context.Context, connStr string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresDB{db}, nil
}

// Migrate applies the idempotent schema
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

func (db *PostgresDB) Close() error {
	return db.DB.Close()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (db *PostgresDB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func idStrings(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseIDs(raw pq.StringArray) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Users

const userColumns = `id, username, email, password_hash,
	COALESCE(display_name, ''), COALESCE(avatar_url, ''),
	role, is_active, status, created_at, last_seen`

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.DisplayName, &user.AvatarURL,
		&user.Role, &user.IsActive, &user.Status, &user.CreatedAt, &user.LastSeen,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	u := *user
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.LastSeen = now, now
	if u.Status == "" {
		u.Status = models.PresenceOffline
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, display_name, avatar_url,
		                   role, is_active, status, created_at, last_seen)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.DisplayName, u.AvatarURL,
		u.Role, u.IsActive, u.Status, u.CreatedAt, u.LastSeen,
	)
	if isUniqueViolation(err) {
		return nil, ErrUserAlreadyExists
	}
	if err != nil {
		return nil, errors.Wrap(err, "insert user")
	}
	return &u, nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (db *PostgresDB) GetAllUsers(ctx context.Context, excludeUserID uuid.UUID) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id != $1 AND is_active
		ORDER BY username`, excludeUserID)
	if err != nil {
		return nil, errors.Wrap(err, "query users")
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan user row")
		}
		users = append(users, user)
	}
	return users, errors.Wrap(rows.Err(), "iterate user rows")
}

func (db *PostgresDB) UpdatePresence(ctx context.Context, userID uuid.UUID, status models.PresenceStatus, lastSeen time.Time) error {
	result, err := db.ExecContext(ctx,
		"UPDATE users SET status = $1, last_seen = $2 WHERE id = $3",
		status, lastSeen, userID)
	if err != nil {
		return errors.Wrap(err, "update presence")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Conversations

const conversationColumns = `c.id, c.user_a, c.user_b,
	c.last_message_content, c.last_message_sender, c.last_message_at,
	c.related_type, c.related_id, c.created_at, c.updated_at`

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var (
		conv        models.Conversation
		userA       uuid.UUID
		userB       uuid.UUID
		lastContent sql.NullString
		lastSender  uuid.NullUUID
		lastAt      sql.NullTime
		relType     sql.NullString
		relID       uuid.NullUUID
	)
	err := row.Scan(&conv.ID, &userA, &userB, &lastContent, &lastSender, &lastAt,
		&relType, &relID, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	conv.Participants[0].UserID = userA
	conv.Participants[1].UserID = userB
	if lastAt.Valid {
		conv.LastMessage = &models.LastMessage{
			Content:   lastContent.String,
			SenderID:  lastSender.UUID,
			Timestamp: lastAt.Time,
		}
	}
	if relType.Valid && relID.Valid {
		conv.RelatedTo = &models.RelatedTo{Kind: models.RelatedKind(relType.String), ID: relID.UUID}
	}
	return &conv, nil
}

// attachParticipants fills the per-user view state of every conversation in convs
func attachParticipants(ctx context.Context, q querier, convs ...*models.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(convs))
	byID := make(map[uuid.UUID]*models.Conversation, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
		byID[c.ID] = c
	}

	rows, err := q.QueryContext(ctx, `
		SELECT conversation_id, user_id, unread_count, muted, archived
		FROM conversation_participants
		WHERE conversation_id = ANY($1::uuid[])`, idStrings(ids))
	if err != nil {
		return errors.Wrap(err, "query participants")
	}
	defer rows.Close()

	for rows.Next() {
		var convID uuid.UUID
		var p models.Participant
		if err := rows.Scan(&convID, &p.UserID, &p.UnreadCount, &p.Muted, &p.Archived); err != nil {
			return errors.Wrap(err, "scan participant")
		}
		if slot := byID[convID].Participant(p.UserID); slot != nil {
			*slot = p
		}
	}
	return errors.Wrap(rows.Err(), "iterate participants")
}

func (db *PostgresDB) findByPair(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	conv, err := scanConversation(db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE LEAST(c.user_a, c.user_b) = LEAST($1::uuid, $2::uuid)
		  AND GREATEST(c.user_a, c.user_b) = GREATEST($1::uuid, $2::uuid)`,
		userA, userB))
	if err != nil {
		return nil, err
	}
	return conv, attachParticipants(ctx, db, conv)
}

func (db *PostgresDB) FindOrCreateConversation(ctx context.Context, userA, userB uuid.UUID, related *models.RelatedTo) (*models.Conversation, bool, error) {
	conv, err := db.findByPair(ctx, userA, userB)
	if err == nil {
		return conv, false, nil
	}
	if err != ErrConversationNotFound {
		return nil, false, errors.Wrap(err, "find conversation")
	}

	id := uuid.New()
	now := time.Now().UTC()
	var relType sql.NullString
	var relID uuid.NullUUID
	if related != nil {
		relType = sql.NullString{String: string(related.Kind), Valid: true}
		relID = uuid.NullUUID{UUID: related.ID, Valid: true}
	}

	inserted := false
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, user_a, user_b, related_type, related_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT DO NOTHING`,
			id, userA, userB, relType, relID, now)
		if err != nil {
			return errors.Wrap(err, "insert conversation")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// The other participant won the race
			return nil
		}
		inserted = true
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			VALUES ($1, $2), ($1, $3)`, id, userA, userB)
		return errors.Wrap(err, "insert participants")
	})
	if err != nil {
		return nil, false, err
	}

	conv, err = db.findByPair(ctx, userA, userB)
	if err != nil {
		return nil, false, errors.Wrap(err, "reload conversation")
	}
	return conv, inserted, nil
}

func (db *PostgresDB) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, err := scanConversation(db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id))
	if err != nil {
		return nil, err
	}
	return conv, attachParticipants(ctx, db, conv)
}

func (db *PostgresDB) ListConversations(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Conversation, int, error) {
	var total int
	err := db.QueryRowContext(ctx, `
		SELECT count(*) FROM conversation_participants
		WHERE user_id = $1 AND NOT archived`, userID).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count conversations")
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id = $1
		WHERE NOT p.archived
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "query conversations")
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan conversation")
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "iterate conversations")
	}
	return convs, total, attachParticipants(ctx, db, convs...)
}

func (db *PostgresDB) IncrementUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	res, err := db.ExecContext(ctx, `
		UPDATE conversation_participants SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID)
	if err != nil {
		return errors.Wrap(err, "increment unread")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// reconcileUnread recomputes the pending count while holding the conversation
// row lock that CreateMessage also takes, so no concurrent increment is lost.
func reconcileUnread(ctx context.Context, tx *sql.Tx, conversationID, userID uuid.UUID) (int, error) {
	var locked uuid.UUID
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&locked)
	if err == sql.ErrNoRows {
		return 0, ErrConversationNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "lock conversation")
	}

	var unread int
	err = tx.QueryRowContext(ctx, `
		UPDATE conversation_participants p
		SET unread_count = (
			SELECT count(*) FROM messages m
			WHERE m.conversation_id = p.conversation_id
			  AND m.recipient_id = p.user_id
			  AND m.status IN ('sent', 'delivered')
		)
		WHERE p.conversation_id = $1 AND p.user_id = $2
		RETURNING p.unread_count`, conversationID, userID).Scan(&unread)
	if err == sql.ErrNoRows {
		return 0, ErrConversationNotFound
	}
	return unread, errors.Wrap(err, "reconcile unread")
}

func (db *PostgresDB) ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	var unread int
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		unread, err = reconcileUnread(ctx, tx, conversationID, userID)
		return err
	})
	return unread, err
}

func (db *PostgresDB) toggleFlag(ctx context.Context, column string, conversationID, userID uuid.UUID) (bool, error) {
	var value bool
	err := db.QueryRowContext(ctx, `
		UPDATE conversation_participants SET `+column+` = NOT `+column+`
		WHERE conversation_id = $1 AND user_id = $2
		RETURNING `+column, conversationID, userID).Scan(&value)
	if err == sql.ErrNoRows {
		return false, ErrConversationNotFound
	}
	return value, errors.Wrapf(err, "toggle %s", column)
}

func (db *PostgresDB) ToggleArchive(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	return db.toggleFlag(ctx, "archived", conversationID, userID)
}

func (db *PostgresDB) ToggleMute(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	return db.toggleFlag(ctx, "muted", conversationID, userID)
}

// Messages

const messageColumns = `id, conversation_id, seq, sender_id, recipient_id, message_type,
	COALESCE(content, ''), file_url, file_name, file_size, mime_type,
	status, delivered_at, read_at, deleted_by::text[], edited_at, reply_to, created_at`

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg         models.Message
		fileURL     sql.NullString
		fileName    sql.NullString
		fileSize    sql.NullInt64
		mimeType    sql.NullString
		deliveredAt sql.NullTime
		readAt      sql.NullTime
		editedAt    sql.NullTime
		deletedBy   pq.StringArray
		replyTo     uuid.NullUUID
	)
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.Seq, &msg.SenderID, &msg.RecipientID, &msg.Type,
		&msg.Content, &fileURL, &fileName, &fileSize, &mimeType,
		&msg.Status, &deliveredAt, &readAt, &deletedBy, &editedAt, &replyTo, &msg.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	if fileURL.Valid {
		msg.File = &models.FileAttachment{
			URL:      fileURL.String,
			Name:     fileName.String,
			Size:     fileSize.Int64,
			MimeType: mimeType.String,
		}
	}
	msg.DeliveredAt = nullTime(deliveredAt)
	msg.ReadAt = nullTime(readAt)
	msg.EditedAt = nullTime(editedAt)
	if replyTo.Valid {
		r := replyTo.UUID
		msg.ReplyTo = &r
	}
	if msg.DeletedBy, err = parseIDs(deletedBy); err != nil {
		return nil, err
	}
	return &msg, nil
}

func collectMessages(rows *sql.Rows) ([]*models.Message, error) {
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		messages = append(messages, msg)
	}
	return messages, errors.Wrap(rows.Err(), "iterate messages")
}

func (db *PostgresDB) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	m := msg.Clone()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Status = models.StatusSent

	var file models.FileAttachment
	if m.File != nil {
		file = *m.File
	}

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		// The row lock orders concurrent sends within one conversation
		err := tx.QueryRowContext(ctx, `
			UPDATE conversations
			SET next_seq = next_seq + 1,
			    last_message_content = $2,
			    last_message_sender = $3,
			    last_message_at = $4,
			    updated_at = $4
			WHERE id = $1
			RETURNING next_seq - 1`,
			m.ConversationID, m.Preview(), m.SenderID, m.CreatedAt).Scan(&m.Seq)
		if err == sql.ErrNoRows {
			return ErrConversationNotFound
		}
		if err != nil {
			return errors.Wrap(err, "advance sequence")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, seq, sender_id, recipient_id, message_type,
			                      content, file_url, file_name, file_size, mime_type,
			                      status, reply_to, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
			        NULLIF($10::bigint, 0), NULLIF($11, ''), $12, $13, $14)`,
			m.ID, m.ConversationID, m.Seq, m.SenderID, m.RecipientID, m.Type,
			m.Content, file.URL, file.Name, file.Size, file.MimeType,
			m.Status, m.ReplyTo, m.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "insert message")
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE conversation_participants SET unread_count = unread_count + 1
			WHERE conversation_id = $1 AND user_id = $2`, m.ConversationID, m.RecipientID)
		if err != nil {
			return errors.Wrap(err, "increment unread")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConversationNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (db *PostgresDB) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return scanMessage(db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

func (db *PostgresDB) ListMessages(ctx context.Context, conversationID, viewerID uuid.UUID, offset, limit int) ([]*models.Message, int, error) {
	var total int
	err := db.QueryRowContext(ctx, `
		SELECT count(*) FROM messages
		WHERE conversation_id = $1 AND NOT ($2::uuid = ANY(deleted_by))`,
		conversationID, viewerID).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count messages")
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND NOT ($2::uuid = ANY(deleted_by))
		ORDER BY seq DESC
		LIMIT $3 OFFSET $4`, conversationID, viewerID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "query messages")
	}
	messages, err := collectMessages(rows)
	return messages, total, err
}

func (db *PostgresDB) MarkDelivered(ctx context.Context, ids []uuid.UUID, recipientID uuid.UUID, at time.Time) ([]*models.Message, error) {
	rows, err := db.QueryContext(ctx, `
		UPDATE messages SET status = 'delivered', delivered_at = $3
		WHERE id = ANY($1::uuid[]) AND recipient_id = $2 AND status = 'sent'
		RETURNING `+messageColumns, idStrings(ids), recipientID, at)
	if err != nil {
		return nil, errors.Wrap(err, "mark delivered")
	}
	return collectMessages(rows)
}

func (db *PostgresDB) MarkPendingDelivered(ctx context.Context, recipientID uuid.UUID, at time.Time) ([]*models.Message, error) {
	rows, err := db.QueryContext(ctx, `
		UPDATE messages SET status = 'delivered', delivered_at = $2
		WHERE recipient_id = $1 AND status = 'sent'
		RETURNING `+messageColumns, recipientID, at)
	if err != nil {
		return nil, errors.Wrap(err, "mark pending delivered")
	}
	msgs, err := collectMessages(rows)
	sortBySeq(msgs)
	return msgs, err
}

// markReadTx moves the matched messages to read and reconciles the unread
// counter of every conversation they belong to.
func (db *PostgresDB) markReadTx(ctx context.Context, recipientID uuid.UUID, update string, args ...interface{}) ([]*models.Message, error) {
	var changed []*models.Message
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, update, args...)
		if err != nil {
			return errors.Wrap(err, "mark read")
		}
		if changed, err = collectMessages(rows); err != nil {
			return err
		}

		convs := make(map[uuid.UUID]struct{})
		for _, m := range changed {
			convs[m.ConversationID] = struct{}{}
		}
		ordered := make([]uuid.UUID, 0, len(convs))
		for id := range convs {
			ordered = append(ordered, id)
		}
		// Lock conversations in a stable order to avoid deadlocks between bulk reads
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })
		for _, convID := range ordered {
			if _, err := reconcileUnread(ctx, tx, convID, recipientID); err != nil {
				return err
			}
		}
		return nil
	})
	return changed, err
}

func (db *PostgresDB) MarkRead(ctx context.Context, ids []uuid.UUID, recipientID uuid.UUID, at time.Time) ([]*models.Message, error) {
	return db.markReadTx(ctx, recipientID, `
		UPDATE messages
		SET status = 'read', read_at = $3, delivered_at = COALESCE(delivered_at, $3)
		WHERE id = ANY($1::uuid[]) AND recipient_id = $2 AND status IN ('sent', 'delivered')
		RETURNING `+messageColumns, idStrings(ids), recipientID, at)
}

func (db *PostgresDB) MarkConversationRead(ctx context.Context, conversationID, recipientID uuid.UUID, at time.Time) ([]*models.Message, error) {
	changed, err := db.markReadTx(ctx, recipientID, `
		UPDATE messages
		SET status = 'read', read_at = $3, delivered_at = COALESCE(delivered_at, $3)
		WHERE conversation_id = $1 AND recipient_id = $2 AND status IN ('sent', 'delivered')
		RETURNING `+messageColumns, conversationID, recipientID, at)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		// Nothing moved, but the counter may still be stale
		if _, err := db.ResetUnread(ctx, conversationID, recipientID); err != nil {
			return nil, err
		}
	}
	return changed, nil
}

func (db *PostgresDB) UpdateMessageContent(ctx context.Context, id uuid.UUID, content string, at time.Time) (*models.Message, error) {
	var msg *models.Message
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		msg, err = scanMessage(tx.QueryRowContext(ctx, `
			UPDATE messages SET content = $2, edited_at = $3
			WHERE id = $1 AND message_type = 'text'
			RETURNING `+messageColumns, id, content, at))
		if err == ErrMessageNotFound {
			if _, getErr := db.GetMessage(ctx, id); getErr == nil {
				return ErrNotEditable
			}
			return ErrMessageNotFound
		}
		if err != nil {
			return errors.Wrap(err, "update message")
		}

		// Refresh the preview only when this is still the newest message
		_, err = tx.ExecContext(ctx, `
			UPDATE conversations c SET last_message_content = $2
			WHERE c.id = $1 AND c.next_seq - 1 = $3`,
			msg.ConversationID, content, msg.Seq)
		return errors.Wrap(err, "refresh preview")
	})
	return msg, err
}

func (db *PostgresDB) SoftDeleteMessage(ctx context.Context, id, userID uuid.UUID) (*models.Message, error) {
	msg, err := scanMessage(db.QueryRowContext(ctx, `
		UPDATE messages
		SET deleted_by = CASE WHEN $2::uuid = ANY(deleted_by) THEN deleted_by
		                      ELSE array_append(deleted_by, $2::uuid) END
		WHERE id = $1
		RETURNING `+messageColumns, id, userID))
	if err != nil && err != ErrMessageNotFound {
		return nil, errors.Wrap(err, "soft delete message")
	}
	return msg, err
}

// Notifications

func (db *PostgresDB) CreateNotification(ctx context.Context, n *models.Notification) error {
	var data sql.NullString
	if len(n.Data) > 0 {
		data = sql.NullString{String: string(n.Data), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, data, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, data, n.IsRead, n.CreatedAt)
	return errors.Wrap(err, "insert notification")
}

func (db *PostgresDB) ListNotifications(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Notification, int, error) {
	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count notifications")
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, type, title, body, data, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "query notifications")
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		var data []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &data, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, 0, errors.Wrap(err, "scan notification")
		}
		if len(data) > 0 {
			n.Data = json.RawMessage(data)
		}
		out = append(out, &n)
	}
	return out, total, errors.Wrap(rows.Err(), "iterate notifications")
}

func (db *PostgresDB) MarkNotificationsRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND NOT is_read`, userID, idStrings(ids))
	if err != nil {
		return 0, errors.Wrap(err, "mark notifications read")
	}
	return res.RowsAffected()
}
