package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var (
	ErrMessageNotFound      = errors.New("message not found")
	ErrMessageAlreadyHidden = errors.New("message already hidden")
	ErrReplyChatMismatch    = errors.New("reply target belongs to another chat")
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, chatID int, content, messageType string, replyToID, size *int) (models.MessageDetail, error)
	ListVisibleMessages(ctx context.Context, chatID, userID int) ([]models.MessageDetail, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	HideMessageForUser(ctx context.Context, messageID, chatID, userID int) (purged bool, err error)
	MarkRead(ctx context.Context, chatID, userID int, at time.Time) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage persists a message and returns it resolved with sender summary,
// reply-target summary and the owning chat.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, chatID int, content, messageType string, replyToID, size *int) (models.MessageDetail, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1)`, chatID); err != nil {
		return models.MessageDetail{}, err
	}
	if !exists {
		return models.MessageDetail{}, ErrChatNotFound
	}

	if replyToID != nil {
		var replyChat int
		err := r.db.GetContext(ctx, &replyChat, `SELECT chat_id FROM messages WHERE id=$1`, *replyToID)
		if errors.Is(err, sql.ErrNoRows) {
			return models.MessageDetail{}, ErrMessageNotFound
		}
		if err != nil {
			return models.MessageDetail{}, err
		}
		if replyChat != chatID {
			return models.MessageDetail{}, ErrReplyChatMismatch
		}
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, sender_id, content, message_type, message_size, reply_to_id)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, chat_id, sender_id, content, message_type, message_size, reply_to_id, created_at`,
		chatID, senderID, content, messageType, size, replyToID).StructScan(&msg)
	if err != nil {
		return models.MessageDetail{}, err
	}

	details, err := loadMessageDetails(ctx, r.db, []models.Message{msg})
	if err != nil || len(details) == 0 {
		return models.MessageDetail{}, err
	}
	detail := details[0]

	chats, err := loadChatDetails(ctx, r.db, []int{chatID})
	if err != nil {
		return models.MessageDetail{}, err
	}
	if len(chats) > 0 {
		detail.Chat = &chats[0]
	}
	return detail, nil
}

// ListVisibleMessages returns resolved messages of a chat the user has not hidden,
// chronological ascending.
func (r *MessageRepo) ListVisibleMessages(ctx context.Context, chatID, userID int) ([]models.MessageDetail, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT id, chat_id, sender_id, content, message_type, message_size, reply_to_id, created_at
        FROM messages m
        WHERE m.chat_id = $1
        AND NOT EXISTS (SELECT 1 FROM message_hidden mh WHERE mh.message_id = m.id AND mh.user_id = $2)
        ORDER BY m.created_at ASC, m.id ASC`, chatID, userID)
	if err != nil {
		return nil, err
	}
	return loadMessageDetails(ctx, r.db, msgs)
}

// GetMessage retrieves a single message row.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, chat_id, sender_id, content, message_type, message_size, reply_to_id, created_at
        FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// HideMessageForUser adds the user to the message's soft-delete ledger. Hiding twice is
// a conflict. Once the ledger covers every chat member the message is purged.
func (r *MessageRepo) HideMessageForUser(ctx context.Context, messageID, chatID, userID int) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msgChat int
	err = tx.GetContext(ctx, &msgChat, `SELECT chat_id FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && msgChat != chatID) {
		err = ErrMessageNotFound
		return false, err
	}
	if err != nil {
		return false, err
	}

	var member bool
	err = tx.GetContext(ctx, &member, `SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	if err != nil {
		return false, err
	}
	if !member {
		err = ErrNotChatMember
		return false, err
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `INSERT INTO message_hidden (message_id, user_id) VALUES ($1, $2)
        ON CONFLICT DO NOTHING`, messageID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count == 0 {
		err = ErrMessageAlreadyHidden
		return false, err
	}

	// Each member's deletion is local until the last holder deletes it.
	purged, err := purgeMessageIfCovered(ctx, tx, chatID, messageID)
	if err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return purged, nil
}

// MarkRead appends a read receipt for every message of the chat the user has not read
// yet. Idempotent: existing receipts are left untouched.
func (r *MessageRepo) MarkRead(ctx context.Context, chatID, userID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id, read_at)
        SELECT m.id, $2, $3 FROM messages m WHERE m.chat_id = $1
        ON CONFLICT DO NOTHING`, chatID, userID, at)
	return err
}
