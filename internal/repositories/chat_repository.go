package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messenger-service/internal/models"
)

var (
	ErrChatNotFound      = errors.New("chat not found")
	ErrChatAlreadyHidden = errors.New("chat already hidden")
	ErrNotChatMember     = errors.New("user is not a chat member")
	ErrNotGroupChat      = errors.New("chat is not a group chat")
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateOrGetDirectChat(ctx context.Context, requesterID, peerID int) (models.ChatDetail, error)
	ListVisibleChats(ctx context.Context, userID int) ([]models.ChatDetail, error)
	CreateGroupChat(ctx context.Context, creatorID int, name, image string, memberIDs []int) (models.ChatDetail, error)
	GetChatDetail(ctx context.Context, chatID int) (models.ChatDetail, error)
	IsMember(ctx context.Context, chatID, userID int) (bool, error)
	RenameGroup(ctx context.Context, chatID int, name string) error
	UpdateGroupImage(ctx context.Context, chatID int, image string) error
	AddMembers(ctx context.Context, chatID int, userIDs []int) error
	RemoveMember(ctx context.Context, chatID, userID int) (purged bool, err error)
	HideChatForUser(ctx context.Context, chatID, userID int) (purged bool, err error)
	ReopenChatForUser(ctx context.Context, chatID, userID int) error
	UpdateLatestMessage(ctx context.Context, chatID, messageID int) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

func directKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// CreateOrGetDirectChat returns the direct chat between the two users, creating it when
// absent. Lookup ignores hide state: finding an existing chat never depends on the ledger.
func (r *ChatRepo) CreateOrGetDirectChat(ctx context.Context, requesterID, peerID int) (models.ChatDetail, error) {
	if requesterID == peerID {
		return models.ChatDetail{}, errors.New("cannot create chat with self")
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, peerID); err != nil {
		return models.ChatDetail{}, err
	}
	if !exists {
		return models.ChatDetail{}, ErrUserNotFound
	}

	var chatID int
	err := r.db.GetContext(ctx, &chatID, `SELECT c.id FROM chats c
        JOIN chat_members a ON a.chat_id = c.id AND a.user_id = $1
        JOIN chat_members b ON b.chat_id = c.id AND b.user_id = $2
        WHERE c.is_group = FALSE
        LIMIT 1`, requesterID, peerID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.ChatDetail{}, err
	}

	if errors.Is(err, sql.ErrNoRows) {
		chatID, err = r.createDirectChat(ctx, requesterID, peerID)
		if err != nil {
			return models.ChatDetail{}, err
		}
	}

	return r.GetChatDetail(ctx, chatID)
}

func (r *ChatRepo) createDirectChat(ctx context.Context, requesterID, peerID int) (int, error) {
	key := directKey(requesterID, peerID)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chatID int
	err = tx.GetContext(ctx, &chatID, `INSERT INTO chats (is_group, direct_key) VALUES (FALSE, $1)
        ON CONFLICT (direct_key) DO NOTHING RETURNING id`, key)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost a concurrent-creation race; the other insert is the canonical chat.
		err = tx.GetContext(ctx, &chatID, `SELECT id FROM chats WHERE direct_key=$1`, key)
	}
	if err != nil {
		return 0, err
	}

	for _, id := range []int{requesterID, peerID} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, chatID, id); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return chatID, nil
}

// ListVisibleChats returns resolved chats where the user is a member and has not hidden
// the chat, most recently active first.
func (r *ChatRepo) ListVisibleChats(ctx context.Context, userID int) ([]models.ChatDetail, error) {
	var chatIDs []int
	err := r.db.SelectContext(ctx, &chatIDs, `SELECT c.id FROM chats c
        JOIN chat_members m ON m.chat_id = c.id AND m.user_id = $1
        LEFT JOIN chat_hidden h ON h.chat_id = c.id AND h.user_id = $1
        LEFT JOIN messages lm ON lm.id = c.latest_message_id
        WHERE h.user_id IS NULL
        ORDER BY COALESCE(lm.created_at, c.created_at) DESC`, userID)
	if err != nil {
		return nil, err
	}

	chats, err := loadChatDetails(ctx, r.db, chatIDs)
	if err != nil {
		return nil, err
	}

	// A direct chat displays under the peer's name.
	for i, c := range chats {
		if c.IsGroup {
			continue
		}
		for _, u := range c.Users {
			if u.ID != userID {
				chats[i].Name = u.Username
				break
			}
		}
	}
	return chats, nil
}

// CreateGroupChat creates a group chat; the creator is added to the member set and
// becomes the group admin.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, creatorID int, name, image string, memberIDs []int) (models.ChatDetail, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ChatDetail{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chatID int
	err = tx.GetContext(ctx, &chatID, `INSERT INTO chats (is_group, name, group_image, group_admin_id)
        VALUES (TRUE, $1, $2, $3) RETURNING id`, name, image, creatorID)
	if err != nil {
		return models.ChatDetail{}, err
	}

	memberSet := map[int]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chatID, id); err != nil {
			return models.ChatDetail{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.ChatDetail{}, err
	}
	return r.GetChatDetail(ctx, chatID)
}

// GetChatDetail resolves a single chat.
func (r *ChatRepo) GetChatDetail(ctx context.Context, chatID int) (models.ChatDetail, error) {
	chats, err := loadChatDetails(ctx, r.db, []int{chatID})
	if err != nil {
		return models.ChatDetail{}, err
	}
	if len(chats) == 0 {
		return models.ChatDetail{}, ErrChatNotFound
	}
	return chats[0], nil
}

// IsMember checks whether a user belongs to the chat.
func (r *ChatRepo) IsMember(ctx context.Context, chatID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// RenameGroup updates the group name.
func (r *ChatRepo) RenameGroup(ctx context.Context, chatID int, name string) error {
	return r.updateGroupAttr(ctx, chatID, `UPDATE chats SET name=$2 WHERE id=$1 AND is_group=TRUE`, name)
}

// UpdateGroupImage updates the group image reference.
func (r *ChatRepo) UpdateGroupImage(ctx context.Context, chatID int, image string) error {
	return r.updateGroupAttr(ctx, chatID, `UPDATE chats SET group_image=$2 WHERE id=$1 AND is_group=TRUE`, image)
}

func (r *ChatRepo) updateGroupAttr(ctx context.Context, chatID int, query, value string) error {
	res, err := r.db.ExecContext(ctx, query, chatID, value)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

// AddMembers adds users to a group chat. Adding an existing member is a no-op.
func (r *ChatRepo) AddMembers(ctx context.Context, chatID int, userIDs []int) error {
	if err := r.requireGroup(ctx, chatID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id)
        SELECT $1, u.id FROM users u WHERE u.id = ANY($2)
        ON CONFLICT DO NOTHING`, chatID, pq.Array(userIDs))
	return err
}

// RemoveMember removes a user from a group chat, dropping their ledger entries so the
// deletedBy-within-members invariant holds. If the remaining members had all hidden the
// chat, removal completes coverage and the chat is purged; removing the last remaining
// member purges it as well.
func (r *ChatRepo) RemoveMember(ctx context.Context, chatID, userID int) (bool, error) {
	if err := r.requireGroup(ctx, chatID); err != nil {
		return false, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx, `DELETE FROM chat_members WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count == 0 {
		err = ErrNotChatMember
		return false, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_hidden WHERE chat_id=$1 AND user_id=$2`, chatID, userID); err != nil {
		return false, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM message_hidden mh USING messages m
        WHERE mh.message_id = m.id AND m.chat_id=$1 AND mh.user_id=$2`, chatID, userID); err != nil {
		return false, err
	}

	// Reassign admin if the removed member held it.
	if _, err = tx.ExecContext(ctx, `UPDATE chats SET group_admin_id = (
            SELECT user_id FROM chat_members WHERE chat_id=$1 ORDER BY user_id LIMIT 1)
        WHERE id=$1 AND group_admin_id=$2`, chatID, userID); err != nil {
		return false, err
	}

	purged, err := purgeChatIfCovered(ctx, tx, chatID)
	if err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return purged, nil
}

func (r *ChatRepo) requireGroup(ctx context.Context, chatID int) error {
	var isGroup bool
	err := r.db.GetContext(ctx, &isGroup, `SELECT is_group FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrChatNotFound
	}
	if err != nil {
		return err
	}
	if !isGroup {
		return ErrNotGroupChat
	}
	return nil
}

// HideChatForUser adds the user to the chat's soft-delete ledger. Hiding twice is a
// conflict. Once the ledger covers every member the chat and its messages are purged.
func (r *ChatRepo) HideChatForUser(ctx context.Context, chatID, userID int) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var member bool
	err = tx.GetContext(ctx, &member, `SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	if err != nil {
		return false, err
	}
	if !member {
		var exists bool
		if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1)`, chatID); err != nil {
			return false, err
		}
		if !exists {
			err = ErrChatNotFound
		} else {
			err = ErrNotChatMember
		}
		return false, err
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `INSERT INTO chat_hidden (chat_id, user_id) VALUES ($1, $2)
        ON CONFLICT DO NOTHING`, chatID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count == 0 {
		err = ErrChatAlreadyHidden
		return false, err
	}

	purged, err := purgeChatIfCovered(ctx, tx, chatID)
	if err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return purged, nil
}

// ReopenChatForUser removes the user from the chat's ledger; a no-op when absent. Used
// when a new message makes a hidden chat relevant again for its recipients.
func (r *ChatRepo) ReopenChatForUser(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_hidden WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return err
}

// UpdateLatestMessage moves the denormalized latest-message pointer.
func (r *ChatRepo) UpdateLatestMessage(ctx context.Context, chatID, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET latest_message_id=$2 WHERE id=$1`, chatID, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}
