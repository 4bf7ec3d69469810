package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messenger-service/internal/models"
)

// Resolution helpers shared by the chat and message repositories. Every helper batches
// its lookups so resolving a chat list stays at a fixed number of queries.

type chatMemberRow struct {
	ChatID int `db:"chat_id"`
	models.UserSummary
}

type hiddenRow struct {
	ChatID    int `db:"chat_id"`
	MessageID int `db:"message_id"`
	UserID    int `db:"user_id"`
}

type readRow struct {
	MessageID int       `db:"message_id"`
	UserID    int       `db:"user_id"`
	ReadAt    time.Time `db:"read_at"`
}

func loadUserSummaries(ctx context.Context, q sqlx.QueryerContext, ids []int) (map[int]models.UserSummary, error) {
	out := make(map[int]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.UserSummary
	err := sqlx.SelectContext(ctx, q, &users, `SELECT id, username, avatar_url, online FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// loadChatDetails resolves chats with member summaries, admin summary, ledger and
// latest-message preview. Output preserves the order of chatIDs.
func loadChatDetails(ctx context.Context, q sqlx.QueryerContext, chatIDs []int) ([]models.ChatDetail, error) {
	if len(chatIDs) == 0 {
		return []models.ChatDetail{}, nil
	}

	var chats []models.Chat
	err := sqlx.SelectContext(ctx, q, &chats, `SELECT id, is_group, name, group_image, group_admin_id, direct_key, latest_message_id, created_at
        FROM chats WHERE id = ANY($1)`, pq.Array(chatIDs))
	if err != nil {
		return nil, err
	}

	var members []chatMemberRow
	err = sqlx.SelectContext(ctx, q, &members, `SELECT cm.chat_id, u.id, u.username, u.avatar_url, u.online
        FROM chat_members cm JOIN users u ON u.id = cm.user_id
        WHERE cm.chat_id = ANY($1) ORDER BY cm.chat_id, u.id`, pq.Array(chatIDs))
	if err != nil {
		return nil, err
	}
	membersByChat := map[int][]models.UserSummary{}
	for _, m := range members {
		membersByChat[m.ChatID] = append(membersByChat[m.ChatID], m.UserSummary)
	}

	var hidden []hiddenRow
	err = sqlx.SelectContext(ctx, q, &hidden, `SELECT chat_id, 0 AS message_id, user_id FROM chat_hidden WHERE chat_id = ANY($1) ORDER BY chat_id, user_id`, pq.Array(chatIDs))
	if err != nil {
		return nil, err
	}
	hiddenByChat := map[int][]int{}
	for _, h := range hidden {
		hiddenByChat[h.ChatID] = append(hiddenByChat[h.ChatID], h.UserID)
	}

	latestIDs := make([]int, 0, len(chats))
	for _, c := range chats {
		if c.LatestMessageID != nil {
			latestIDs = append(latestIDs, *c.LatestMessageID)
		}
	}
	latestByID := map[int]models.MessageDetail{}
	if len(latestIDs) > 0 {
		var msgs []models.Message
		err = sqlx.SelectContext(ctx, q, &msgs, `SELECT id, chat_id, sender_id, content, message_type, message_size, reply_to_id, created_at
            FROM messages WHERE id = ANY($1)`, pq.Array(latestIDs))
		if err != nil {
			return nil, err
		}
		details, err := loadMessageDetails(ctx, q, msgs)
		if err != nil {
			return nil, err
		}
		for _, d := range details {
			latestByID[d.ID] = d
		}
	}

	byID := make(map[int]models.ChatDetail, len(chats))
	for _, c := range chats {
		detail := models.ChatDetail{
			ID:         c.ID,
			IsGroup:    c.IsGroup,
			Name:       c.Name,
			GroupImage: c.GroupImage,
			Users:      membersByChat[c.ID],
			DeletedBy:  append([]int{}, hiddenByChat[c.ID]...),
			CreatedAt:  c.CreatedAt,
		}
		if c.GroupAdminID != nil {
			for _, u := range detail.Users {
				if u.ID == *c.GroupAdminID {
					admin := u
					detail.GroupAdmin = &admin
					break
				}
			}
		}
		if c.LatestMessageID != nil {
			if latest, ok := latestByID[*c.LatestMessageID]; ok {
				detail.LatestMessage = &latest
			}
		}
		byID[c.ID] = detail
	}

	out := make([]models.ChatDetail, 0, len(chatIDs))
	for _, id := range chatIDs {
		if detail, ok := byID[id]; ok {
			out = append(out, detail)
		}
	}
	return out, nil
}

// loadMessageDetails resolves messages with sender summaries, reply targets, ledger and
// read receipts. The owning chat is left nil; callers attach it when needed.
func loadMessageDetails(ctx context.Context, q sqlx.QueryerContext, msgs []models.Message) ([]models.MessageDetail, error) {
	if len(msgs) == 0 {
		return []models.MessageDetail{}, nil
	}

	msgIDs := make([]int, 0, len(msgs))
	userIDs := make([]int, 0, len(msgs))
	replyIDs := make([]int, 0)
	for _, m := range msgs {
		msgIDs = append(msgIDs, m.ID)
		userIDs = append(userIDs, m.SenderID)
		if m.ReplyToID != nil {
			replyIDs = append(replyIDs, *m.ReplyToID)
		}
	}

	replyByID := map[int]models.Message{}
	if len(replyIDs) > 0 {
		var replies []models.Message
		err := sqlx.SelectContext(ctx, q, &replies, `SELECT id, chat_id, sender_id, content, message_type, message_size, reply_to_id, created_at
            FROM messages WHERE id = ANY($1)`, pq.Array(replyIDs))
		if err != nil {
			return nil, err
		}
		for _, rm := range replies {
			replyByID[rm.ID] = rm
			userIDs = append(userIDs, rm.SenderID)
		}
	}

	users, err := loadUserSummaries(ctx, q, userIDs)
	if err != nil {
		return nil, err
	}

	var hidden []hiddenRow
	err = sqlx.SelectContext(ctx, q, &hidden, `SELECT 0 AS chat_id, message_id, user_id FROM message_hidden WHERE message_id = ANY($1) ORDER BY message_id, user_id`, pq.Array(msgIDs))
	if err != nil {
		return nil, err
	}
	hiddenByMsg := map[int][]int{}
	for _, h := range hidden {
		hiddenByMsg[h.MessageID] = append(hiddenByMsg[h.MessageID], h.UserID)
	}

	var reads []readRow
	err = sqlx.SelectContext(ctx, q, &reads, `SELECT message_id, user_id, read_at FROM message_reads WHERE message_id = ANY($1) ORDER BY message_id, read_at`, pq.Array(msgIDs))
	if err != nil {
		return nil, err
	}
	readsByMsg := map[int][]models.ReadReceipt{}
	for _, rr := range reads {
		readsByMsg[rr.MessageID] = append(readsByMsg[rr.MessageID], models.ReadReceipt{UserID: rr.UserID, ReadAt: rr.ReadAt})
	}

	out := make([]models.MessageDetail, 0, len(msgs))
	for _, m := range msgs {
		detail := models.MessageDetail{
			ID:          m.ID,
			ChatID:      m.ChatID,
			Sender:      users[m.SenderID],
			Content:     m.Content,
			MessageType: m.MessageType,
			MessageSize: m.MessageSize,
			DeletedBy:   append([]int{}, hiddenByMsg[m.ID]...),
			ReadBy:      append([]models.ReadReceipt{}, readsByMsg[m.ID]...),
			CreatedAt:   m.CreatedAt,
		}
		if m.ReplyToID != nil {
			if rm, ok := replyByID[*m.ReplyToID]; ok {
				detail.ReplyTo = &models.ReplySummary{
					ID:          rm.ID,
					Content:     rm.Content,
					MessageType: rm.MessageType,
					Sender:      users[rm.SenderID],
				}
			}
		}
		out = append(out, detail)
	}
	return out, nil
}
