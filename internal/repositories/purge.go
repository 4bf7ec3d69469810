package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// ledgerCovers reports whether a soft-delete ledger spans the whole member set. An empty
// member set counts as covered: nobody is left who could still see the entity.
func ledgerCovers(members, hidden int) bool {
	return members == hidden
}

type coverageCounts struct {
	Members int `db:"members"`
	Hidden  int `db:"hidden"`
}

// purgeChatIfCovered deletes the chat, cascading its messages and ledgers, once every
// member has hidden it or no members remain. Runs inside the caller's transaction so the
// ledger write and the purge decision are atomic.
func purgeChatIfCovered(ctx context.Context, tx *sqlx.Tx, chatID int) (bool, error) {
	var c coverageCounts
	err := tx.GetContext(ctx, &c, `SELECT
        (SELECT COUNT(*) FROM chat_members WHERE chat_id=$1) AS members,
        (SELECT COUNT(*) FROM chat_hidden WHERE chat_id=$1) AS hidden`, chatID)
	if err != nil {
		return false, err
	}
	if !ledgerCovers(c.Members, c.Hidden) {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID); err != nil {
		return false, err
	}
	return true, nil
}

// purgeMessageIfCovered deletes the message once every chat member has hidden it. Runs
// inside the caller's transaction.
func purgeMessageIfCovered(ctx context.Context, tx *sqlx.Tx, chatID, messageID int) (bool, error) {
	var c coverageCounts
	err := tx.GetContext(ctx, &c, `SELECT
        (SELECT COUNT(*) FROM chat_members WHERE chat_id=$1) AS members,
        (SELECT COUNT(*) FROM message_hidden WHERE message_id=$2) AS hidden`, chatID, messageID)
	if err != nil {
		return false, err
	}
	if !ledgerCovers(c.Members, c.Hidden) {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID); err != nil {
		return false, err
	}
	return true, nil
}
