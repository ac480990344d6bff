package database

import (
	"time"
)

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, display_name, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, display_name, created_at, updated_at",
		params.Username,
		params.DisplayName,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Username,
		&a.DisplayName,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgChatRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, display_name, password_hash, last_seen, created_at, updated_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.DisplayName,
		&a.PasswordHash,
		&a.LastSeen,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgChatRepository) GetAccountByUsername(username string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, display_name, password_hash, last_seen, created_at, updated_at "+
			"FROM accounts WHERE username = $1 LIMIT 1",
		username,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.DisplayName,
		&a.PasswordHash,
		&a.LastSeen,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgChatRepository) UpdateLastSeen(accountId int, when time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET last_seen = $2 WHERE id = $1",
		accountId,
		when,
	)

	return err
}

func (db *PgChatRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Channel{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO channels (external_id, name, is_private, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, external_id, name, is_private, owner_id, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.IsPrivate,
		params.OwnerId,
		time.Now().UTC(),
	)

	var ch Channel
	err = res.Scan(
		&ch.Id,
		&ch.ExternalId,
		&ch.Name,
		&ch.IsPrivate,
		&ch.OwnerId,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)
	if err != nil {
		return Channel{}, err
	}

	// the owner is a member from the start, with nothing unread
	_, err = tx.Exec(
		"INSERT INTO channel_members (channel_id, account_id, joined_at, last_read_at) VALUES ($1, $2, $3, $3)",
		ch.Id,
		params.OwnerId,
		time.Now().UTC(),
	)
	if err != nil {
		return Channel{}, err
	}

	if err = tx.Commit(); err != nil {
		return Channel{}, err
	}

	return ch, nil
}

func (db *PgChatRepository) GetChannelById(channelId int) (Channel, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, is_private, owner_id, created_at, updated_at "+
			"FROM channels WHERE id = $1 LIMIT 1",
		channelId,
	)

	var ch Channel
	err := row.Scan(
		&ch.Id,
		&ch.ExternalId,
		&ch.Name,
		&ch.IsPrivate,
		&ch.OwnerId,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)

	return ch, err
}

func (db *PgChatRepository) GetChannelByExternalId(externalId string) (Channel, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, is_private, owner_id, created_at, updated_at "+
			"FROM channels WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var ch Channel
	err := row.Scan(
		&ch.Id,
		&ch.ExternalId,
		&ch.Name,
		&ch.IsPrivate,
		&ch.OwnerId,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)

	return ch, err
}

func (db *PgChatRepository) ListChannels() ([]Channel, error) {
	rows, err := db.conn.Query(
		"SELECT id, external_id, name, is_private, owner_id, created_at, updated_at FROM channels ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		if err = rows.Scan(&ch.Id, &ch.ExternalId, &ch.Name, &ch.IsPrivate, &ch.OwnerId, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			break
		}

		channels = append(channels, ch)
	}
	return channels, err
}

func (db *PgChatRepository) CreateMember(channelId, accountId int, lastReadAt time.Time) (ChannelMember, error) {
	res := db.conn.QueryRow(
		"INSERT INTO channel_members (channel_id, account_id, joined_at, last_read_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, channel_id, account_id, joined_at, last_read_at",
		channelId,
		accountId,
		time.Now().UTC(),
		lastReadAt,
	)

	var m ChannelMember
	err := res.Scan(
		&m.Id,
		&m.ChannelId,
		&m.AccountId,
		&m.JoinedAt,
		&m.LastReadAt,
	)

	return m, err
}

func (db *PgChatRepository) GetMember(channelId, accountId int) (ChannelMember, error) {
	row := db.conn.QueryRow(
		"SELECT id, channel_id, account_id, joined_at, last_read_at FROM channel_members "+
			"WHERE channel_id = $1 AND account_id = $2 LIMIT 1",
		channelId,
		accountId,
	)

	var m ChannelMember
	err := row.Scan(
		&m.Id,
		&m.ChannelId,
		&m.AccountId,
		&m.JoinedAt,
		&m.LastReadAt,
	)

	return m, err
}

func (db *PgChatRepository) MemberExists(channelId, accountId int) bool {
	res := db.conn.QueryRow(
		"SELECT id FROM channel_members WHERE channel_id = $1 AND account_id = $2 LIMIT 1",
		channelId,
		accountId,
	)

	var id int
	return res.Scan(&id) == nil
}

func (db *PgChatRepository) ListMembers(channelId int) ([]ChannelMember, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.channel_id, m.account_id, a.username, m.joined_at, m.last_read_at "+
			"FROM channel_members AS m JOIN accounts AS a ON m.account_id = a.id "+
			"WHERE m.channel_id = $1 ORDER BY m.joined_at",
		channelId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members = make([]ChannelMember, 0)
	for rows.Next() {
		var m ChannelMember
		if err = rows.Scan(&m.Id, &m.ChannelId, &m.AccountId, &m.Username, &m.JoinedAt, &m.LastReadAt); err != nil {
			break
		}

		members = append(members, m)
	}
	return members, err
}

func (db *PgChatRepository) CountMembers(channelId int) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM channel_members WHERE channel_id = $1",
		channelId,
	)

	var count int
	err := row.Scan(&count)
	return count, err
}

func (db *PgChatRepository) DeleteMember(channelId, accountId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM channel_members WHERE channel_id = $1 AND account_id = $2",
		channelId,
		accountId,
	)

	return err
}

func (db *PgChatRepository) UpsertLastReadAt(channelId, accountId int, lastReadAt time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO channel_members (channel_id, account_id, joined_at, last_read_at) "+
			"VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (channel_id, account_id) DO UPDATE SET last_read_at = $4",
		channelId,
		accountId,
		time.Now().UTC(),
		lastReadAt,
	)

	return err
}

func (db *PgChatRepository) CreateJoinRequest(channelId, accountId int) (JoinRequest, error) {
	res := db.conn.QueryRow(
		"INSERT INTO join_requests (channel_id, account_id, status, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, channel_id, account_id, status, created_at",
		channelId,
		accountId,
		JoinRequestPending,
		time.Now().UTC(),
	)

	var jr JoinRequest
	err := res.Scan(
		&jr.Id,
		&jr.ChannelId,
		&jr.AccountId,
		&jr.Status,
		&jr.CreatedAt,
	)

	return jr, err
}

func (db *PgChatRepository) GetJoinRequest(channelId, accountId int) (JoinRequest, error) {
	row := db.conn.QueryRow(
		"SELECT id, channel_id, account_id, status, created_at FROM join_requests "+
			"WHERE channel_id = $1 AND account_id = $2 LIMIT 1",
		channelId,
		accountId,
	)

	var jr JoinRequest
	err := row.Scan(
		&jr.Id,
		&jr.ChannelId,
		&jr.AccountId,
		&jr.Status,
		&jr.CreatedAt,
	)

	return jr, err
}

func (db *PgChatRepository) GetJoinRequestById(requestId int) (JoinRequest, error) {
	row := db.conn.QueryRow(
		"SELECT id, channel_id, account_id, status, created_at FROM join_requests "+
			"WHERE id = $1 LIMIT 1",
		requestId,
	)

	var jr JoinRequest
	err := row.Scan(
		&jr.Id,
		&jr.ChannelId,
		&jr.AccountId,
		&jr.Status,
		&jr.CreatedAt,
	)

	return jr, err
}

func (db *PgChatRepository) ListPendingJoinRequests(channelId int) ([]JoinRequest, error) {
	rows, err := db.conn.Query(
		"SELECT j.id, j.channel_id, j.account_id, a.username, j.status, j.created_at "+
			"FROM join_requests AS j JOIN accounts AS a ON j.account_id = a.id "+
			"WHERE j.channel_id = $1 AND j.status = $2 ORDER BY j.created_at",
		channelId,
		JoinRequestPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests = make([]JoinRequest, 0)
	for rows.Next() {
		var jr JoinRequest
		if err = rows.Scan(&jr.Id, &jr.ChannelId, &jr.AccountId, &jr.Username, &jr.Status, &jr.CreatedAt); err != nil {
			break
		}

		requests = append(requests, jr)
	}
	return requests, err
}

func (db *PgChatRepository) UpdateJoinRequestStatus(requestId int, status string) error {
	_, err := db.conn.Exec(
		"UPDATE join_requests SET status = $2, updated_at = $3 WHERE id = $1",
		requestId,
		status,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatRepository) CreateMessage(channelId, senderId int, content string) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (channel_id, sender_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, channel_id, sender_id, content, created_at",
		channelId,
		senderId,
		content,
		time.Now().UTC(),
	)

	var msg Message
	err := res.Scan(
		&msg.Id,
		&msg.ChannelId,
		&msg.SenderId,
		&msg.Content,
		&msg.CreatedAt,
	)

	return msg, err
}

func (db *PgChatRepository) GetMessageById(messageId int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT m.id, m.channel_id, m.sender_id, a.username, m.content, m.created_at "+
			"FROM messages AS m JOIN accounts AS a ON m.sender_id = a.id "+
			"WHERE m.id = $1 LIMIT 1",
		messageId,
	)

	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.ChannelId,
		&msg.SenderId,
		&msg.SenderUsername,
		&msg.Content,
		&msg.CreatedAt,
	)

	return msg, err
}

func (db *PgChatRepository) ListMessagesBefore(channelId int, before time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.channel_id, m.sender_id, a.username, m.content, m.created_at "+
			"FROM messages AS m JOIN accounts AS a ON m.sender_id = a.id "+
			"WHERE m.channel_id = $1 AND m.created_at < $2 ORDER BY m.created_at DESC LIMIT $3",
		channelId,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.ChannelId, &msg.SenderId, &msg.SenderUsername, &msg.Content, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}
	return messages, err
}

func (db *PgChatRepository) ListMessagesAfter(channelId int, after time.Time, limit int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.channel_id, m.sender_id, a.username, m.content, m.created_at "+
			"FROM messages AS m JOIN accounts AS a ON m.sender_id = a.id "+
			"WHERE m.channel_id = $1 AND m.created_at > $2 ORDER BY m.created_at ASC LIMIT $3",
		channelId,
		after,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.ChannelId, &msg.SenderId, &msg.SenderUsername, &msg.Content, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}
	return messages, err
}

func (db *PgChatRepository) CountMessagesAfter(channelId int, after time.Time) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE channel_id = $1 AND created_at > $2",
		channelId,
		after,
	)

	var count int
	err := row.Scan(&count)
	return count, err
}

func (db *PgChatRepository) UpsertPinnedMessage(messageId, channelId, pinnedBy int) error {
	_, err := db.conn.Exec(
		"INSERT INTO pinned_messages (message_id, channel_id, pinned_by, pinned_at) "+
			"VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (message_id, channel_id) DO UPDATE SET pinned_by = $3, pinned_at = $4",
		messageId,
		channelId,
		pinnedBy,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatRepository) ListPinnedMessages(channelId int) ([]PinnedMessage, error) {
	rows, err := db.conn.Query(
		"SELECT id, message_id, channel_id, pinned_by, pinned_at FROM pinned_messages "+
			"WHERE channel_id = $1 ORDER BY pinned_at DESC",
		channelId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pinned = make([]PinnedMessage, 0)
	for rows.Next() {
		var p PinnedMessage
		if err = rows.Scan(&p.Id, &p.MessageId, &p.ChannelId, &p.PinnedBy, &p.PinnedAt); err != nil {
			break
		}

		pinned = append(pinned, p)
	}
	return pinned, err
}
