package database

import (
	"database/sql"
	"time"
)

func (db *PgSpeaksetRepository) CreateUser(params CreateUserParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO users (username, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, password_hash, created_at, updated_at",
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
		time.Now().UTC(),
	)

	var user User
	err := res.Scan(
		&user.Id,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, translateErr(err)
}

func (db *PgSpeaksetRepository) GetUserById(id int) (User, error) {
	res := db.conn.QueryRow(
		"SELECT id, username, password_hash, created_at, updated_at FROM users WHERE id = $1",
		id,
	)

	var user User
	err := res.Scan(
		&user.Id,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, translateErr(err)
}

func (db *PgSpeaksetRepository) GetUserByUsername(username string) (User, error) {
	res := db.conn.QueryRow(
		"SELECT id, username, password_hash, created_at, updated_at FROM users WHERE lower(username) = lower($1)",
		username,
	)

	var user User
	err := res.Scan(
		&user.Id,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, translateErr(err)
}

func (db *PgSpeaksetRepository) CreateSession(session Session) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (token, user_id, issued_at, expires_at) VALUES ($1, $2, $3, $4)",
		session.Token,
		session.UserId,
		session.IssuedAt,
		session.ExpiresAt,
	)
	return translateErr(err)
}

func (db *PgSpeaksetRepository) GetSession(token string) (Session, error) {
	res := db.conn.QueryRow(
		"SELECT token, user_id, issued_at, expires_at FROM sessions WHERE token = $1",
		token,
	)

	var session Session
	err := res.Scan(
		&session.Token,
		&session.UserId,
		&session.IssuedAt,
		&session.ExpiresAt,
	)

	return session, translateErr(err)
}

func (db *PgSpeaksetRepository) DeleteSession(token string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE token = $1", token)
	return translateErr(err)
}

func (db *PgSpeaksetRepository) DeleteExpiredSessions(now time.Time) (int, error) {
	res, err := db.conn.Exec("DELETE FROM sessions WHERE expires_at <= $1", now)
	if err != nil {
		return 0, translateErr(err)
	}

	n, err := res.RowsAffected()
	return int(n), translateErr(err)
}

func (db *PgSpeaksetRepository) CreateSpace(params CreateSpaceParams) (Space, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Space{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO spaces (name, invite_slug, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, name, invite_slug, owner_id, created_at, updated_at",
		params.Name,
		params.InviteSlug,
		params.OwnerId,
		time.Now().UTC(),
		time.Now().UTC(),
	)

	var space Space
	err = res.Scan(
		&space.Id,
		&space.Name,
		&space.InviteSlug,
		&space.OwnerId,
		&space.CreatedAt,
		&space.UpdatedAt,
	)
	if err != nil {
		return Space{}, translateErr(err)
	}

	_, err = tx.Exec(
		"INSERT INTO memberships (space_id, user_id, role, created_at) VALUES ($1, $2, $3, $4)",
		space.Id,
		params.OwnerId,
		RoleOwner,
		time.Now().UTC(),
	)
	if err != nil {
		return Space{}, translateErr(err)
	}

	for _, ch := range params.DefaultChannels {
		_, err = tx.Exec(
			"INSERT INTO channels (space_id, kind, name, created_at) VALUES ($1, $2, $3, $4)",
			space.Id,
			ch.Kind,
			ch.Name,
			time.Now().UTC(),
		)
		if err != nil {
			return Space{}, translateErr(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return Space{}, translateErr(err)
	}

	return space, nil
}

func (db *PgSpeaksetRepository) GetSpaceById(id int) (Space, error) {
	return db.scanSpace(db.conn.QueryRow(
		"SELECT id, name, invite_slug, owner_id, created_at, updated_at FROM spaces WHERE id = $1", id,
	))
}

func (db *PgSpeaksetRepository) GetSpaceBySlug(slug string) (Space, error) {
	return db.scanSpace(db.conn.QueryRow(
		"SELECT id, name, invite_slug, owner_id, created_at, updated_at FROM spaces WHERE invite_slug = $1", slug,
	))
}

func (db *PgSpeaksetRepository) scanSpace(res *sql.Row) (Space, error) {
	var space Space
	err := res.Scan(
		&space.Id,
		&space.Name,
		&space.InviteSlug,
		&space.OwnerId,
		&space.CreatedAt,
		&space.UpdatedAt,
	)
	return space, translateErr(err)
}

func (db *PgSpeaksetRepository) ListMemberships(userId int) ([]Membership, error) {
	rows, err := db.conn.Query(
		"SELECT m.space_id, m.user_id, m.role, m.created_at, "+
			"s.id, s.name, s.invite_slug, s.owner_id, s.created_at, s.updated_at "+
			"FROM memberships m JOIN spaces s ON s.id = m.space_id "+
			"WHERE m.user_id = $1 ORDER BY s.id",
		userId,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		var m Membership
		err := rows.Scan(
			&m.SpaceId,
			&m.UserId,
			&m.Role,
			&m.CreatedAt,
			&m.Space.Id,
			&m.Space.Name,
			&m.Space.InviteSlug,
			&m.Space.OwnerId,
			&m.Space.CreatedAt,
			&m.Space.UpdatedAt,
		)
		if err != nil {
			return nil, translateErr(err)
		}
		memberships = append(memberships, m)
	}

	return memberships, translateErr(rows.Err())
}

func (db *PgSpeaksetRepository) GetMembership(spaceId, userId int) (Membership, error) {
	res := db.conn.QueryRow(
		"SELECT space_id, user_id, role, created_at FROM memberships WHERE space_id = $1 AND user_id = $2",
		spaceId,
		userId,
	)

	var m Membership
	err := res.Scan(&m.SpaceId, &m.UserId, &m.Role, &m.CreatedAt)
	return m, translateErr(err)
}

func (db *PgSpeaksetRepository) CreateMembership(membership Membership) error {
	_, err := db.conn.Exec(
		"INSERT INTO memberships (space_id, user_id, role, created_at) VALUES ($1, $2, $3, $4)",
		membership.SpaceId,
		membership.UserId,
		membership.Role,
		time.Now().UTC(),
	)
	return translateErr(err)
}

func (db *PgSpeaksetRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	res := db.conn.QueryRow(
		"INSERT INTO channels (space_id, kind, name, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, space_id, kind, name, created_at",
		params.SpaceId,
		params.Kind,
		params.Name,
		time.Now().UTC(),
	)

	var ch Channel
	err := res.Scan(&ch.Id, &ch.SpaceId, &ch.Kind, &ch.Name, &ch.CreatedAt)
	return ch, translateErr(err)
}

func (db *PgSpeaksetRepository) GetChannel(spaceId int, kind, name string) (Channel, error) {
	res := db.conn.QueryRow(
		"SELECT id, space_id, kind, name, created_at FROM channels WHERE space_id = $1 AND kind = $2 AND name = $3",
		spaceId,
		kind,
		name,
	)

	var ch Channel
	err := res.Scan(&ch.Id, &ch.SpaceId, &ch.Kind, &ch.Name, &ch.CreatedAt)
	return ch, translateErr(err)
}

func (db *PgSpeaksetRepository) GetChannelById(id int) (Channel, error) {
	res := db.conn.QueryRow(
		"SELECT id, space_id, kind, name, created_at FROM channels WHERE id = $1",
		id,
	)

	var ch Channel
	err := res.Scan(&ch.Id, &ch.SpaceId, &ch.Kind, &ch.Name, &ch.CreatedAt)
	return ch, translateErr(err)
}

func (db *PgSpeaksetRepository) ListChannels(spaceId int) ([]Channel, error) {
	rows, err := db.conn.Query(
		"SELECT id, space_id, kind, name, created_at FROM channels WHERE space_id = $1 ORDER BY id",
		spaceId,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.Id, &ch.SpaceId, &ch.Kind, &ch.Name, &ch.CreatedAt); err != nil {
			return nil, translateErr(err)
		}
		channels = append(channels, ch)
	}

	return channels, translateErr(rows.Err())
}

func (db *PgSpeaksetRepository) MaxSeq(channelId int) (int64, error) {
	res := db.conn.QueryRow(
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE channel_id = $1",
		channelId,
	)

	var seq int64
	err := res.Scan(&seq)
	return seq, translateErr(err)
}

func (db *PgSpeaksetRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (channel_id, seq, author_id, text, deleted, created_at) "+
			"VALUES ($1, $2, $3, $4, FALSE, $5) RETURNING id, channel_id, seq, author_id, text, deleted, created_at, edited_at",
		params.ChannelId,
		params.Seq,
		params.AuthorId,
		params.Text,
		params.CreatedAt,
	)

	return db.scanMessage(res)
}

func (db *PgSpeaksetRepository) GetMessage(id int64) (Message, error) {
	res := db.conn.QueryRow(
		"SELECT id, channel_id, seq, author_id, text, deleted, created_at, edited_at FROM messages WHERE id = $1",
		id,
	)
	return db.scanMessage(res)
}

func (db *PgSpeaksetRepository) scanMessage(res *sql.Row) (Message, error) {
	var msg Message
	var editedAt sql.NullTime
	err := res.Scan(
		&msg.Id,
		&msg.ChannelId,
		&msg.Seq,
		&msg.AuthorId,
		&msg.Text,
		&msg.Deleted,
		&msg.CreatedAt,
		&editedAt,
	)
	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}
	return msg, translateErr(err)
}

func (db *PgSpeaksetRepository) UpdateMessageText(id int64, text string, editedAt time.Time) error {
	res, err := db.conn.Exec(
		"UPDATE messages SET text = $1, edited_at = $2 WHERE id = $3 AND NOT deleted",
		text,
		editedAt,
		id,
	)
	if err != nil {
		return translateErr(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return translateErr(err)
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

func (db *PgSpeaksetRepository) TombstoneMessage(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.Exec("UPDATE messages SET text = '', deleted = TRUE WHERE id = $1", id)
	if err != nil {
		return translateErr(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return translateErr(err)
	}
	if n == 0 {
		err = ErrNoRows
		return err
	}

	_, err = tx.Exec("DELETE FROM reactions WHERE message_id = $1", id)
	if err != nil {
		return translateErr(err)
	}

	return translateErr(tx.Commit())
}

func (db *PgSpeaksetRepository) ListMessages(channelId int, beforeSeq, afterSeq int64, limit int) ([]Message, error) {
	// Paging strictly by seq keeps pages gap-free under concurrent
	// appends. Without an "after" boundary the page is anchored at the
	// newest rows: selected descending, then reversed back to ascending.
	query := "SELECT id, channel_id, seq, author_id, text, deleted, created_at, edited_at FROM messages " +
		"WHERE channel_id = $1 AND ($2 = 0 OR seq < $2) AND ($3 = 0 OR seq > $3) "
	newestFirst := afterSeq == 0
	if newestFirst {
		query += "ORDER BY seq DESC LIMIT $4"
	} else {
		query += "ORDER BY seq ASC LIMIT $4"
	}

	rows, err := db.conn.Query(query, channelId, beforeSeq, afterSeq, limit)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var editedAt sql.NullTime
		err := rows.Scan(
			&msg.Id,
			&msg.ChannelId,
			&msg.Seq,
			&msg.AuthorId,
			&msg.Text,
			&msg.Deleted,
			&msg.CreatedAt,
			&editedAt,
		)
		if err != nil {
			return nil, translateErr(err)
		}
		if editedAt.Valid {
			msg.EditedAt = &editedAt.Time
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr(err)
	}

	if newestFirst {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}

	return messages, nil
}

func (db *PgSpeaksetRepository) AddReaction(messageId int64, userId int, emoji string) (bool, error) {
	res, err := db.conn.Exec(
		"INSERT INTO reactions (message_id, user_id, emoji, created_at) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (message_id, user_id, emoji) DO NOTHING",
		messageId,
		userId,
		emoji,
		time.Now().UTC(),
	)
	if err != nil {
		return false, translateErr(err)
	}

	n, err := res.RowsAffected()
	return n > 0, translateErr(err)
}

func (db *PgSpeaksetRepository) RemoveReaction(messageId int64, userId int, emoji string) (bool, error) {
	res, err := db.conn.Exec(
		"DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3",
		messageId,
		userId,
		emoji,
	)
	if err != nil {
		return false, translateErr(err)
	}

	n, err := res.RowsAffected()
	return n > 0, translateErr(err)
}

func (db *PgSpeaksetRepository) GetReactionCounts(messageId int64) (map[string]int, error) {
	rows, err := db.conn.Query(
		"SELECT emoji, COUNT(*) FROM reactions WHERE message_id = $1 GROUP BY emoji",
		messageId,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var emoji string
		var count int
		if err := rows.Scan(&emoji, &count); err != nil {
			return nil, translateErr(err)
		}
		counts[emoji] = count
	}

	return counts, translateErr(rows.Err())
}
