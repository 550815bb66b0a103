// Package pg implements the remote data gateway on PostgreSQL via pgxpool.
package pg

import (
	"context"
	"time"

	"PulseChat/module/chat/model"
	"PulseChat/service/gateway"
	"PulseChat/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	URL string
}

type Gateway struct {
	pool *pgxpool.Pool
}

var _ gateway.Remote = (*Gateway)(nil)

func New(ctx context.Context, cfg Config) (*Gateway, error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, errs.WrapMsg(err, "pgxpool connect", "url", cfg.URL)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "pg ping")
	}
	return &Gateway{pool: pool}, nil
}

func (g *Gateway) Close() { g.pool.Close() }

// Rooms returns every room with an explicit deterministic order; first-room
// auto-select must never depend on server default ordering.
func (g *Gateway) Rooms(ctx context.Context) ([]model.Room, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT id, name, is_direct, created_at FROM rooms ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, errs.WrapMsg(err, "query rooms")
	}
	defer rows.Close()

	var out []model.Room
	for rows.Next() {
		var r model.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.IsDirect, &r.CreatedAt); err != nil {
			return nil, errs.WrapMsg(err, "scan room")
		}
		out = append(out, r)
	}
	return out, errs.Wrap(rows.Err())
}

func (g *Gateway) Profiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT id, username, avatar_url FROM profiles ORDER BY username ASC, id ASC`)
	if err != nil {
		return nil, errs.WrapMsg(err, "query profiles")
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.AvatarURL); err != nil {
			return nil, errs.WrapMsg(err, "scan profile")
		}
		out = append(out, p)
	}
	return out, errs.Wrap(rows.Err())
}

// Messages joins the sender profile so history renders without a second
// round trip, mirroring the platform's `select *, profiles(...)` shape.
func (g *Gateway) Messages(ctx context.Context, roomID string) ([]model.MessageRow, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT m.id, m.room_id, m.user_id, m.content, m.created_at,
		       COALESCE(p.username, ''), COALESCE(p.avatar_url, '')
		FROM messages m
		LEFT JOIN profiles p ON p.id = m.user_id
		WHERE m.room_id = $1
		ORDER BY m.created_at ASC, m.id ASC`, roomID)
	if err != nil {
		return nil, errs.WrapMsg(err, "query messages", "room", roomID)
	}
	defer rows.Close()

	var out []model.MessageRow
	for rows.Next() {
		var m model.MessageRow
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Content, &m.CreatedAt,
			&m.SenderName, &m.SenderAvatar); err != nil {
			return nil, errs.WrapMsg(err, "scan message")
		}
		out = append(out, m)
	}
	return out, errs.Wrap(rows.Err())
}

func (g *Gateway) MembershipsForUser(ctx context.Context, userID string) ([]model.RoomMember, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT room_id, user_id FROM room_members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, errs.WrapMsg(err, "query memberships", "user", userID)
	}
	defer rows.Close()
	return scanMembers(rows)
}

func (g *Gateway) MembershipsForRooms(ctx context.Context, roomIDs []string) ([]model.RoomMember, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	rows, err := g.pool.Query(ctx,
		`SELECT room_id, user_id FROM room_members WHERE room_id = ANY($1)`, roomIDs)
	if err != nil {
		return nil, errs.WrapMsg(err, "query room memberships")
	}
	defer rows.Close()
	return scanMembers(rows)
}

func (g *Gateway) InsertMessage(ctx context.Context, row model.MessageRow) (model.MessageRow, error) {
	var out model.MessageRow
	err := g.pool.QueryRow(ctx, `
		INSERT INTO messages (room_id, user_id, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, room_id, user_id, content, created_at`,
		row.RoomID, row.UserID, row.Content, time.Now().UTC(),
	).Scan(&out.ID, &out.RoomID, &out.UserID, &out.Content, &out.CreatedAt)
	if err != nil {
		return model.MessageRow{}, errs.WrapMsg(err, "insert message", "room", row.RoomID)
	}
	return out, nil
}

func (g *Gateway) InsertRoom(ctx context.Context, room model.Room) (model.Room, error) {
	var out model.Room
	err := g.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, name, is_direct, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, is_direct, created_at`,
		room.ID, room.Name, room.IsDirect, time.Now().UTC(),
	).Scan(&out.ID, &out.Name, &out.IsDirect, &out.CreatedAt)
	if err != nil {
		return model.Room{}, errs.WrapMsg(err, "insert room", "room", room.ID)
	}
	return out, nil
}

func (g *Gateway) InsertMembers(ctx context.Context, members []model.RoomMember) error {
	batch := &pgx.Batch{}
	for _, m := range members {
		batch.Queue(
			`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			m.RoomID, m.UserID)
	}
	br := g.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range members {
		if _, err := br.Exec(); err != nil {
			return errs.WrapMsg(err, "insert members")
		}
	}
	return nil
}

func (g *Gateway) UpsertProfile(ctx context.Context, p model.Profile) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO profiles (id, username, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username
		WHERE profiles.username = ''`,
		p.ID, p.Username, p.AvatarURL)
	return errs.WrapMsg(err, "upsert profile", "user", p.ID)
}

func scanMembers(rows pgx.Rows) ([]model.RoomMember, error) {
	var out []model.RoomMember
	for rows.Next() {
		var m model.RoomMember
		if err := rows.Scan(&m.RoomID, &m.UserID); err != nil {
			return nil, errs.WrapMsg(err, "scan member")
		}
		out = append(out, m)
	}
	return out, errs.Wrap(rows.Err())
}
