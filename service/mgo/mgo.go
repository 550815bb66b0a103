// Package mgo implements the remote data gateway on MongoDB. It is the
// config-selected alternative to service/pg; both honor the same contract,
// including the deterministic room ordering.
package mgo

import (
	"context"
	"time"

	"PulseChat/module/chat/model"
	"PulseChat/service/gateway"
	"PulseChat/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collRooms    = "rooms"
	collMembers  = "room_members"
	collMessages = "messages"
	collProfiles = "profiles"
)

type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	Username    string
	Password    string
}

type Gateway struct {
	db *mongo.Database
}

var _ gateway.Remote = (*Gateway)(nil)

func New(ctx context.Context, cfg Config) (*Gateway, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
	}
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "mongo connect", "uri", cfg.URI)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, errs.WrapMsg(err, "mongo ping")
	}
	return &Gateway{db: cli.Database(cfg.Database)}, nil
}

func (g *Gateway) Close(ctx context.Context) error {
	return g.db.Client().Disconnect(ctx)
}

func (g *Gateway) Rooms(ctx context.Context) ([]model.Room, error) {
	cur, err := g.db.Collection(collRooms).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "find rooms")
	}
	var out []model.Room
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode rooms")
	}
	return out, nil
}

func (g *Gateway) Profiles(ctx context.Context) ([]model.Profile, error) {
	cur, err := g.db.Collection(collProfiles).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "username", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "find profiles")
	}
	var out []model.Profile
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode profiles")
	}
	return out, nil
}

func (g *Gateway) Messages(ctx context.Context, roomID string) ([]model.MessageRow, error) {
	cur, err := g.db.Collection(collMessages).Find(ctx, bson.M{"room_id": roomID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "find messages", "room", roomID)
	}
	var rows []model.MessageRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errs.WrapMsg(err, "decode messages")
	}

	// denormalize sender profiles in one pass
	profiles, err := g.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	for i := range rows {
		if p, ok := byID[rows[i].UserID]; ok {
			rows[i].SenderName = p.Username
			rows[i].SenderAvatar = p.AvatarURL
		}
	}
	return rows, nil
}

func (g *Gateway) MembershipsForUser(ctx context.Context, userID string) ([]model.RoomMember, error) {
	cur, err := g.db.Collection(collMembers).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, errs.WrapMsg(err, "find memberships", "user", userID)
	}
	var out []model.RoomMember
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode memberships")
	}
	return out, nil
}

func (g *Gateway) MembershipsForRooms(ctx context.Context, roomIDs []string) ([]model.RoomMember, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	cur, err := g.db.Collection(collMembers).Find(ctx, bson.M{"room_id": bson.M{"$in": roomIDs}})
	if err != nil {
		return nil, errs.WrapMsg(err, "find room memberships")
	}
	var out []model.RoomMember
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode room memberships")
	}
	return out, nil
}

func (g *Gateway) InsertMessage(ctx context.Context, row model.MessageRow) (model.MessageRow, error) {
	row.ID = primitive.NewObjectID().Hex()
	row.CreatedAt = time.Now().UTC()
	if _, err := g.db.Collection(collMessages).InsertOne(ctx, row); err != nil {
		return model.MessageRow{}, errs.WrapMsg(err, "insert message", "room", row.RoomID)
	}
	return row, nil
}

func (g *Gateway) InsertRoom(ctx context.Context, room model.Room) (model.Room, error) {
	room.CreatedAt = time.Now().UTC()
	if _, err := g.db.Collection(collRooms).InsertOne(ctx, room); err != nil {
		return model.Room{}, errs.WrapMsg(err, "insert room", "room", room.ID)
	}
	return room, nil
}

func (g *Gateway) InsertMembers(ctx context.Context, members []model.RoomMember) error {
	docs := make([]any, 0, len(members))
	for _, m := range members {
		docs = append(docs, m)
	}
	_, err := g.db.Collection(collMembers).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return errs.WrapMsg(err, "insert members")
}

func (g *Gateway) UpsertProfile(ctx context.Context, p model.Profile) error {
	_, err := g.db.Collection(collProfiles).UpdateOne(ctx,
		bson.M{"_id": p.ID},
		bson.M{"$setOnInsert": bson.M{
			"username":   p.Username,
			"avatar_url": p.AvatarURL,
		}},
		options.Update().SetUpsert(true),
	)
	return errs.WrapMsg(err, "upsert profile", "user", p.ID)
}
