// Package mongo implements store.Store on MongoDB.
//
// Messages and users get int64 identifiers from a counters collection so IDs
// stay strictly increasing, matching the SQLite backend. Private messages carry
// the canonical dialog key, which makes dialog lookups a single indexed
// equality match regardless of direction.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vovakirdan/famchat/internal/dialog"
	"github.com/vovakirdan/famchat/internal/store"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
	countersCollection = "counters"

	closeTimeout = 5 * time.Second
)

// MongoStore implements store.Store for MongoDB.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection
	counters *mongo.Collection
}

type userDoc struct {
	ID           int64     `bson:"_id"`
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"password"`
	CreatedAt    time.Time `bson:"createdAt"`
}

type attachmentDoc struct {
	StoredName   string `bson:"filename"`
	OriginalName string `bson:"originalname"`
	URL          string `bson:"url"`
	MimeType     string `bson:"mimetype"`
	SizeBytes    int64  `bson:"size"`
}

type messageDoc struct {
	ID         int64          `bson:"_id"`
	From       string         `bson:"from"`
	To         string         `bson:"to"`
	DialogKey  string         `bson:"dialogKey,omitempty"`
	IsGeneral  bool           `bson:"isGeneral"`
	Kind       string         `bson:"type"`
	Text       string         `bson:"message"`
	Attachment *attachmentDoc `bson:"attachment,omitempty"`
	Caption    string         `bson:"caption"`
	CreatedAt  time.Time      `bson:"createdAt"`
}

type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// New connects to uri, selects database and ensures indexes exist.
func New(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
		counters: db.Collection(countersCollection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "isGeneral", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "dialogKey", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "from", Value: 1}, {Key: "to", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create messages indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes every collection used by the store. Intended for tests.
func (s *MongoStore) Drop(ctx context.Context) error {
	for _, c := range []*mongo.Collection{s.users, s.messages, s.counters} {
		if err := c.Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", c.Name(), err)
		}
	}
	return nil
}

func (s *MongoStore) nextID(ctx context.Context, name string) (int64, error) {
	var c counterDoc
	err := s.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, unavailable("next "+name+" id", err)
	}
	return c.Seq, nil
}

// ==== UserStore implementation ====

// CreateUser inserts a user; the unique index on username decides races.
func (s *MongoStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	id, err := s.nextID(ctx, usersCollection)
	if err != nil {
		return nil, err
	}

	doc := userDoc{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicateUsername
		}
		return nil, unavailable("insert user", err)
	}

	return doc.toUser(), nil
}

// GetUserByUsername retrieves a user by username.
func (s *MongoStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.D{{Key: "username", Value: username}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrUserNotFound
		}
		return nil, unavailable("find user", err)
	}
	return doc.toUser(), nil
}

// ListUsernames returns every registered username, sorted.
func (s *MongoStore) ListUsernames(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetProjection(bson.D{{Key: "username", Value: 1}})

	cursor, err := s.users.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, unavailable("find users", err)
	}

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, unavailable("decode users", err)
	}

	usernames := make([]string, 0, len(docs))
	for _, d := range docs {
		usernames = append(usernames, d.Username)
	}
	return usernames, nil
}

// ==== MessageStore implementation ====

// AppendMessage persists a message with an ID from the counters collection.
func (s *MongoStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	id, err := s.nextID(ctx, messagesCollection)
	if err != nil {
		return err
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	// BSON dates carry millisecond precision.
	msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Millisecond)
	if msg.Kind == "" {
		msg.Kind = store.MessageKindText
	}
	msg.ID = id

	if _, err := s.messages.InsertOne(ctx, fromMessage(msg)); err != nil {
		msg.ID = 0
		return unavailable("insert message", err)
	}
	return nil
}

// LoadGeneral returns the newest general-room messages, oldest first.
func (s *MongoStore) LoadGeneral(ctx context.Context, limit int) ([]*store.Message, error) {
	return s.find(ctx, bson.D{{Key: "isGeneral", Value: true}}, limit)
}

// LoadDialog returns the newest messages between two users in either direction, oldest first.
func (s *MongoStore) LoadDialog(ctx context.Context, userA, userB string, limit int) ([]*store.Message, error) {
	return s.find(ctx, bson.D{{Key: "dialogKey", Value: dialog.Key(userA, userB)}}, limit)
}

func (s *MongoStore) find(ctx context.Context, filter bson.D, limit int) ([]*store.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(store.NormalizeLimit(limit)))

	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable("find messages", err)
	}

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, unavailable("decode messages", err)
	}

	messages := make([]*store.Message, 0, len(docs))
	for i := range docs {
		messages = append(messages, docs[i].toMessage())
	}
	slices.Reverse(messages)
	return messages, nil
}

// GetMessage retrieves a message by ID.
func (s *MongoStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	var doc messageDoc
	err := s.messages.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrMessageNotFound
		}
		return nil, unavailable("find message", err)
	}
	return doc.toMessage(), nil
}

// DeleteMessage hard-deletes a message.
func (s *MongoStore) DeleteMessage(ctx context.Context, id int64) (bool, error) {
	res, err := s.messages.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, unavailable("delete message", err)
	}
	return res.DeletedCount > 0, nil
}

func fromMessage(msg *store.Message) messageDoc {
	doc := messageDoc{
		ID:        msg.ID,
		From:      msg.From,
		To:        msg.To,
		IsGeneral: msg.IsGeneral(),
		Kind:      string(msg.Kind),
		Text:      msg.Text,
		Caption:   msg.Caption,
		CreatedAt: msg.CreatedAt,
	}
	if !doc.IsGeneral {
		doc.DialogKey = dialog.Key(msg.From, msg.To)
	}
	if a := msg.Attachment; a != nil {
		doc.Attachment = &attachmentDoc{
			StoredName:   a.StoredName,
			OriginalName: a.OriginalName,
			URL:          a.URL,
			MimeType:     a.MimeType,
			SizeBytes:    a.SizeBytes,
		}
	}
	return doc
}

func (d *messageDoc) toMessage() *store.Message {
	msg := &store.Message{
		ID:        d.ID,
		From:      d.From,
		To:        d.To,
		Kind:      store.MessageKind(d.Kind),
		Text:      d.Text,
		Caption:   d.Caption,
		CreatedAt: d.CreatedAt.UTC(),
	}
	if a := d.Attachment; a != nil {
		msg.Attachment = &store.Attachment{
			StoredName:   a.StoredName,
			OriginalName: a.OriginalName,
			URL:          a.URL,
			MimeType:     a.MimeType,
			SizeBytes:    a.SizeBytes,
		}
	}
	return msg
}

func (d *userDoc) toUser() *store.User {
	return &store.User{
		ID:           d.ID,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, op, err)
}

var _ store.Store = (*MongoStore)(nil)
