// Package mongostore persists users and received records in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/zerorich/rating-bot/internal/domain"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
	ratingsCollection  = "ratings"
)

// Store implements the user, message and rating repositories on one database.
type Store struct {
	users    *mongo.Collection
	messages *mongo.Collection
	ratings  *mongo.Collection
}

// Connect opens a client, verifies it with a ping and returns it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	return client, nil
}

// New returns a Store backed by db.
func New(db *mongo.Database) (*Store, error) {
	if db == nil {
		return nil, errors.New("mongostore: database must not be nil")
	}
	return &Store{
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
		ratings:  db.Collection(ratingsCollection),
	}, nil
}

// EnsureIndexes creates the unique user keys and the inbox ordering indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "link_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("mongostore: users indexes: %w", err)
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipient_user_id", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: messages index: %w", err)
	}
	_, err = s.ratings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "to_user_id", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: ratings index: %w", err)
	}
	return nil
}

// FindUserByID returns the profile of a registered user.
func (s *Store) FindUserByID(ctx context.Context, userID int64) (domain.User, error) {
	return s.findUser(ctx, "FindUserByID", bson.D{{Key: "user_id", Value: userID}})
}

// FindUserByLinkToken resolves a link token to its owner.
func (s *Store) FindUserByLinkToken(ctx context.Context, token string) (domain.User, error) {
	return s.findUser(ctx, "FindUserByLinkToken", bson.D{{Key: "link_id", Value: token}})
}

func (s *Store) findUser(ctx context.Context, op string, filter bson.D) (domain.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.User{}, fmt.Errorf("mongostore: %s: %w", op, mapError(err))
	}
	return doc.toDomain(), nil
}

// InsertUser registers a user. The unique indexes reject a second profile
// for the same user id or token.
func (s *Store) InsertUser(ctx context.Context, u domain.User) error {
	if _, err := s.users.InsertOne(ctx, newUserDoc(u)); err != nil {
		return fmt.Errorf("mongostore: InsertUser: %w", mapError(err))
	}
	return nil
}

// InsertMessage persists an anonymous message.
func (s *Store) InsertMessage(ctx context.Context, m domain.Message) error {
	if _, err := s.messages.InsertOne(ctx, newMessageDoc(m)); err != nil {
		return fmt.Errorf("mongostore: InsertMessage: %w", mapError(err))
	}
	return nil
}

// InsertRating persists a rating.
func (s *Store) InsertRating(ctx context.Context, r domain.Rating) error {
	if _, err := s.ratings.InsertOne(ctx, newRatingDoc(r)); err != nil {
		return fmt.Errorf("mongostore: InsertRating: %w", mapError(err))
	}
	return nil
}

// ListMessages returns the newest messages received by a user.
func (s *Store) ListMessages(ctx context.Context, recipientUserID int64, limit int) ([]domain.Message, error) {
	var docs []messageDoc
	filter := bson.D{{Key: "recipient_user_id", Value: recipientUserID}}
	if err := s.findNewest(ctx, s.messages, filter, limit, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: ListMessages: %w", err)
	}
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// ListRatings returns the newest ratings received by a user.
func (s *Store) ListRatings(ctx context.Context, recipientUserID int64, limit int) ([]domain.Rating, error) {
	var docs []ratingDoc
	filter := bson.D{{Key: "to_user_id", Value: recipientUserID}}
	if err := s.findNewest(ctx, s.ratings, filter, limit, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: ListRatings: %w", err)
	}
	out := make([]domain.Rating, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) findNewest(ctx context.Context, coll *mongo.Collection, filter bson.D, limit int, out any) error {
	opts := options.Find().SetSort(newestFirst())
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

func newestFirst() bson.D {
	return bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err)
	}
	return err
}

// mongo stores millisecond precision in UTC.
func toStored(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
