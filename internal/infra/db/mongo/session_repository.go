package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainauth "helpdesk/internal/domain/auth"
	domainuser "helpdesk/internal/domain/user"
)

type SessionStore struct {
	col *mongo.Collection
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	col := db.Collection("sessions")
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{
			// TTL index lets mongo reap expired sessions on its own.
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	_, _ = col.Indexes().CreateMany(context.Background(), indexes)
	return &SessionStore{col: col}
}

func (s *SessionStore) Save(ctx context.Context, session *domainauth.Session) error {
	if session == nil || session.Token == "" {
		return domainauth.ErrTokenRequired
	}
	doc := bson.M{
		"_id":        string(session.Token),
		"user_id":    string(session.UserID),
		"created_at": session.CreatedAt.UTC(),
		"expires_at": session.ExpiresAt.UTC(),
	}
	_, err := s.col.InsertOne(ctx, doc)
	return err
}

func (s *SessionStore) Get(ctx context.Context, token domainauth.Token) (*domainauth.Session, error) {
	var doc sessionDocument
	if err := s.col.FindOne(ctx, bson.M{"_id": string(token)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainauth.ErrSessionNotFound
		}
		return nil, err
	}
	session := doc.toSession()
	if session.Expired(time.Now()) {
		_, _ = s.col.DeleteOne(ctx, bson.M{"_id": string(token)})
		return nil, domainauth.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) Delete(ctx context.Context, token domainauth.Token) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": string(token)})
	return err
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID domainuser.ID) error {
	_, err := s.col.DeleteMany(ctx, bson.M{"user_id": string(userID)})
	return err
}

type sessionDocument struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func (d sessionDocument) toSession() *domainauth.Session {
	return &domainauth.Session{
		Token:     domainauth.Token(d.ID),
		UserID:    domainuser.ID(d.UserID),
		CreatedAt: d.CreatedAt.UTC(),
		ExpiresAt: d.ExpiresAt.UTC(),
	}
}

var _ domainauth.SessionStore = (*SessionStore)(nil)
