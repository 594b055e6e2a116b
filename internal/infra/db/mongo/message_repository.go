package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainconv "helpdesk/internal/domain/conversation"
)

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	col := db.Collection("messages")
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{
			// Partial: outbound messages carry no dedupe key.
			Keys: bson.D{{Key: "dedupe_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"dedupe_key": bson.M{"$type": "string"}}),
		},
	}
	_, _ = col.Indexes().CreateMany(context.Background(), indexes)
	return &MessageRepository{col: col}
}

// InsertUnique admits a message exactly once; the unique dedupe_key index
// turns a redelivered event into ErrDuplicateMessage instead of a second row.
func (r *MessageRepository) InsertUnique(ctx context.Context, msg *domainconv.Message) error {
	if msg == nil || msg.ID == "" {
		return domainconv.ErrIDRequired
	}
	doc := bson.M{
		"_id":             msg.ID,
		"conversation_id": string(msg.ConversationID),
		"sender_id":       msg.SenderID,
		"text":            msg.Text,
		"direction":       string(msg.Direction),
		"created_at":      msg.CreatedAt.UTC().UnixMilli(),
	}
	if msg.DedupeKey != "" {
		doc["dedupe_key"] = msg.DedupeKey
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainconv.ErrDuplicateMessage
		}
		return err
	}
	return nil
}

func (r *MessageRepository) ListByConversation(ctx context.Context, id domainconv.ID) ([]*domainconv.Message, error) {
	filter := bson.M{"conversation_id": string(id)}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var result []*domainconv.Message
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, doc.toMessage())
	}
	return result, cursor.Err()
}

func (r *MessageRepository) LatestByConversation(ctx context.Context, id domainconv.ID) (*domainconv.Message, error) {
	filter := bson.M{"conversation_id": string(id)}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var doc messageDocument
	if err := r.col.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toMessage(), nil
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	Text           string `bson:"text"`
	Direction      string `bson:"direction"`
	DedupeKey      string `bson:"dedupe_key,omitempty"`
	CreatedAt      int64  `bson:"created_at"`
}

func (d messageDocument) toMessage() *domainconv.Message {
	return &domainconv.Message{
		ID:             d.ID,
		ConversationID: domainconv.ID(d.ConversationID),
		SenderID:       d.SenderID,
		Text:           d.Text,
		Direction:      domainconv.Direction(d.Direction),
		DedupeKey:      d.DedupeKey,
		CreatedAt:      time.UnixMilli(d.CreatedAt).UTC(),
	}
}

var _ domainconv.MessageRepository = (*MessageRepository)(nil)
