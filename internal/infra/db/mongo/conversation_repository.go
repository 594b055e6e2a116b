package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainconv "helpdesk/internal/domain/conversation"
)

type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	col := db.Collection("conversations")
	idx := mongo.IndexModel{Keys: bson.D{
		{Key: "page_id", Value: 1},
		{Key: "customer_id", Value: 1},
		{Key: "last_message_at", Value: -1},
	}}
	_, _ = col.Indexes().CreateOne(context.Background(), idx)
	return &ConversationRepository{col: col}
}

// OpenOrCreate runs the create-or-extend sequence as one FindOneAndUpdate
// upsert: the filter selects the open conversation for the pair, $max advances
// the activity marker without ever regressing it, and $setOnInsert fills the
// new row when the window has elapsed (or no row exists), in which case the
// upsert inserts instead of matching.
func (r *ConversationRepository) OpenOrCreate(ctx context.Context, params domainconv.OpenOrCreateParams) (*domainconv.Conversation, error) {
	pageID := strings.TrimSpace(params.PageID)
	if pageID == "" {
		return nil, domainconv.ErrPageRequired
	}
	customerID := strings.TrimSpace(params.CustomerID)
	if customerID == "" {
		return nil, domainconv.ErrCustomerRequired
	}
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, domainconv.ErrIDRequired
	}
	at := params.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	name := strings.TrimSpace(params.CustomerName)
	if name == "" {
		name = customerID
	}

	filter := bson.M{
		"page_id":         pageID,
		"customer_id":     customerID,
		"last_message_at": bson.M{"$gte": at.Add(-domainconv.SessionWindow).UnixMilli()},
	}
	update := bson.M{
		"$max": bson.M{"last_message_at": at.UnixMilli()},
		"$setOnInsert": bson.M{
			"_id":           string(params.ID),
			"page_id":       pageID,
			"customer_id":   customerID,
			"customer_name": name,
			"created_at":    at.UnixMilli(),
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "last_message_at", Value: -1}})

	var doc conversationDocument
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.toConversation(), nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainconv.ID) (*domainconv.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainconv.ErrNotFound
		}
		return nil, err
	}
	return doc.toConversation(), nil
}

func (r *ConversationRepository) AdvanceLastMessageAt(ctx context.Context, id domainconv.ID, at time.Time) error {
	update := bson.M{"$max": bson.M{"last_message_at": at.UTC().UnixMilli()}}
	res, err := r.col.UpdateByID(ctx, string(id), update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainconv.ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) ListByPages(ctx context.Context, pageIDs []string) ([]*domainconv.Conversation, error) {
	if len(pageIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{"page_id": bson.M{"$in": pageIDs}}
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var result []*domainconv.Conversation
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, doc.toConversation())
	}
	return result, cursor.Err()
}

type conversationDocument struct {
	ID            string `bson:"_id"`
	PageID        string `bson:"page_id"`
	CustomerID    string `bson:"customer_id"`
	CustomerName  string `bson:"customer_name"`
	CreatedAt     int64  `bson:"created_at"`
	LastMessageAt int64  `bson:"last_message_at"`
}

func (d conversationDocument) toConversation() *domainconv.Conversation {
	return &domainconv.Conversation{
		ID:            domainconv.ID(d.ID),
		PageID:        d.PageID,
		CustomerID:    d.CustomerID,
		CustomerName:  d.CustomerName,
		CreatedAt:     timestampToTime(d.CreatedAt),
		LastMessageAt: timestampToTime(d.LastMessageAt),
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ domainconv.Repository = (*ConversationRepository)(nil)
