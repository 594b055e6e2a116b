package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainpage "helpdesk/internal/domain/page"
)

type PageRegistry struct {
	col *mongo.Collection
}

func NewPageRegistry(db *mongo.Database) *PageRegistry {
	col := db.Collection("pages")
	idx := mongo.IndexModel{Keys: bson.D{{Key: "owner_user_id", Value: 1}}}
	_, _ = col.Indexes().CreateOne(context.Background(), idx)
	return &PageRegistry{col: col}
}

func (r *PageRegistry) Lookup(ctx context.Context, pageID string) (*domainpage.Registration, error) {
	var doc pageDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": pageID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainpage.ErrNotFound
		}
		return nil, err
	}
	return doc.toRegistration(), nil
}

func (r *PageRegistry) ByOwner(ctx context.Context, ownerUserID string) ([]*domainpage.Registration, error) {
	filter := bson.M{"owner_user_id": ownerUserID}
	opts := options.Find().SetSort(bson.D{{Key: "connected_at", Value: 1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var result []*domainpage.Registration
	for cursor.Next(ctx) {
		var doc pageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, doc.toRegistration())
	}
	return result, cursor.Err()
}

func (r *PageRegistry) Save(ctx context.Context, reg *domainpage.Registration) error {
	if reg == nil || reg.PageID == "" {
		return domainpage.ErrIDRequired
	}
	doc := bson.M{
		"_id":           reg.PageID,
		"page_name":     reg.PageName,
		"access_token":  reg.AccessToken,
		"owner_user_id": reg.OwnerUserID,
		"connected_at":  reg.ConnectedAt.UTC().UnixMilli(),
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": reg.PageID}, doc, opts)
	return err
}

func (r *PageRegistry) Delete(ctx context.Context, pageID, ownerUserID string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": pageID, "owner_user_id": ownerUserID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domainpage.ErrNotFound
	}
	return nil
}

type pageDocument struct {
	ID          string `bson:"_id"`
	PageName    string `bson:"page_name"`
	AccessToken string `bson:"access_token"`
	OwnerUserID string `bson:"owner_user_id"`
	ConnectedAt int64  `bson:"connected_at"`
}

func (d pageDocument) toRegistration() *domainpage.Registration {
	return &domainpage.Registration{
		PageID:      d.ID,
		PageName:    d.PageName,
		AccessToken: d.AccessToken,
		OwnerUserID: d.OwnerUserID,
		ConnectedAt: timestampToTime(d.ConnectedAt),
	}
}

var _ domainpage.Registry = (*PageRegistry)(nil)
