package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linksight/linksight/internal/infrastructure/db"
	"github.com/linksight/linksight/internal/processing/links"
)

type LinksRepository struct {
	coll *mongo.Collection
}

type linkDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	ShortCode   string             `bson:"shortCode"`
	OriginalURL string             `bson:"originalUrl"`
	CustomCode  bool               `bson:"customCode,omitempty"`
	Tags        []string           `bson:"tags,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt"`
	ExpiresAt   *time.Time         `bson:"expiresAt,omitempty"`
	IsActive    bool               `bson:"isActive"`
}

// NewLinksRepository ensures the indexes the registry relies on. The
// unique shortCode index spans all documents, active or not, so a code
// stays claimed after soft deletion.
func NewLinksRepository(m *db.Mongo) (*LinksRepository, error) {
	repo := &LinksRepository{coll: m.Collection("links")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "shortCode", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_shortCode"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("createdAt_desc"),
		},
		{
			Keys:    bson.D{{Key: "isActive", Value: 1}, {Key: "tags", Value: 1}},
			Options: options.Index().SetName("active_tags"),
		},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *LinksRepository) Insert(ctx context.Context, link *links.Link) error {
	doc := linkDoc{
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		CustomCode:  link.CustomCode,
		Tags:        link.Tags,
		CreatedAt:   link.CreatedAt.UTC(),
		ExpiresAt:   link.ExpiresAt,
		IsActive:    link.IsActive,
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err == nil {
		if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
			link.ID = oid.Hex()
		}
		return nil
	}

	if mongo.IsDuplicateKeyError(err) {
		return links.ErrCodeTaken
	}

	return err
}

func (r *LinksRepository) FindByCode(ctx context.Context, code string) (*links.Link, error) {
	var doc linkDoc
	err := r.coll.FindOne(ctx, bson.M{"shortCode": code}).Decode(&doc)
	if err == nil {
		return mapLinkDoc(doc), nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, links.ErrNotFound
	}

	return nil, err
}

func (r *LinksRepository) FindActiveByCode(ctx context.Context, code string, at time.Time) (*links.Link, error) {
	now := at.UTC()

	filter := bson.M{
		"shortCode": code,
		"isActive":  true,
		"$or": bson.A{
			bson.M{"expiresAt": bson.M{"$exists": false}},
			bson.M{"expiresAt": nil},
			bson.M{"expiresAt": bson.M{"$gt": now}},
		},
	}

	var doc linkDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if err == nil {
		return mapLinkDoc(doc), nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, links.ErrNotFound
	}

	return nil, err
}

// SoftDelete flips isActive off. Returns false when no active document
// matched, which covers both unknown ids and repeat deletions.
func (r *LinksRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	res, err := r.coll.UpdateOne(
		ctx,
		bson.M{"_id": oid, "isActive": true},
		bson.M{"$set": bson.M{"isActive": false}},
	)
	if err != nil {
		return false, err
	}

	return res.ModifiedCount > 0, nil
}

func (r *LinksRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{"shortCode": code})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *LinksRepository) ListActive(ctx context.Context) ([]links.Link, error) {
	return r.list(ctx, bson.M{"isActive": true})
}

func (r *LinksRepository) ListActiveByTag(ctx context.Context, tag string) ([]links.Link, error) {
	pattern := primitive.Regex{Pattern: "^" + regexp.QuoteMeta(tag) + "$", Options: "i"}
	return r.list(ctx, bson.M{"isActive": true, "tags": pattern})
}

func (r *LinksRepository) list(ctx context.Context, filter bson.M) ([]links.Link, error) {
	cur, err := r.coll.Find(
		ctx,
		filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []links.Link{}
	for cur.Next(ctx) {
		var doc linkDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *mapLinkDoc(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LinksRepository) CountActive(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"isActive": true})
}

func (r *LinksRepository) RecentCreated(ctx context.Context, limit int) ([]links.Link, error) {
	cur, err := r.coll.Find(
		ctx,
		bson.M{"isActive": true},
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []links.Link{}
	for cur.Next(ctx) {
		var doc linkDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *mapLinkDoc(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func mapLinkDoc(doc linkDoc) *links.Link {
	return &links.Link{
		ID:          doc.ID.Hex(),
		ShortCode:   doc.ShortCode,
		OriginalURL: doc.OriginalURL,
		CustomCode:  doc.CustomCode,
		Tags:        doc.Tags,
		CreatedAt:   doc.CreatedAt,
		ExpiresAt:   doc.ExpiresAt,
		IsActive:    doc.IsActive,
	}
}
