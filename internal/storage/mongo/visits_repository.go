package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linksight/linksight/internal/infrastructure/db"
	"github.com/linksight/linksight/internal/processing/links"
)

type VisitsRepository struct {
	coll *mongo.Collection
}

type visitDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	URLID      primitive.ObjectID `bson:"urlId"`
	IPHash     string             `bson:"ipHash"`
	UserAgent  string             `bson:"userAgent,omitempty"`
	DeviceType string             `bson:"deviceType"`
	Referrer   string             `bson:"referrer,omitempty"`
	Timestamp  time.Time          `bson:"ts"`
}

func NewVisitsRepository(m *db.Mongo) (*VisitsRepository, error) {
	repo := &VisitsRepository{coll: m.Collection("visits")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "urlId", Value: 1}, {Key: "ts", Value: -1}},
			Options: options.Index().SetName("urlId_ts_desc"),
		},
		{
			Keys:    bson.D{{Key: "ts", Value: -1}},
			Options: options.Index().SetName("ts_desc"),
		},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

// Insert appends one ledger entry. The timestamp is assigned here, at
// ingestion, so queued or replayed visits keep a consistent clock.
func (r *VisitsRepository) Insert(ctx context.Context, visit *links.Visit) error {
	urlID, err := primitive.ObjectIDFromHex(visit.URLID)
	if err != nil {
		return links.ErrNotFound
	}

	if visit.Timestamp.IsZero() {
		visit.Timestamp = time.Now().UTC()
	}

	doc := visitDoc{
		URLID:      urlID,
		IPHash:     visit.IPHash,
		UserAgent:  visit.UserAgent,
		DeviceType: visit.DeviceType,
		Referrer:   visit.Referrer,
		Timestamp:  visit.Timestamp.UTC(),
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		visit.ID = oid.Hex()
	}
	return nil
}

func (r *VisitsRepository) StatsByLink(ctx context.Context, linkID string) (links.VisitStats, error) {
	urlID, err := primitive.ObjectIDFromHex(linkID)
	if err != nil {
		return links.VisitStats{}, links.ErrNotFound
	}
	return r.stats(ctx, bson.M{"urlId": urlID})
}

func (r *VisitsRepository) GlobalStats(ctx context.Context) (links.VisitStats, error) {
	return r.stats(ctx, bson.M{})
}

func (r *VisitsRepository) stats(ctx context.Context, match bson.M) (links.VisitStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"total":    bson.M{"$sum": 1},
			"visitors": bson.M{"$addToSet": "$ipHash"},
		}}},
		{{Key: "$project", Value: bson.M{
			"total":  1,
			"unique": bson.M{"$size": "$visitors"},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return links.VisitStats{}, err
	}
	defer cur.Close(ctx)

	var row struct {
		Total  int64 `bson:"total"`
		Unique int64 `bson:"unique"`
	}
	if cur.Next(ctx) {
		if err := cur.Decode(&row); err != nil {
			return links.VisitStats{}, err
		}
	}
	if err := cur.Err(); err != nil {
		return links.VisitStats{}, err
	}

	return links.VisitStats{TotalVisits: row.Total, UniqueVisitors: row.Unique}, nil
}

func (r *VisitsRepository) CountByDevice(ctx context.Context, linkID string) (map[string]int64, error) {
	urlID, err := primitive.ObjectIDFromHex(linkID)
	if err != nil {
		return nil, links.ErrNotFound
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"urlId": urlID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$deviceType",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]int64{}
	for cur.Next(ctx) {
		var row struct {
			Device string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.Device] = row.Count
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// TopReferrers groups by referrer with the empty string standing in for
// direct traffic. Ties break alphabetically so results are deterministic.
func (r *VisitsRepository) TopReferrers(ctx context.Context, linkID string, limit int) ([]links.ReferrerCount, error) {
	urlID, err := primitive.ObjectIDFromHex(linkID)
	if err != nil {
		return nil, links.ErrNotFound
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"urlId": urlID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$ifNull": bson.A{"$referrer", ""}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []links.ReferrerCount{}
	for cur.Next(ctx) {
		var row struct {
			Referrer string `bson:"_id"`
			Count    int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, links.ReferrerCount{Referrer: row.Referrer, Count: row.Count})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByDay buckets visits per UTC calendar day since the given instant.
// Days without visits produce no bucket.
func (r *VisitsRepository) CountByDay(ctx context.Context, linkID string, since time.Time) ([]links.TimeSeriesPoint, error) {
	urlID, err := primitive.ObjectIDFromHex(linkID)
	if err != nil {
		return nil, links.ErrNotFound
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"urlId": urlID,
			"ts":    bson.M{"$gte": since.UTC()},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format": "%Y-%m-%d",
				"date":   "$ts",
			}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []links.TimeSeriesPoint{}
	for cur.Next(ctx) {
		var row struct {
			Date  string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, links.TimeSeriesPoint{Date: row.Date, Visits: row.Count})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *VisitsRepository) RecentByLink(ctx context.Context, linkID string, limit int) ([]links.Visit, error) {
	urlID, err := primitive.ObjectIDFromHex(linkID)
	if err != nil {
		return nil, links.ErrNotFound
	}

	cur, err := r.coll.Find(
		ctx,
		bson.M{"urlId": urlID},
		options.Find().
			SetSort(bson.D{{Key: "ts", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []links.Visit{}
	for cur.Next(ctx) {
		var doc visitDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, links.Visit{
			ID:         doc.ID.Hex(),
			URLID:      doc.URLID.Hex(),
			IPHash:     doc.IPHash,
			UserAgent:  doc.UserAgent,
			DeviceType: doc.DeviceType,
			Referrer:   doc.Referrer,
			Timestamp:  doc.Timestamp,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecentClicks joins the newest visits with their links to carry the
// short code into the activity feed.
func (r *VisitsRepository) RecentClicks(ctx context.Context, limit int) ([]links.ClickEvent, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "ts", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "links",
			"localField":   "urlId",
			"foreignField": "_id",
			"as":           "link",
		}}},
		{{Key: "$unwind", Value: "$link"}},
		{{Key: "$project", Value: bson.M{
			"shortCode": "$link.shortCode",
			"referrer":  1,
			"ts":        1,
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []links.ClickEvent{}
	for cur.Next(ctx) {
		var row struct {
			ShortCode string    `bson:"shortCode"`
			Referrer  string    `bson:"referrer"`
			Timestamp time.Time `bson:"ts"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, links.ClickEvent{
			ShortCode: row.ShortCode,
			Referrer:  row.Referrer,
			Timestamp: row.Timestamp,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
