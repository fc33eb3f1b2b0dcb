package engagement

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"daily-digest/internal/db"
)

// ErrNoOpenEvent is returned by CloseLatestOpen when no open has been
// recorded for the tracking id. A close without a matching open is expected
// (pixel blocked, stale page) and treated as a no-op by callers.
var ErrNoOpenEvent = errors.New("no open event for tracking id")

type Repository interface {
	RecordSend(ctx context.Context, ev *SendEvent) error
	RecordOpen(ctx context.Context, ev *OpenEvent) error
	// CloseLatestOpen patches time spent and close time onto the most
	// recently created open for the tracking id. Concurrent closes are
	// last-writer-wins; the per-document update is the only serialization
	// point.
	CloseLatestOpen(ctx context.Context, trackingID string, timeSpentSeconds int, closedAt time.Time) error
	RecordClick(ctx context.Context, ev *ClickEvent) error
}

type mongoRepository struct {
	sent   *mongo.Collection
	opens  *mongo.Collection
	clicks *mongo.Collection
	logger *log.Logger
}

func NewMongoEngagementRepository(database *mongo.Database, logger *log.Logger) (Repository, error) {
	if logger == nil {
		logger = log.Default()
	}

	repo := &mongoRepository{
		sent:   database.Collection(db.EmailSent),
		opens:  database.Collection(db.EmailOpens),
		clicks: database.Collection(db.EmailClicks),
		logger: logger,
	}
	if err := repo.ensureIndexes(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

// ensureIndexes keeps the tracking-id lookups cheap and guarantees at most
// one send event per tracking id.
func (r *mongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.sent.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tracking_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		r.logger.Printf("failed to create email_sent index: %v", err)
		return err
	}

	for _, col := range []*mongo.Collection{r.opens, r.clicks} {
		_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "tracking_id", Value: 1}},
		})
		if err != nil {
			r.logger.Printf("failed to create %s index: %v", col.Name(), err)
			return err
		}
	}
	return nil
}

func (r *mongoRepository) RecordSend(ctx context.Context, ev *SendEvent) error {
	_, err := r.sent.InsertOne(ctx, ev)
	return err
}

func (r *mongoRepository) RecordOpen(ctx context.Context, ev *OpenEvent) error {
	_, err := r.opens.InsertOne(ctx, ev)
	return err
}

func (r *mongoRepository) CloseLatestOpen(ctx context.Context, trackingID string, timeSpentSeconds int, closedAt time.Time) error {
	// _id descending picks the newest open; ObjectIDs are creation-ordered.
	res := r.opens.FindOneAndUpdate(
		ctx,
		bson.M{"tracking_id": trackingID},
		bson.M{"$set": bson.M{
			"time_spent_seconds": timeSpentSeconds,
			"closed_at":          closedAt,
		}},
		options.FindOneAndUpdate().SetSort(bson.D{{Key: "_id", Value: -1}}),
	)
	if errors.Is(res.Err(), mongo.ErrNoDocuments) {
		return ErrNoOpenEvent
	}
	return res.Err()
}

func (r *mongoRepository) RecordClick(ctx context.Context, ev *ClickEvent) error {
	_, err := r.clicks.InsertOne(ctx, ev)
	return err
}
