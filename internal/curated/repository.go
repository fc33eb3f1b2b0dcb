package curated

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"daily-digest/internal/db"
)

type Repository interface {
	// DeleteAll removes every item in one bulk batch and returns how many
	// were removed. An already-empty collection is a no-op, not an error.
	DeleteAll(ctx context.Context) (int, error)
	Save(ctx context.Context, item *Item) error
	FindAll(ctx context.Context) ([]Item, error)
}

type mongoRepository struct {
	col    *mongo.Collection
	logger *log.Logger
}

func NewMongoCuratedRepository(database *mongo.Database, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.Default()
	}

	return &mongoRepository{
		col:    database.Collection(db.TodayNews),
		logger: logger,
	}
}

func (r *mongoRepository) DeleteAll(ctx context.Context) (int, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return 0, err
	}

	if len(docs) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(docs))
	for _, d := range docs {
		models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": d.ID}))
	}

	res, err := r.col.BulkWrite(ctx, models)
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

// Save creates or replaces the item under its deterministic id.
func (r *mongoRepository) Save(ctx context.Context, item *Item) error {
	_, err := r.col.ReplaceOne(
		ctx,
		bson.M{"_id": item.ID},
		item,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *mongoRepository) FindAll(ctx context.Context) ([]Item, error) {
	cur, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Item
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
