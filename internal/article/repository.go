package article

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"daily-digest/internal/db"
)

type Repository interface {
	FindAll(ctx context.Context) ([]Article, error)
}

type mongoRepository struct {
	col    *mongo.Collection
	logger *log.Logger
}

// NewMongoArticleRepository returns a read-only view over the articles
// collection. No indexes are created here; the collection is owned by the
// ingestion crawlers.
func NewMongoArticleRepository(database *mongo.Database, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.Default()
	}

	return &mongoRepository{
		col:    database.Collection(db.Articles),
		logger: logger,
	}
}

func (r *mongoRepository) FindAll(ctx context.Context) ([]Article, error) {
	cur, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Article
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
