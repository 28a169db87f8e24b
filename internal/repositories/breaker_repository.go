package repositories

import (
	"context"
	"fmt"

	"github.com/numvend/numvend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BreakerRepository persists circuit breaker snapshots keyed by
// endpoint group.
type BreakerRepository interface {
	Save(ctx context.Context, snapshot models.BreakerSnapshot) error
	List(ctx context.Context) ([]models.BreakerSnapshot, error)
}

type mongoBreakerRepository struct {
	col *mongo.Collection
}

// NewBreakerRepository creates a Mongo-backed breaker snapshot
// repository.
func NewBreakerRepository(db *mongo.Database, collection string) BreakerRepository {
	return &mongoBreakerRepository{col: db.Collection(collection)}
}

func (r *mongoBreakerRepository) Save(ctx context.Context, snapshot models.BreakerSnapshot) error {
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"_id": snapshot.Endpoint},
		snapshot,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save breaker snapshot: %w", err)
	}
	return nil
}

func (r *mongoBreakerRepository) List(ctx context.Context) ([]models.BreakerSnapshot, error) {
	cursor, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list breaker snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.BreakerSnapshot
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode breaker snapshots: %w", err)
	}
	return out, nil
}
