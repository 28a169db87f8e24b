package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/numvend/numvend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TransactionRepository is the append-only ledger log. Entries are
// never updated or deleted.
type TransactionRepository interface {
	Insert(ctx context.Context, tx *models.Transaction) error
	ListByAccount(ctx context.Context, accountID string, limit int64) ([]models.Transaction, error)

	// SumByEntity totals signed amounts for an entity filtered by
	// reason codes. Used to enforce the refund bound.
	SumByEntity(ctx context.Context, entityID string, reasons []models.TransactionReason) (int64, error)

	// SumByAccount totals all signed amounts for an account. The
	// ledger audit compares this to the stored balance.
	SumByAccount(ctx context.Context, accountID string) (int64, error)
}

type mongoTransactionRepository struct {
	col *mongo.Collection
}

// NewTransactionRepository creates a Mongo-backed transaction
// repository.
func NewTransactionRepository(db *mongo.Database, collection string) TransactionRepository {
	return &mongoTransactionRepository{col: db.Collection(collection)}
}

func (r *mongoTransactionRepository) Insert(ctx context.Context, tx *models.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	if _, err := r.col.InsertOne(ctx, tx); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (r *mongoTransactionRepository) ListByAccount(ctx context.Context, accountID string, limit int64) ([]models.Transaction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.col.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Transaction
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	return out, nil
}

func (r *mongoTransactionRepository) SumByEntity(ctx context.Context, entityID string, reasons []models.TransactionReason) (int64, error) {
	return r.sum(ctx, bson.M{
		"entity_id": entityID,
		"reason":    bson.M{"$in": reasons},
	})
}

func (r *mongoTransactionRepository) SumByAccount(ctx context.Context, accountID string) (int64, error) {
	return r.sum(ctx, bson.M{"account_id": accountID})
}

func (r *mongoTransactionRepository) sum(ctx context.Context, match bson.M) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$amount_cents"},
		}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode transaction sum: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}
