package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/numvend/numvend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// VerificationRepository persists verifications. All status changes go
// through state-guarded updates filtered on the pending status, which
// makes transitions idempotent under races: the first writer wins and
// the loser observes a no-op.
type VerificationRepository interface {
	Insert(ctx context.Context, v *models.Verification) error
	Get(ctx context.Context, id string) (*models.Verification, error)
	ListByAccount(ctx context.Context, accountID string, limit int64) ([]models.Verification, error)

	// TransitionFromPending moves a pending verification to a terminal
	// status, optionally recording received messages. Returns false
	// when the verification was no longer pending.
	TransitionFromPending(ctx context.Context, id string, to models.VerificationStatus, messages []string) (bool, error)

	// ListExpired returns pending verifications whose deadline has
	// passed.
	ListExpired(ctx context.Context, now time.Time, limit int64) ([]models.Verification, error)
}

type mongoVerificationRepository struct {
	col *mongo.Collection
}

// NewVerificationRepository creates a Mongo-backed verification
// repository.
func NewVerificationRepository(db *mongo.Database, collection string) VerificationRepository {
	return &mongoVerificationRepository{col: db.Collection(collection)}
}

func (r *mongoVerificationRepository) Insert(ctx context.Context, v *models.Verification) error {
	now := time.Now()
	v.CreatedAt = now
	v.UpdatedAt = now

	if _, err := r.col.InsertOne(ctx, v); err != nil {
		return fmt.Errorf("failed to insert verification: %w", err)
	}
	return nil
}

func (r *mongoVerificationRepository) Get(ctx context.Context, id string) (*models.Verification, error) {
	var v models.Verification
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&v)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrVerificationNotFound
		}
		return nil, fmt.Errorf("failed to find verification: %w", err)
	}
	return &v, nil
}

func (r *mongoVerificationRepository) ListByAccount(ctx context.Context, accountID string, limit int64) ([]models.Verification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.col.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Verification
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode verifications: %w", err)
	}
	return out, nil
}

func (r *mongoVerificationRepository) TransitionFromPending(ctx context.Context, id string, to models.VerificationStatus, messages []string) (bool, error) {
	set := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	if len(messages) > 0 {
		set["messages"] = messages
	}

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.VerificationStatusPending},
		bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to transition verification: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *mongoVerificationRepository) ListExpired(ctx context.Context, now time.Time, limit int64) ([]models.Verification, error) {
	filter := bson.M{
		"status":      models.VerificationStatusPending,
		"deadline_at": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "deadline_at", Value: 1}}).
		SetLimit(limit)

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired verifications: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Verification
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode expired verifications: %w", err)
	}
	return out, nil
}
