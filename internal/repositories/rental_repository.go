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

// RentalRepository persists rentals. Like verifications, every
// transition is guarded on the current status: the scheduler sweep and
// a user-initiated release racing on the same rental resolve to one
// winner and one no-op.
type RentalRepository interface {
	Insert(ctx context.Context, rental *models.Rental) error
	Get(ctx context.Context, id string) (*models.Rental, error)
	ListByAccount(ctx context.Context, accountID string, limit int64) ([]models.Rental, error)

	// CountActive counts the account's active rentals, used for the
	// bulk discount threshold.
	CountActive(ctx context.Context, accountID string) (int64, error)

	// Release moves an active rental to released. Returns false when
	// the rental was not active.
	Release(ctx context.Context, id string, at time.Time) (bool, error)

	// Expire moves an active rental to expired. Returns false when the
	// rental was not active.
	Expire(ctx context.Context, id string) (bool, error)

	// Extend pushes the expiry of an active rental forward, recording
	// the extension event and its charge. Returns false when the
	// rental was not active.
	Extend(ctx context.Context, id string, newExpiry time.Time, chargeCents int64) (bool, error)

	// MarkWarned sets the warned flag on an active rental. Returns
	// false when the rental was not active or already warned.
	MarkWarned(ctx context.Context, id string) (bool, error)

	// ListDue returns active rentals whose expiry has passed.
	ListDue(ctx context.Context, now time.Time, limit int64) ([]models.Rental, error)

	// ListWarnable returns active, unwarned rentals expiring within
	// the warning window.
	ListWarnable(ctx context.Context, now time.Time, window time.Duration, limit int64) ([]models.Rental, error)
}

type mongoRentalRepository struct {
	col *mongo.Collection
}

// NewRentalRepository creates a Mongo-backed rental repository.
func NewRentalRepository(db *mongo.Database, collection string) RentalRepository {
	return &mongoRentalRepository{col: db.Collection(collection)}
}

func (r *mongoRentalRepository) Insert(ctx context.Context, rental *models.Rental) error {
	now := time.Now()
	rental.CreatedAt = now
	rental.UpdatedAt = now

	if _, err := r.col.InsertOne(ctx, rental); err != nil {
		return fmt.Errorf("failed to insert rental: %w", err)
	}
	return nil
}

func (r *mongoRentalRepository) Get(ctx context.Context, id string) (*models.Rental, error) {
	var rental models.Rental
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&rental)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrRentalNotFound
		}
		return nil, fmt.Errorf("failed to find rental: %w", err)
	}
	return &rental, nil
}

func (r *mongoRentalRepository) ListByAccount(ctx context.Context, accountID string, limit int64) ([]models.Rental, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.col.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list rentals: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Rental
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode rentals: %w", err)
	}
	return out, nil
}

func (r *mongoRentalRepository) CountActive(ctx context.Context, accountID string) (int64, error) {
	count, err := r.col.CountDocuments(ctx, bson.M{
		"account_id": accountID,
		"status":     models.RentalStatusActive,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count active rentals: %w", err)
	}
	return count, nil
}

func (r *mongoRentalRepository) Release(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.RentalStatusActive},
		bson.M{"$set": bson.M{
			"status":      models.RentalStatusReleased,
			"released_at": at,
			"updated_at":  time.Now(),
		}})
	if err != nil {
		return false, fmt.Errorf("failed to release rental: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *mongoRentalRepository) Expire(ctx context.Context, id string) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.RentalStatusActive},
		bson.M{"$set": bson.M{
			"status":     models.RentalStatusExpired,
			"updated_at": time.Now(),
		}})
	if err != nil {
		return false, fmt.Errorf("failed to expire rental: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *mongoRentalRepository) Extend(ctx context.Context, id string, newExpiry time.Time, chargeCents int64) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.RentalStatusActive},
		bson.M{
			"$set": bson.M{
				"expires_at": newExpiry,
				"last_event": models.RentalEventExtended,
				"warned":     false,
				"updated_at": time.Now(),
			},
			"$inc": bson.M{
				"extensions":           1,
				"extension_cost_cents": chargeCents,
			},
		})
	if err != nil {
		return false, fmt.Errorf("failed to extend rental: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *mongoRentalRepository) MarkWarned(ctx context.Context, id string) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.RentalStatusActive, "warned": false},
		bson.M{"$set": bson.M{"warned": true, "updated_at": time.Now()}})
	if err != nil {
		return false, fmt.Errorf("failed to mark rental warned: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *mongoRentalRepository) ListDue(ctx context.Context, now time.Time, limit int64) ([]models.Rental, error) {
	filter := bson.M{
		"status":     models.RentalStatusActive,
		"expires_at": bson.M{"$lte": now},
	}
	return r.list(ctx, filter, limit)
}

func (r *mongoRentalRepository) ListWarnable(ctx context.Context, now time.Time, window time.Duration, limit int64) ([]models.Rental, error) {
	filter := bson.M{
		"status":     models.RentalStatusActive,
		"warned":     false,
		"expires_at": bson.M{"$gt": now, "$lte": now.Add(window)},
	}
	return r.list(ctx, filter, limit)
}

func (r *mongoRentalRepository) list(ctx context.Context, filter bson.M, limit int64) ([]models.Rental, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "expires_at", Value: 1}}).
		SetLimit(limit)

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list rentals: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Rental
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode rentals: %w", err)
	}
	return out, nil
}
