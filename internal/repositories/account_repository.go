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

// AccountRepository persists accounts. Balance mutations are
// conditional single-document updates so concurrent spenders can never
// drive a balance negative.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	Get(ctx context.Context, id string) (*models.Account, error)

	// DebitIfSufficient atomically subtracts amountCents when the
	// balance covers it, returning the updated account. Returns
	// models.ErrInsufficientFunds when it doesn't,
	// models.ErrAccountNotFound when the account is missing.
	DebitIfSufficient(ctx context.Context, id string, amountCents int64) (*models.Account, error)

	// Credit atomically adds amountCents and returns the updated
	// account.
	Credit(ctx context.Context, id string, amountCents int64) (*models.Account, error)

	// IncrementMonthly bumps the verification counter for monthKey,
	// lazily resetting it when the stored month differs, and returns
	// the updated account.
	IncrementMonthly(ctx context.Context, id, monthKey string) (*models.Account, error)
}

type mongoAccountRepository struct {
	col *mongo.Collection
}

// NewAccountRepository creates a Mongo-backed account repository.
func NewAccountRepository(db *mongo.Database, collection string) AccountRepository {
	return &mongoAccountRepository{col: db.Collection(collection)}
}

func (r *mongoAccountRepository) Create(ctx context.Context, account *models.Account) error {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.MonthKey == "" {
		account.MonthKey = models.MonthKeyFor(now)
	}

	if _, err := r.col.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("account %s already exists", account.ID)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) Get(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &account, nil
}

func (r *mongoAccountRepository) DebitIfSufficient(ctx context.Context, id string, amountCents int64) (*models.Account, error) {
	filter := bson.M{
		"_id":           id,
		"balance_cents": bson.M{"$gte": amountCents},
	}
	update := bson.M{
		"$inc": bson.M{"balance_cents": -amountCents},
		"$set": bson.M{"updated_at": time.Now()},
	}

	var account models.Account
	err := r.col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&account)
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to debit account: %w", err)
	}

	// The filter failed either because the account doesn't exist or
	// because the balance didn't cover the amount. Distinguish them.
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, models.ErrInsufficientFunds
}

func (r *mongoAccountRepository) Credit(ctx context.Context, id string, amountCents int64) (*models.Account, error) {
	update := bson.M{
		"$inc": bson.M{"balance_cents": amountCents},
		"$set": bson.M{"updated_at": time.Now()},
	}

	var account models.Account
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}
	return &account, nil
}

func (r *mongoAccountRepository) IncrementMonthly(ctx context.Context, id, monthKey string) (*models.Account, error) {
	// Lazy calendar-month reset: if the stored key is stale, reset the
	// counter before incrementing. Guarded on the stale key so two
	// concurrent resets collapse into one.
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "month_key": bson.M{"$ne": monthKey}},
		bson.M{"$set": bson.M{"month_key": monthKey, "monthly_verifications": 0}})
	if err != nil {
		return nil, fmt.Errorf("failed to reset monthly counter: %w", err)
	}

	var account models.Account
	err = r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "month_key": monthKey},
		bson.M{
			"$inc": bson.M{"monthly_verifications": 1},
			"$set": bson.M{"updated_at": time.Now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to increment monthly counter: %w", err)
	}
	return &account, nil
}
