package config

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/numvend/numvend/internal/logging"
	"github.com/numvend/numvend/internal/redisclient"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.uber.org/zap"
)

var (
	// MongoDB client
	MongoDB *mongo.Database
	// Redis client
	Redis *redisclient.Client
)

// InitMongoDB initializes the MongoDB connection
func InitMongoDB() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(AppConfig.MongoURI).
		SetMonitor(otelmongo.NewMonitor()).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		log.Fatal(err)
	}

	err = client.Ping(ctx, readpref.Primary())
	if err != nil {
		log.Fatal(err)
	}

	MongoDB = client.Database(AppConfig.MongoDatabase)

	if err := ensureIndexes(); err != nil {
		logging.Logger.Error("failed to ensure indexes on startup", zap.Error(err))
	}

	logging.Logger.Info("connected to MongoDB",
		zap.String("uri", maskMongoURI(AppConfig.MongoURI)),
		zap.String("database", AppConfig.MongoDatabase),
	)
}

// InitRedis initializes the Redis connection
func InitRedis() {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         AppConfig.RedisURI,
		Password:     AppConfig.RedisPassword,
		DB:           AppConfig.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	// Wrap with traced client
	Redis = redisclient.NewClient(redisClient)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Redis.Ping(ctx).Err(); err != nil {
		logging.Logger.Error("failed to connect to Redis",
			zap.String("uri", AppConfig.RedisURI),
			zap.Error(err))
		return
	}

	logging.Logger.Info("connected to Redis",
		zap.String("uri", AppConfig.RedisURI))
}

// maskMongoURI masks sensitive information in MongoDB URI
func maskMongoURI(uri string) string {
	idx := strings.LastIndex(uri, "@")
	if idx < 0 {
		return uri
	}
	return "mongodb://****:****@" + uri[idx+1:]
}

// ensureIndexes creates required indexes if they don't exist
func ensureIndexes() error {
	logger := zap.L().Named("database")
	logger.Info("ensuring required indexes exist")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		AppConfig.VerificationCollection: {
			{
				Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("account_id_1_created_at_-1"),
			},
			{
				// Sweep query: pending verifications past their deadline
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "deadline_at", Value: 1}},
				Options: options.Index().SetName("status_1_deadline_at_1"),
			},
		},
		AppConfig.RentalCollection: {
			{
				Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetName("account_id_1_status_1"),
			},
			{
				// Sweep query: active rentals by expiry
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}},
				Options: options.Index().SetName("status_1_expires_at_1"),
			},
		},
		AppConfig.TransactionCollection: {
			{
				Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("account_id_1_created_at_-1"),
			},
			{
				Keys:    bson.D{{Key: "entity_id", Value: 1}, {Key: "reason", Value: 1}},
				Options: options.Index().SetName("entity_id_1_reason_1"),
			},
		},
	}

	for collection, models := range indexes {
		if err := ensureCollectionIndexes(ctx, logger, collection, models); err != nil {
			return err
		}
	}

	logger.Info("all required indexes verified")
	return nil
}

// ensureCollectionIndexes creates the given indexes if they are missing
func ensureCollectionIndexes(ctx context.Context, logger *zap.Logger, collection string, wanted []mongo.IndexModel) error {
	coll := MongoDB.Collection(collection)

	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		logger.Error("failed to list indexes", zap.String("collection", collection), zap.Error(err))
		return err
	}
	defer cursor.Close(ctx)

	existing := make(map[string]bool)
	for cursor.Next(ctx) {
		var index bson.M
		if err := cursor.Decode(&index); err != nil {
			continue
		}
		if name, ok := index["name"].(string); ok {
			existing[name] = true
		}
	}

	created := 0
	for _, model := range wanted {
		name := ""
		if model.Options != nil && model.Options.Name != nil {
			name = *model.Options.Name
		}
		if existing[name] {
			continue
		}

		_, err := coll.Indexes().CreateOne(ctx, model)
		if err != nil {
			// Another instance may have created it concurrently
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			logger.Error("failed to create index",
				zap.String("collection", collection),
				zap.String("index", name),
				zap.Error(err))
			return err
		}
		created++
	}

	if created > 0 {
		logger.Info("created collection indexes",
			zap.String("collection", collection),
			zap.Int("count", created))
	} else {
		logger.Debug("collection indexes already exist",
			zap.String("collection", collection))
	}
	return nil
}
