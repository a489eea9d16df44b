package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailpulse/internal/constants"
	apperrors "mailpulse/pkg/errors"
	"mailpulse/pkg/metrics"
	"mailpulse/pkg/migrations"
)

// MongoStore keeps one document per resource; the resource is the _id.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(migrations.SubscriptionsCollection)}
}

func (s *MongoStore) Load(ctx context.Context, resource string) (*Record, error) {
	start := time.Now()

	var rec Record
	err := s.collection.FindOne(ctx, bson.M{"_id": resource}).Decode(&rec)
	observeMongo("load", start, err)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrNotFound.WithDetail("resource", resource)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	normalize(&rec)
	return &rec, nil
}

func (s *MongoStore) Save(ctx context.Context, rec *Record) error {
	start := time.Now()

	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": rec.Resource},
		rec,
		options.Replace().SetUpsert(true),
	)
	observeMongo("save", start, err)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, resource string) error {
	start := time.Now()

	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": resource})
	observeMongo("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context) ([]Record, error) {
	start := time.Now()

	cursor, err := s.collection.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		observeMongo("list", start, err)
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer cursor.Close(ctx)

	var records []Record
	err = cursor.All(ctx, &records)
	observeMongo("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to decode subscriptions: %w", err)
	}

	for i := range records {
		normalize(&records[i])
	}
	return records, nil
}

func observeMongo(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		status = "error"
	}
	metrics.IncDatabaseQuery(constants.ServiceName, constants.StoreMongoDB, operation, status)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, constants.StoreMongoDB, operation, time.Since(start))
}
