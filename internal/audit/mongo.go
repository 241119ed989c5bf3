package audit

import (
	"context"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/realmate/conversations/internal/models"
)

// MongoSink stores entries in a MongoDB collection, one document per entry.
type MongoSink struct {
	collection *mongo.Collection
}

func NewMongoSink(collection *mongo.Collection) *MongoSink {
	return &MongoSink{collection: collection}
}

func (m *MongoSink) Append(ctx context.Context, entry *models.WebhookLog) error {
	if _, err := m.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("mongo: insert webhook log: %w", err)
	}
	return nil
}

func (m *MongoSink) List(ctx context.Context, filter Filter) ([]models.WebhookLog, error) {
	filter = filter.Normalize()

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(filter.Limit))

	cursor, err := m.collection.Find(ctx, mongoFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: find webhook logs: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]models.WebhookLog, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("mongo: decode webhook logs: %w", err)
	}
	return entries, nil
}

func mongoFilter(filter Filter) bson.M {
	query := bson.M{}
	if filter.Event != "" {
		query["event"] = filter.Event
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.ConversationID != "" {
		query["conversation_id"] = filter.ConversationID
	}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"event": pattern},
			bson.M{"message": pattern},
			bson.M{"conversation_id": pattern},
		}
	}
	return query
}
