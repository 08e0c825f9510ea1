package sink

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMongoDatabase and DefaultMongoCollection name where feeds land.
const (
	DefaultMongoDatabase   = "hirebot"
	DefaultMongoCollection = "feeds"
)

// Mongo upserts the items of batch payloads into a collection keyed by item
// key. Events without a batch payload are ignored.
type Mongo struct {
	client *mongo.Client
	feeds  *mongo.Collection
}

// NewMongo connects, pings and ensures the indexes of the feeds collection.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	m := &Mongo{
		client: client,
		feeds:  client.Database(database).Collection(DefaultMongoCollection),
	}
	m.createIndexes(ctx)
	return m, nil
}

func (m *Mongo) createIndexes(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := m.feeds.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}},
		{Keys: bson.D{{Key: "last_seen", Value: -1}}},
	})
	if err != nil {
		log.Printf("[MONGO] failed to create feed indexes: %v", err)
	}
}

// Emit upserts every item of ev.Data when it is a Batch.
func (m *Mongo) Emit(ctx context.Context, ev Event) error {
	batch, ok := ev.Data.(Batch)
	if !ok {
		return nil
	}
	items := batch.Items()
	if len(items) == 0 {
		return nil
	}

	url := ""
	if u, ok := ev.Data.(interface{ PageURL() string }); ok {
		url = u.PageURL()
	}

	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(items))
	for _, it := range items {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": it.Key}).
			SetUpdate(bson.M{
				"$set":         bson.M{"record": it.Value, "url": url, "last_seen": now},
				"$setOnInsert": bson.M{"first_seen": now},
			}).
			SetUpsert(true))
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := m.feeds.BulkWrite(writeCtx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to upsert %d feeds: %w", len(writes), err)
	}
	return nil
}

// Count returns the number of stored feeds.
func (m *Mongo) Count(ctx context.Context) (int64, error) {
	return m.feeds.CountDocuments(ctx, bson.M{})
}

// Drop removes the feeds collection.
func (m *Mongo) Drop(ctx context.Context) error {
	return m.feeds.Drop(ctx)
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
