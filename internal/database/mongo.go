package database

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"orderhub/internal/models"
)

const ordersCollection = "orders"

// MongoStore is the document-store order gateway. Every mutation is a single
// driver call; status changes use findOneAndUpdate with a status precondition.
type MongoStore struct {
	client *mongo.Client
	orders *mongo.Collection
}

// OpenMongo connects to uri and returns a gateway on database/orders
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	coll := client.Database(database).Collection(ordersCollection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "orderId", Value: 1}}},
		{Keys: bson.D{{Key: "customerPhone", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}

	return &MongoStore{client: client, orders: coll}, nil
}

// FindByID returns the first order carrying orderID
func (s *MongoStore) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	var o models.Order
	err := s.orders.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order %q: %w", orderID, err)
	}
	return &o, nil
}

// Insert stores a new order document. Duplicate order ids are accepted.
func (s *MongoStore) Insert(ctx context.Context, o *models.Order) error {
	if _, err := s.orders.InsertOne(ctx, o); err != nil {
		return fmt.Errorf("insert order %q: %w", o.OrderID, err)
	}
	return nil
}

// FindByPhone returns a customer's newest orders first
func (s *MongoStore) FindByPhone(ctx context.Context, phone string, limit int) ([]*models.Order, error) {
	return s.find(ctx, bson.M{"customerPhone": phone}, limit)
}

// FindAll returns the newest orders, optionally restricted to one status
func (s *MongoStore) FindAll(ctx context.Context, status models.Status, limit int) ([]*models.Order, error) {
	return s.find(ctx, statusFilter(status), limit)
}

func statusFilter(status models.Status) bson.M {
	if status == "" {
		return bson.M{}
	}
	return bson.M{"status": string(status)}
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, limit int) ([]*models.Order, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders := make([]*models.Order, 0)
	if err := cur.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

// ConditionalUpdate sets the new status and pushes the history entry in one
// findOneAndUpdate guarded by {status: expected}, returning the post-image.
func (s *MongoStore) ConditionalUpdate(ctx context.Context, orderID string, expected models.Status, upd models.StatusUpdate) (*models.Order, error) {
	set := bson.M{
		"status":    string(upd.Status),
		"updatedAt": upd.UpdatedAt,
	}
	if upd.EstimatedTime != nil {
		set["estimatedTime"] = *upd.EstimatedTime
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"statusHistory": upd.Entry},
	}
	filter := bson.M{"orderId": orderID, "status": string(expected)}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var o models.Order
	err := s.orders.FindOneAndUpdate(ctx, filter, update, opts).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// distinguish a missing order from a lost race
		if _, findErr := s.FindByID(ctx, orderID); findErr != nil {
			return nil, findErr
		}
		return nil, models.ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update order %q: %w", orderID, err)
	}
	return &o, nil
}

// Count returns the number of orders matching f
func (s *MongoStore) Count(ctx context.Context, f models.CountFilter) (int64, error) {
	filter := statusFilter(f.Status)
	if !f.CreatedSince.IsZero() {
		filter["createdAt"] = bson.M{"$gte": f.CreatedSince}
	}
	n, err := s.orders.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
