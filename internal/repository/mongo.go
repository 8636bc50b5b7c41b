package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/brewnet/backend/internal/domain"
)

const (
	notificationsCollection = "notifications"
	usersCollection         = "users"
	connectionsCollection   = "connections"
)

// MongoStore implements Store on MongoDB, the document store the web client
// has always been backed by.
type MongoStore struct {
	client        *mongo.Client
	notifications *mongo.Collection
	users         *mongo.Collection
	connections   *mongo.Collection
}

// NewMongoStore connects, pings the primary and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string, timeout time.Duration) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(100).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:        client,
		notifications: db.Collection(notificationsCollection),
		users:         db.Collection(usersCollection),
		connections:   db.Collection(connectionsCollection),
	}

	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// createIndexes uses bson.D so compound key order is preserved.
func (s *MongoStore) createIndexes(ctx context.Context) error {
	notificationIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "recipientId", Value: 1},
				{Key: "read", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
	}
	if _, err := s.notifications.Indexes().CreateMany(ctx, notificationIndexes); err != nil {
		return fmt.Errorf("creating notification indexes: %w", err)
	}

	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "isOnline", Value: 1}}},
	}
	if _, err := s.users.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("creating user indexes: %w", err)
	}

	connectionIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "fromUser", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "toUser", Value: 1}, {Key: "status", Value: 1}}},
	}
	if _, err := s.connections.Indexes().CreateMany(ctx, connectionIndexes); err != nil {
		return fmt.Errorf("creating connection indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnecting from mongodb: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if _, err := s.notifications.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func (s *MongoStore) ListUnreadNotifications(ctx context.Context, recipientID string) ([]*domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.notifications.Find(ctx, bson.M{"recipientId": recipientID, "read": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("finding notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.Notification
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding notifications: %w", err)
	}
	return out, nil
}

func (s *MongoStore) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	result, err := s.notifications.UpdateOne(ctx,
		bson.M{"_id": id, "recipientId": recipientID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("updating notification: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (s *MongoStore) CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.notifications.CountDocuments(ctx, bson.M{"recipientId": recipientID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return n, nil
}

func (s *MongoStore) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	result, err := s.notifications.UpdateMany(ctx,
		bson.M{"recipientId": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("updating notifications: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) UpsertUser(ctx context.Context, id, name string) (*domain.User, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	set := bson.M{"isOnline": true, "updatedAt": now}
	setOnInsert := bson.M{"createdAt": now}
	if name != "" {
		set["name"] = name
	} else {
		setOnInsert["name"] = ""
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var user domain.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set, "$setOnInsert": setOnInsert},
		opts,
	).Decode(&user)
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	return &user, nil
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &user, nil
}

func (s *MongoStore) SetUserOffline(ctx context.Context, id string, at time.Time) error {
	result, err := s.users.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"isOnline": false, "lastSignOut": at, "updatedAt": at}},
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *MongoStore) ListOnlineUsers(ctx context.Context, excludeID string) ([]*domain.User, error) {
	filter := bson.M{"isOnline": true, "_id": bson.M{"$ne": excludeID}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("finding online users: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.User
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	return out, nil
}

func (s *MongoStore) CreateConnection(ctx context.Context, c *domain.Connection) error {
	if _, err := s.connections.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}
	return nil
}

func (s *MongoStore) FindLiveConnection(ctx context.Context, a, b string) (*domain.Connection, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"fromUser": a, "toUser": b},
			bson.M{"fromUser": b, "toUser": a},
		},
		"status": bson.M{"$in": bson.A{domain.ConnectionStatusPending, domain.ConnectionStatusAccepted}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var c domain.Connection
	if err := s.connections.FindOne(ctx, filter, opts).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, fmt.Errorf("finding connection: %w", err)
	}
	return &c, nil
}

func (s *MongoStore) UpdateConnectionStatus(ctx context.Context, id string, status domain.ConnectionStatus, at time.Time) error {
	result, err := s.connections.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updatedAt": at}},
	)
	if err != nil {
		return fmt.Errorf("updating connection: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

func (s *MongoStore) DeleteConnection(ctx context.Context, id string) error {
	result, err := s.connections.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

func (s *MongoStore) ListConnections(ctx context.Context, userID string, status domain.ConnectionStatus) ([]*domain.Connection, error) {
	filter := bson.M{
		"$or":    bson.A{bson.M{"fromUser": userID}, bson.M{"toUser": userID}},
		"status": status,
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := s.connections.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("finding connections: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.Connection
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding connections: %w", err)
	}
	return out, nil
}
