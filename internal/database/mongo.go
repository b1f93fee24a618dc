package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// OpenMongo はMongoDBクライアントを生成する。
// mongo.Connectは接続を遅延して確立するため、疎通確認にはPingを使用すること。
func OpenMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongodb: %w", err)
	}
	return client, nil
}

// MongoHealthChecker は*mongo.ClientをPingContextで疎通確認できるようにするアダプタ。
type MongoHealthChecker struct {
	Client *mongo.Client
}

// PingContext はプライマリへの疎通を確認する。
func (h MongoHealthChecker) PingContext(ctx context.Context) error {
	return h.Client.Ping(ctx, readpref.Primary())
}

// EnsureMongoIndexes はusers/tasksコレクションのインデックスを作成する。
// PostgreSQLのマイグレーションに相当し、冪等に実行できる。
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
	}); err != nil {
		return fmt.Errorf("failed to create users email index: %w", err)
	}

	if _, err := db.Collection("tasks").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdBy", Value: 1}}},
		{Keys: bson.D{{Key: "hasDueDate", Value: 1}, {Key: "dueDate", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create tasks indexes: %w", err)
	}
	return nil
}
