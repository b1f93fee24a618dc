package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/taskhub/internal/model"
)

// コレクション名
const (
	usersCollection = "users"
	tasksCollection = "tasks"
)

// userDocument はusersコレクションのドキュメント表現。
type userDocument struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d userDocument) toModel() model.User {
	return model.User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         model.Role(d.Role),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
type MongoUserRepo struct {
	users *mongo.Collection
	tasks *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{
		users: db.Collection(usersCollection),
		tasks: db.Collection(tasksCollection),
	}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDocument
	err := r.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	user := doc.toModel()
	return &user, nil
}

// Create はユーザーを作成する。一意性はemailのユニークインデックスで保証する。
func (r *MongoUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.users.InsertOne(ctx, userDocument{
		ID:           user.ID,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update はメールアドレス・ロール・パスワードハッシュを更新する。
func (r *MongoUserRepo) Update(ctx context.Context, user *model.User) error {
	result, err := r.users.UpdateOne(ctx,
		bson.M{"_id": user.ID},
		bson.M{"$set": bson.M{
			"email":     user.Email,
			"password":  user.PasswordHash,
			"role":      string(user.Role),
			"updatedAt": user.UpdatedAt,
		}},
	)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除し、参照しているタスクも削除する。
// MongoDBには外部キーがなく単体構成ではトランザクションも使えないため、
// タスクを先に削除してからユーザーを削除する。途中で失敗しても再実行すれば削除が完了する。
func (r *MongoUserRepo) DeleteByID(ctx context.Context, id string) error {
	return userCascade{
		userExists: func(ctx context.Context) (bool, error) {
			n, err := r.users.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
			return n > 0, err
		},
		deleteTasks: func(ctx context.Context) error {
			_, err := r.tasks.DeleteMany(ctx, bson.M{"$or": bson.A{
				bson.M{"createdBy": id},
				bson.M{"assignedTo": id},
			}})
			return err
		},
		deleteUser: func(ctx context.Context) (bool, error) {
			result, err := r.users.DeleteOne(ctx, bson.M{"_id": id})
			if err != nil {
				return false, err
			}
			return result.DeletedCount > 0, nil
		},
	}.run(ctx)
}

// userCascade はユーザー削除の各ステップ。
type userCascade struct {
	userExists  func(ctx context.Context) (bool, error)
	deleteTasks func(ctx context.Context) error
	deleteUser  func(ctx context.Context) (bool, error)
}

// run はユーザーの存在確認、タスク削除、ユーザー削除の順に実行する。
// ユーザーが存在しない場合はタスクに触れずにErrNotFoundを返す。
func (c userCascade) run(ctx context.Context) error {
	exists, err := c.userExists(ctx)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	if err := c.deleteTasks(ctx); err != nil {
		return fmt.Errorf("failed to delete tasks of user: %w", err)
	}
	deleted, err := c.deleteUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// List は作成日時降順でユーザーをページ取得する。
func (r *MongoUserRepo) List(ctx context.Context, offset, limit int) ([]model.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return r.find(ctx, opts)
}

// ListAll は全ユーザーを作成日時降順で返す。
func (r *MongoUserRepo) ListAll(ctx context.Context) ([]model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	return r.find(ctx, opts)
}

func (r *MongoUserRepo) find(ctx context.Context, opts *options.FindOptions) ([]model.User, error) {
	cur, err := r.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	users := make([]model.User, len(docs))
	for i, d := range docs {
		users[i] = d.toModel()
	}
	return users, nil
}

// Count はユーザー総数を返す。
func (r *MongoUserRepo) Count(ctx context.Context) (int, error) {
	n, err := r.users.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return int(n), nil
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
