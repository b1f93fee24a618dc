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

// taskDocument はtasksコレクションのドキュメント表現。
type taskDocument struct {
	ID          string     `bson:"_id"`
	Title       string     `bson:"title"`
	Description string     `bson:"description"`
	Status      string     `bson:"status"`
	Priority    string     `bson:"priority"`
	DueDate     *time.Time `bson:"dueDate"`
	HasDueDate  bool       `bson:"hasDueDate"`
	CreatedBy   string     `bson:"createdBy"`
	AssignedTo  string     `bson:"assignedTo"`
	Documents   []string   `bson:"documents"`
	Version     int        `bson:"version"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
}

func newTaskDocument(t *model.Task) taskDocument {
	return taskDocument{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		HasDueDate:  t.DueDate != nil,
		CreatedBy:   t.CreatedBy,
		AssignedTo:  t.AssignedTo,
		Documents:   documentsOrEmpty(t.Documents),
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (d taskDocument) toModel() model.Task {
	return model.Task{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Status:      model.TaskStatus(d.Status),
		Priority:    model.TaskPriority(d.Priority),
		DueDate:     d.DueDate,
		CreatedBy:   d.CreatedBy,
		AssignedTo:  d.AssignedTo,
		Documents:   documentsOrEmpty(d.Documents),
		Version:     d.Version,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoTaskRepo はMongoDBを使用したタスクリポジトリ。
type MongoTaskRepo struct {
	tasks *mongo.Collection
	users *mongo.Collection
}

// NewMongoTaskRepo はMongoTaskRepoを生成する。
func NewMongoTaskRepo(db *mongo.Database) *MongoTaskRepo {
	return &MongoTaskRepo{
		tasks: db.Collection(tasksCollection),
		users: db.Collection(usersCollection),
	}
}

// Create はタスクを作成する。
func (r *MongoTaskRepo) Create(ctx context.Context, task *model.Task) error {
	if _, err := r.tasks.InsertOne(ctx, newTaskDocument(task)); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// FindByID は指定IDのタスクを作成者・担当者付きで取得する。見つからない場合はnilを返す。
func (r *MongoTaskRepo) FindByID(ctx context.Context, id string) (*model.TaskWithUsers, error) {
	var doc taskDocument
	err := r.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task by ID: %w", err)
	}

	expanded, err := r.expandUsers(ctx, []taskDocument{doc})
	if err != nil {
		return nil, err
	}
	return &expanded[0], nil
}

// List は検索条件・ソート・ページ窓に従ってタスクを取得する。
func (r *MongoTaskRepo) List(ctx context.Context, query model.TaskQuery) ([]model.TaskWithUsers, error) {
	opts := options.Find().
		SetSort(buildTaskSort(query.SortBy, query.Order)).
		SetSkip(int64(query.Offset())).
		SetLimit(int64(query.Limit))

	cur, err := r.tasks.Find(ctx, buildTaskFilter(query.Filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	var docs []taskDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return r.expandUsers(ctx, docs)
}

// Count はページ窓を適用せずに検索条件に一致する件数を返す。
func (r *MongoTaskRepo) Count(ctx context.Context, filter model.TaskFilter) (int, error) {
	n, err := r.tasks.CountDocuments(ctx, buildTaskFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return int(n), nil
}

// Update はタスクを上書きし、Versionを1つ進める。
func (r *MongoTaskRepo) Update(ctx context.Context, task *model.Task, expectedVersion int) error {
	result, err := r.tasks.UpdateOne(ctx,
		bson.M{"_id": task.ID, "version": expectedVersion},
		bson.M{
			"$set": bson.M{
				"title":       task.Title,
				"description": task.Description,
				"status":      string(task.Status),
				"priority":    string(task.Priority),
				"dueDate":     task.DueDate,
				"hasDueDate":  task.DueDate != nil,
				"assignedTo":  task.AssignedTo,
				"documents":   documentsOrEmpty(task.Documents),
				"updatedAt":   task.UpdatedAt,
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if result.MatchedCount == 0 {
		n, err := r.tasks.CountDocuments(ctx, bson.M{"_id": task.ID})
		if err != nil {
			return fmt.Errorf("failed to check task existence: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	task.Version = expectedVersion + 1
	return nil
}

// Delete は指定IDのタスクを削除する。
func (r *MongoTaskRepo) Delete(ctx context.Context, id string) error {
	result, err := r.tasks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocumentPaths は全タスクが参照している書類パスを返す。
func (r *MongoTaskRepo) ListDocumentPaths(ctx context.Context) ([]string, error) {
	values, err := r.tasks.Distinct(ctx, "documents", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list document paths: %w", err)
	}
	paths := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			paths = append(paths, s)
		}
	}
	return paths, nil
}

// expandUsers はタスクの作成者・担当者のメールアドレスをusersコレクションから解決する。
func (r *MongoTaskRepo) expandUsers(ctx context.Context, docs []taskDocument) ([]model.TaskWithUsers, error) {
	result := make([]model.TaskWithUsers, len(docs))
	if len(docs) == 0 {
		return result, nil
	}

	idSet := make(map[string]struct{})
	for _, d := range docs {
		idSet[d.CreatedBy] = struct{}{}
		idSet[d.AssignedTo] = struct{}{}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	cur, err := r.users.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"email": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve task users: %w", err)
	}
	var users []userDocument
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode task users: %w", err)
	}
	emails := make(map[string]string, len(users))
	for _, u := range users {
		emails[u.ID] = u.Email
	}

	for i, d := range docs {
		result[i] = model.TaskWithUsers{Task: d.toModel()}
		if email, ok := emails[d.CreatedBy]; ok {
			result[i].Creator = &model.UserRef{ID: d.CreatedBy, Email: email}
		}
		if email, ok := emails[d.AssignedTo]; ok {
			result[i].Assignee = &model.UserRef{ID: d.AssignedTo, Email: email}
		}
	}
	return result, nil
}

// buildTaskFilter は検索条件からMongoDBのフィルタを構築する。
func buildTaskFilter(filter model.TaskFilter) bson.M {
	f := bson.M{}
	if filter.AssignedTo != "" {
		f["assignedTo"] = filter.AssignedTo
	}
	if filter.Status != "" {
		f["status"] = string(filter.Status)
	}
	if filter.Priority != "" {
		f["priority"] = string(filter.Priority)
	}
	if filter.DueBefore != nil {
		f["dueDate"] = bson.M{"$lte": *filter.DueBefore}
	}
	return f
}

// buildTaskSort はソート指定を構築する。APIのフィールド名はドキュメントのキーと一致する。
func buildTaskSort(field model.TaskSortField, order model.SortOrder) bson.D {
	if _, ok := sortColumns[field]; !ok {
		field = model.TaskSortCreatedAt
	}
	dir := -1
	if order == model.SortAsc {
		dir = 1
	}
	// MongoDBはnullを最小値として並べるため、hasDueDateを先に評価して
	// 期限なしを昇順では末尾、降順では先頭に置く（PostgreSQLと同じ順序）
	if field == model.TaskSortDueDate {
		return bson.D{{Key: "hasDueDate", Value: -dir}, {Key: "dueDate", Value: dir}, {Key: "_id", Value: 1}}
	}
	return bson.D{{Key: string(field), Value: dir}, {Key: "_id", Value: 1}}
}

// compile-time interface check
var _ TaskRepository = (*MongoTaskRepo)(nil)
