package repository

import (
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hitoshi/taskhub/internal/model"
)

func TestMongoTaskRepo_ImplementsInterface(t *testing.T) {
	var _ TaskRepository = (*MongoTaskRepo)(nil)
}

func TestBuildTaskFilter_ScopesAndNarrows(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f := buildTaskFilter(model.TaskFilter{
		AssignedTo: "user-1",
		Status:     model.TaskStatusInProgress,
		Priority:   model.TaskPriorityLow,
		DueBefore:  &due,
	})

	if f["assignedTo"] != "user-1" {
		t.Errorf("assignedTo = %v, want user-1", f["assignedTo"])
	}
	if f["status"] != "in-progress" {
		t.Errorf("status = %v, want in-progress", f["status"])
	}
	if f["priority"] != "low" {
		t.Errorf("priority = %v, want low", f["priority"])
	}
	lte, ok := f["dueDate"].(bson.M)
	if !ok {
		t.Fatalf("dueDate = %#v, want $lte condition", f["dueDate"])
	}
	if got, ok := lte["$lte"].(time.Time); !ok || !got.Equal(due) {
		t.Errorf("dueDate.$lte = %v, want %v", lte["$lte"], due)
	}
}

func TestBuildTaskFilter_AdminHasNoIdentityRestriction(t *testing.T) {
	f := buildTaskFilter(model.TaskFilter{})
	if len(f) != 0 {
		t.Errorf("filter = %v, want empty", f)
	}
}

func TestBuildTaskSort(t *testing.T) {
	got := buildTaskSort(model.TaskSortPriority, model.SortAsc)
	want := bson.D{{Key: "priority", Value: 1}, {Key: "_id", Value: 1}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("buildTaskSort = %v, want %v", got, want)
	}

	got = buildTaskSort("unknown", model.SortDesc)
	if got[0].Key != "createdAt" || got[0].Value != -1 {
		t.Errorf("unknown field sort = %v, want createdAt desc", got)
	}
}

func TestBuildTaskSort_DueDatePlacesMissingLikePostgres(t *testing.T) {
	asc := buildTaskSort(model.TaskSortDueDate, model.SortAsc)
	wantAsc := bson.D{{Key: "hasDueDate", Value: -1}, {Key: "dueDate", Value: 1}, {Key: "_id", Value: 1}}
	if !reflect.DeepEqual(asc, wantAsc) {
		t.Errorf("asc = %v, want %v", asc, wantAsc)
	}

	desc := buildTaskSort(model.TaskSortDueDate, model.SortDesc)
	wantDesc := bson.D{{Key: "hasDueDate", Value: 1}, {Key: "dueDate", Value: -1}, {Key: "_id", Value: 1}}
	if !reflect.DeepEqual(desc, wantDesc) {
		t.Errorf("desc = %v, want %v", desc, wantDesc)
	}
}

func TestNewTaskDocument_HasDueDate(t *testing.T) {
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if !newTaskDocument(&model.Task{DueDate: &due}).HasDueDate {
		t.Error("HasDueDate should be true when a due date is set")
	}
	if newTaskDocument(&model.Task{}).HasDueDate {
		t.Error("HasDueDate should be false without a due date")
	}
}

func TestTaskDocument_RoundTripPreservesFields(t *testing.T) {
	due := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	task := &model.Task{
		ID:         "task-1",
		Title:      "Write report",
		Status:     model.TaskStatusTodo,
		Priority:   model.TaskPriorityHigh,
		DueDate:    &due,
		CreatedBy:  "admin-1",
		AssignedTo: "user-1",
		Version:    3,
	}

	got := newTaskDocument(task).toModel()
	if got.Documents == nil {
		t.Error("documents should never be nil")
	}
	if got.ID != task.ID || got.AssignedTo != task.AssignedTo || got.Version != 3 {
		t.Errorf("round trip = %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}
}
