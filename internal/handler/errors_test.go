package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/taskhub/internal/model"
)

func newRecorder() *httptest.ResponseRecorder { return httptest.NewRecorder() }

func newRequest(method, path string) *http.Request { return httptest.NewRequest(method, path, nil) }

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewUnauthorizedError("x"), http.StatusUnauthorized},
		{model.NewForbiddenError("x"), http.StatusForbidden},
		{model.NewTaskNotFoundError(), http.StatusNotFound},
		{model.NewUserNotFoundError(), http.StatusNotFound},
		{model.NewValidationError("x"), http.StatusBadRequest},
		{model.NewEmailInUseError(), http.StatusBadRequest},
		{model.NewInvalidCredentialsError(), http.StatusBadRequest},
		{model.NewInvalidUploadError("x"), http.StatusBadRequest},
		{model.NewInvalidQueryError("x"), http.StatusBadRequest},
		{model.NewVersionConflictError(), http.StatusConflict},
		{model.NewInternalError(), http.StatusInternalServerError},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandleServiceError_WrappedAPIError(t *testing.T) {
	w := newRecorder()
	handleServiceError(w, fmt.Errorf("context: %w", model.NewTaskNotFoundError()))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if body := decodeError(t, w); body.Error != "Task not found" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestHandleServiceError_UnknownErrorIsGeneric500(t *testing.T) {
	w := newRecorder()
	handleServiceError(w, errors.New("pq: connection reset by peer"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	body := decodeError(t, w)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q", body.Code)
	}
	if body.Error == "pq: connection reset by peer" {
		t.Error("internal details must not leak")
	}
}

func TestOptionalString_DistinguishesNullAndAbsent(t *testing.T) {
	var req taskJSONRequest
	if err := decodeJSONBody(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"dueDate":null,"title":"x"}`)), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !req.DueDate.Set || req.DueDate.Value != "" {
		t.Errorf("dueDate = %+v, want set and empty", req.DueDate)
	}
	if req.Description.Set {
		t.Error("absent description should not be set")
	}
	if p := req.Title.ptr(); p == nil || *p != "x" {
		t.Errorf("title ptr = %v", p)
	}
}
