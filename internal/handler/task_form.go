package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/taskhub/internal/model"
	"github.com/hitoshi/taskhub/internal/task"
	"github.com/hitoshi/taskhub/internal/upload"
)

// multipartMemory はParseMultipartFormがメモリに保持する上限。超過分は一時ファイルになる。
const multipartMemory = 8 << 20

// optionalString はJSONでキーの有無とnullを区別するための文字列。
// nullは空文字として扱い、値の消去を意味する。
type optionalString struct {
	Set   bool
	Value string
}

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (o *optionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Value = ""
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

func (o optionalString) ptr() *string {
	if !o.Set {
		return nil
	}
	v := o.Value
	return &v
}

// taskJSONRequest はJSONで送られたタスク作成・更新のボディ。
type taskJSONRequest struct {
	Title           optionalString `json:"title"`
	Description     optionalString `json:"description"`
	Status          optionalString `json:"status"`
	Priority        optionalString `json:"priority"`
	DueDate         optionalString `json:"dueDate"`
	AssignedTo      optionalString `json:"assignedTo"`
	RemoveDocuments []string       `json:"removeDocuments"`
	Version         *int           `json:"version"`
}

// taskForm はmultipartまたはJSONから読み取ったタスクの入力。
type taskForm struct {
	fields    taskJSONRequest
	files     []*multipart.FileHeader
	multipart *multipart.Form
}

// cleanup はmultipartの一時ファイルを削除する。
func (f *taskForm) cleanup() {
	if f.multipart != nil {
		f.multipart.RemoveAll()
	}
}

// parseTaskForm はContent-Typeに応じてリクエストからタスク入力を読み取る。
// multipartの場合、書類は upload.FieldName フィールドから取り出す。
func parseTaskForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (*taskForm, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType != "multipart/form-data" {
		form := &taskForm{}
		if r.ContentLength == 0 {
			return form, nil
		}
		if err := decodeJSONBody(r, &form.fields); err != nil {
			return nil, err
		}
		return form, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, model.NewInvalidUploadError("Upload is too large")
		}
		return nil, model.NewValidationError("Invalid form data")
	}

	mf := r.MultipartForm
	form := &taskForm{multipart: mf, files: mf.File[upload.FieldName]}

	for key, dst := range map[string]*optionalString{
		"title":       &form.fields.Title,
		"description": &form.fields.Description,
		"status":      &form.fields.Status,
		"priority":    &form.fields.Priority,
		"dueDate":     &form.fields.DueDate,
		"assignedTo":  &form.fields.AssignedTo,
	} {
		if vals, ok := mf.Value[key]; ok && len(vals) > 0 {
			*dst = optionalString{Set: true, Value: vals[0]}
		}
	}

	form.fields.RemoveDocuments = append(form.fields.RemoveDocuments, mf.Value["removeDocuments"]...)
	form.fields.RemoveDocuments = append(form.fields.RemoveDocuments, mf.Value["removeDocuments[]"]...)

	if vals := mf.Value["version"]; len(vals) > 0 && strings.TrimSpace(vals[0]) != "" {
		v, err := strconv.Atoi(strings.TrimSpace(vals[0]))
		if err != nil {
			form.cleanup()
			return nil, model.NewValidationError("Version must be an integer")
		}
		form.fields.Version = &v
	}

	return form, nil
}

func (f *taskForm) createInput(documents []string) task.CreateInput {
	return task.CreateInput{
		Title:       f.fields.Title.Value,
		Description: f.fields.Description.Value,
		Status:      f.fields.Status.Value,
		Priority:    f.fields.Priority.Value,
		DueDate:     f.fields.DueDate.Value,
		AssignedTo:  f.fields.AssignedTo.Value,
		Documents:   documents,
	}
}

func (f *taskForm) updateInput(documents []string) task.UpdateInput {
	return task.UpdateInput{
		Title:           f.fields.Title.ptr(),
		Description:     f.fields.Description.ptr(),
		Status:          f.fields.Status.ptr(),
		Priority:        f.fields.Priority.ptr(),
		DueDate:         f.fields.DueDate.ptr(),
		AssignedTo:      f.fields.AssignedTo.ptr(),
		Documents:       documents,
		RemoveDocuments: f.fields.RemoveDocuments,
		Version:         f.fields.Version,
	}
}
