package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/hitoshi/taskhub/internal/auth"
	"github.com/hitoshi/taskhub/internal/metrics"
	"github.com/hitoshi/taskhub/internal/middleware"
	"github.com/hitoshi/taskhub/internal/model"
	"github.com/hitoshi/taskhub/internal/repository/memstore"
	"github.com/hitoshi/taskhub/internal/security"
	"github.com/hitoshi/taskhub/internal/task"
	"github.com/hitoshi/taskhub/internal/upload"
	"github.com/hitoshi/taskhub/internal/user"
)

// fakePinger はPingerのテスト用実装。
type fakePinger struct {
	err error
}

func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

// testServer は実サービスとインメモリストアで組み立てたルーター。
type testServer struct {
	t         *testing.T
	router    http.Handler
	store     *memstore.Store
	uploadDir string
	tokens    *auth.TokenManager

	admin *model.User
	alice *model.User
	bob   *model.User
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithLimits(t, middleware.RateLimiterConfigPerMinute(1000, 1000))
}

func newTestServerWithLimits(t *testing.T, limits middleware.RateLimiterConfig) *testServer {
	t.Helper()

	store := memstore.New()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	dir := t.TempDir()

	docs, err := upload.NewStore(upload.Config{Dir: dir, MaxSize: 1024}, metrics.Nop{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	rl := middleware.NewRateLimiter(limits)
	t.Cleanup(rl.Stop)

	srv := &testServer{
		t:         t,
		store:     store,
		uploadDir: dir,
		tokens:    tokens,
	}
	srv.router = NewRouter(&RouterDeps{
		TokenVerifier:     tokens,
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter:       rl,
		HTTPMetrics:       metrics.Nop{},
		AuthService:       auth.NewService(store.Users(), tokens),
		TaskService:       task.NewService(store.Tasks(), store.Users(), security.NewTextSanitizer(), docs, metrics.Nop{}),
		UserService:       user.NewService(store.Users()),
		DocumentStore:     docs,
		UploadDir:         dir,
		Pinger:            fakePinger{},
	})

	srv.admin = srv.seedUser("admin@example.com", model.RoleAdmin)
	srv.alice = srv.seedUser("alice@example.com", model.RoleUser)
	srv.bob = srv.seedUser("bob@example.com", model.RoleUser)
	return srv
}

func (s *testServer) seedUser(email string, role model.Role) *model.User {
	s.t.Helper()
	u, err := auth.NewUser(email, "password123", string(role))
	if err != nil {
		s.t.Fatalf("NewUser: %v", err)
	}
	if err := s.store.Users().Create(context.Background(), u); err != nil {
		s.t.Fatalf("Create user: %v", err)
	}
	return u
}

func (s *testServer) tokenFor(u *model.User) string {
	s.t.Helper()
	token, err := s.tokens.Issue(u)
	if err != nil {
		s.t.Fatalf("Issue: %v", err)
	}
	return token
}

// do はリクエストを送信する。asがnilでなければBearerトークンを付与する。
func (s *testServer) do(as *model.User, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+s.tokenFor(as))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(as *model.User, method, path string, payload any) *httptest.ResponseRecorder {
	s.t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	return s.do(as, method, path, body, "application/json")
}

// createTask はasとしてJSONでタスクを作成する。
func (s *testServer) createTask(as *model.User, payload map[string]any) taskResponse {
	s.t.Helper()
	w := s.doJSON(as, http.MethodPost, "/api/tasks", payload)
	if w.Code != http.StatusCreated {
		s.t.Fatalf("create task: status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp taskResponse
	decodeBody(s.t, w, &resp)
	return resp
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body: %v\nraw: %s", err, w.Body.String())
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	decodeBody(t, w, &body)
	return body
}

// filePart はmultipartで送るファイル1件。
type filePart struct {
	name        string
	contentType string
	content     []byte
}

func pdfPart(name string) filePart {
	return filePart{name: name, contentType: "application/pdf", content: []byte("%PDF-1.4 " + name)}
}

// multipartBody はフィールドとファイルからmultipart/form-dataのボディを組み立てる。
func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, upload.FieldName, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		part.Write(f.content)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}
