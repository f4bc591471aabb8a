package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/filestore"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

type exportRows struct {
	mu   sync.Mutex
	rows map[string]domain.ExportRequest
}

func newExportRows() *exportRows {
	return &exportRows{rows: make(map[string]domain.ExportRequest)}
}

func (r *exportRows) Create(_ context.Context, req domain.ExportRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == req.UserID && row.IsOpen() {
			return repository.ErrConflict
		}
	}
	r.rows[req.ID] = req
	return nil
}

func (r *exportRows) GetByID(_ context.Context, userID, id string) (*domain.ExportRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r *exportRows) GetByToken(_ context.Context, token string) (*domain.ExportRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.DownloadToken != nil && *row.DownloadToken == token {
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *exportRows) FindOpenByUser(_ context.Context, userID string) (*domain.ExportRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == userID && row.IsOpen() {
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *exportRows) ClaimNext(context.Context, time.Time, time.Time) (*domain.ExportRequest, error) {
	return nil, repository.ErrNotFound
}

func (r *exportRows) Heartbeat(context.Context, string, int, time.Time) error { return nil }

func (r *exportRows) Finish(_ context.Context, req domain.ExportRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[req.ID] = req
	return nil
}

func (r *exportRows) RegisterDownload(_ context.Context, token string, at time.Time) (*domain.ExportRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.DownloadToken == nil || *row.DownloadToken != token {
			continue
		}
		if !row.DownloadAvailable(at) {
			return nil, repository.ErrNotFound
		}
		row.DownloadCount++
		r.rows[id] = row
		return &row, nil
	}
	return nil, repository.ErrNotFound
}

type auditRows struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *auditRows) Insert(_ context.Context, event domain.AuditEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return true, nil
}

func (r *auditRows) List(context.Context, domain.AuditFilter) ([]domain.AuditEvent, error) {
	return nil, nil
}

func (r *auditRows) CountByType(context.Context, string, domain.AuditEventType, time.Time) (int, error) {
	return 0, nil
}

func (r *auditRows) Resolve(context.Context, string, string, string) error { return nil }

func (r *auditRows) DeleteExpired(context.Context, time.Time, int, time.Time) (int64, error) {
	return 0, nil
}

type staticToken string

func (t staticToken) Generate() (string, error) { return string(t), nil }
func (t staticToken) Hash(token string) string { return token }

// asUser stands in for the auth middleware.
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func newExportRouter(t *testing.T, rows *exportRows) (*gin.Engine, port.FileStore) {
	t.Helper()
	files, err := filestore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	audit := usecase.NewAuditService(&auditRows{}, nil, nil)
	svc := usecase.NewExportService(config.ExportSettings{}, rows, nil, audit, files, staticToken("tok-1"), nil)
	h := NewExportHandler(svc)

	r := newTestRouter()
	h.RegisterDownload(r)
	h.RegisterRoutes(r.Group("/api/v1/users", asUser("user-1")))
	return r, files
}

func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body.Message
}

func TestExportRequestCreatedThenPending(t *testing.T) {
	r, _ := newExportRouter(t, newExportRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/users/export-data", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created ExportResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if created.Message == "" || created.Status != domain.ExportPending {
		t.Fatalf("unexpected export response: %+v", created)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/users/export-data", strings.NewReader(`{"format":"csv"}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if body := decodeErrorBody(t, w); body.Error != "export_pending" {
		t.Fatalf("expected export_pending, got %q", body.Error)
	}
}

func TestExportDownloadLimitedToThree(t *testing.T) {
	rows := newExportRows()
	r, files := newExportRouter(t, rows)

	content := []byte(`{"user_profile":{"id":"user-1"}}`)
	location, err := files.Put(context.Background(), "exports/user-1/exp-1.json", content, "application/json")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	token := "tok-1"
	expires := time.Now().Add(time.Hour)
	rows.rows["exp-1"] = domain.ExportRequest{
		ID:            "exp-1",
		UserID:        "user-1",
		Format:        domain.ExportFormatJSON,
		Status:        domain.ExportCompleted,
		FilePath:      location,
		FileSizeBytes: int64(len(content)),
		DownloadToken: &token,
		ExpiresAt:     &expires,
		MaxDownloads:  3,
	}

	for i := 1; i <= 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download-data/tok-1", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("download %d: expected 200, got %d", i, w.Code)
		}
		if !bytes.Equal(w.Body.Bytes(), content) {
			t.Fatalf("download %d returned %q", i, w.Body.String())
		}
		if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "tanvi_data_export_user-1.json") {
			t.Fatalf("unexpected content disposition %q", got)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download-data/tok-1", nil))
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410 on the fourth download, got %d", w.Code)
	}
	if body := decodeErrorBody(t, w); body.Error != "download_unavailable" {
		t.Fatalf("expected download_unavailable, got %q", body.Error)
	}
	if got := rows.rows["exp-1"].DownloadCount; got != 3 {
		t.Fatalf("expected download count 3, got %d", got)
	}
}

// postRows implements only what the engagement path touches.
type postRows struct {
	port.PostRepository
	mu    sync.Mutex
	posts map[string]domain.StylePost
}

func (r *postRows) Get(_ context.Context, id string) (*domain.StylePost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *postRows) AdjustCounter(_ context.Context, postID string, counter domain.Counter, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.posts[postID]
	switch counter {
	case domain.CounterLikes:
		p.LikesCount += delta
	case domain.CounterSaves:
		p.SavesCount += delta
	}
	r.posts[postID] = p
	return nil
}

type likeRows struct {
	port.EngagementRepository
	mu    sync.Mutex
	likes map[string]bool
}

func (r *likeRows) AddLike(_ context.Context, userID, postID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + "/" + postID
	if r.likes[key] {
		return domain.NewError(domain.KindConflict, "already_liked", "post is already liked")
	}
	r.likes[key] = true
	return nil
}

type notificationRows struct {
	port.NotificationRepository
	created []domain.Notification
}

func (r *notificationRows) Create(_ context.Context, n domain.Notification) error {
	r.created = append(r.created, n)
	return nil
}

func TestLikeTwiceKeepsSingleLike(t *testing.T) {
	posts := &postRows{posts: map[string]domain.StylePost{
		"post-1": {ID: "post-1", UserID: "author-1", Caption: "linen week", Visibility: domain.PostPublic},
	}}
	notifications := &notificationRows{}
	svc := usecase.NewSocialService(posts, &likeRows{likes: map[string]bool{}}, notifications, nil, nil, config.ReconciliationSettings{}, nil)

	r := newTestRouter()
	NewSocialHandler(svc).RegisterRoutes(r.Group("/api/v1", asUser("user-1")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/posts/post-1/like", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var liked PostResponse
	if err := json.Unmarshal(w.Body.Bytes(), &liked); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if liked.LikesCount != 1 || liked.Message != "post liked" {
		t.Fatalf("unexpected like response: %+v", liked)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/posts/post-1/like", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on the second like, got %d", w.Code)
	}
	if body := decodeErrorBody(t, w); body.Error != "already_liked" {
		t.Fatalf("expected already_liked, got %q", body.Error)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts/post-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var after PostResponse
	if err := json.Unmarshal(w.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if after.LikesCount != 1 {
		t.Fatalf("expected likes_count to stay 1, got %d", after.LikesCount)
	}
	if len(notifications.created) != 1 {
		t.Fatalf("expected one like notification, got %d", len(notifications.created))
	}
}

func TestDeletePostRespondsWithMessage(t *testing.T) {
	posts := &deletablePosts{postRows: postRows{posts: map[string]domain.StylePost{
		"post-1": {ID: "post-1", UserID: "user-1", Caption: "linen week", Visibility: domain.PostPublic},
	}}}
	svc := usecase.NewSocialService(posts, nil, nil, nil, nil, config.ReconciliationSettings{}, nil)

	r := newTestRouter()
	NewSocialHandler(svc).RegisterRoutes(r.Group("/api/v1", asUser("user-1")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/posts/post-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if msg := decodeMessage(t, w); msg != "post deleted" {
		t.Fatalf("expected message, got %q", msg)
	}
}

type deletablePosts struct {
	postRows
}

func (r *deletablePosts) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok || p.UserID != userID {
		return repository.ErrNotFound
	}
	delete(r.posts, id)
	return nil
}
