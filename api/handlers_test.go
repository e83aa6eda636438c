package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"prism-todo/domain"
	"prism-todo/storage"
	"prism-todo/store"
)

type failingSlot struct{}

func (failingSlot) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (failingSlot) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func newTestServer(t *testing.T, slot store.Slot) (*echo.Echo, *store.Store, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	s := store.New(slot, store.WithLogger(logger))
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return New(s, logger), s, hook
}

func do(e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func createVia(t *testing.T, e *echo.Echo, title, priority string) domain.Task {
	t.Helper()
	rec := do(e, http.MethodPost, "/api/tasks", `{"title":"`+title+`","priority":"`+priority+`"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %q: status %d body %s", title, rec.Code, rec.Body.String())
	}
	return decodeBody[domain.Task](t, rec)
}

func TestCreateAndListTasks(t *testing.T) {
	e, _, _ := newTestServer(t, storage.NewMemorySlot())

	created := createVia(t, e, "Buy milk", "low")
	if created.Title != "Buy milk" || created.Priority != domain.PriorityLow || created.Done || created.ID == "" {
		t.Fatalf("unexpected task: %+v", created)
	}

	rec := do(e, http.MethodGet, "/api/tasks", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	view := decodeBody[domain.View](t, rec)
	if len(view.Tasks) != 1 || view.Tasks[0] != created {
		t.Fatalf("unexpected tasks: %+v", view.Tasks)
	}
	if view.Stats != (domain.Stats{Total: 1, Pending: 1}) || view.Empty || view.Filter != domain.FilterAll {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestCreateDefaultsPriority(t *testing.T) {
	e, _, _ := newTestServer(t, storage.NewMemorySlot())
	rec := do(e, http.MethodPost, "/api/tasks", `{"title":"Water plants"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got := decodeBody[domain.Task](t, rec); got.Priority != domain.PriorityMedium {
		t.Fatalf("expected medium priority, got %q", got.Priority)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	e, s, _ := newTestServer(t, storage.NewMemorySlot())

	cases := []struct {
		body      string
		wantCode  int
		wantField string
	}{
		{body: `{"title":"ok","priority":"low"}`, wantCode: http.StatusUnprocessableEntity, wantField: "title"},
		{body: `{"title":"   ab  "}`, wantCode: http.StatusUnprocessableEntity, wantField: "title"},
		{body: `{"title":"Valid title","priority":"urgent"}`, wantCode: http.StatusUnprocessableEntity, wantField: "priority"},
		{body: `{"title":"Valid title","owner":"me"}`, wantCode: http.StatusBadRequest},
		{body: `not json`, wantCode: http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := do(e, http.MethodPost, "/api/tasks", tc.body, nil)
		if rec.Code != tc.wantCode {
			t.Fatalf("%s: expected %d, got %d", tc.body, tc.wantCode, rec.Code)
		}
		if tc.wantField != "" {
			if resp := decodeBody[errorResponse](t, rec); resp.Field != tc.wantField || resp.Error == "" {
				t.Fatalf("%s: unexpected error response %+v", tc.body, resp)
			}
		}
	}
	if n := len(s.Tasks()); n != 0 {
		t.Fatalf("rejected input must not change the collection, got %d tasks", n)
	}
}

func TestListFilterAndSearch(t *testing.T) {
	e, _, _ := newTestServer(t, storage.NewMemorySlot())
	a := createVia(t, e, "Task A", "high")
	b := createVia(t, e, "Task B", "low")
	createVia(t, e, "Other", "medium")

	if rec := do(e, http.MethodPost, "/api/tasks/"+a.ID+"/toggle", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("toggle: %d", rec.Code)
	}

	rec := do(e, http.MethodGet, "/api/tasks?filter=pending&q=TASK", "", nil)
	view := decodeBody[domain.View](t, rec)
	if len(view.Tasks) != 1 || view.Tasks[0].ID != b.ID {
		t.Fatalf("expected only Task B, got %+v", view.Tasks)
	}
	if view.Stats != (domain.Stats{Total: 3, Pending: 2, Done: 1}) {
		t.Fatalf("stats must cover the whole collection, got %+v", view.Stats)
	}
	if view.Search != "TASK" || view.Filter != domain.FilterPending {
		t.Fatalf("unexpected echo of query: %+v", view)
	}

	rec = do(e, http.MethodGet, "/api/tasks?filter=done&q=zzz", "", nil)
	if view := decodeBody[domain.View](t, rec); !view.Empty || view.Tasks == nil {
		t.Fatalf("expected empty non-nil result, got %+v", view)
	}

	if rec := do(e, http.MethodGet, "/api/tasks?filter=later", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown filter to be rejected, got %d", rec.Code)
	}
}

func TestGetTask(t *testing.T) {
	e, _, _ := newTestServer(t, storage.NewMemorySlot())
	created := createVia(t, e, "Write report", "high")

	rec := do(e, http.MethodGet, "/api/tasks/"+created.ID, "", nil)
	if rec.Code != http.StatusOK || decodeBody[domain.Task](t, rec) != created {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodGet, "/api/tasks/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateTask(t *testing.T) {
	e, s, _ := newTestServer(t, storage.NewMemorySlot())
	created := createVia(t, e, "Write report", "high")

	rec := do(e, http.MethodPut, "/api/tasks/"+created.ID, `{"title":"Write final report","priority":"medium"}`, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	got, _ := s.Get(created.ID)
	if got.Title != "Write final report" || got.Priority != domain.PriorityMedium || got.UpdatedAt <= created.UpdatedAt {
		t.Fatalf("update not applied: %+v", got)
	}

	rec = do(e, http.MethodPut, "/api/tasks/"+created.ID, `{"title":"no","priority":"low"}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if after, _ := s.Get(created.ID); after != got {
		t.Fatalf("rejected update changed the task: %+v", after)
	}

	if rec := do(e, http.MethodPut, "/api/tasks/missing", `{"title":"Anything","priority":"low"}`, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("update of missing task should be a no-op, got %d", rec.Code)
	}
	if len(s.Tasks()) != 1 {
		t.Fatal("update of missing task must not add tasks")
	}
}

func TestUpdateWithoutPriorityKeepsStored(t *testing.T) {
	e, s, _ := newTestServer(t, storage.NewMemorySlot())
	created := createVia(t, e, "Call the bank", "high")

	if rec := do(e, http.MethodPut, "/api/tasks/"+created.ID, `{"title":"Call the bank today"}`, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	got, _ := s.Get(created.ID)
	if got.Title != "Call the bank today" || got.Priority != domain.PriorityHigh {
		t.Fatalf("priority should be kept when omitted: %+v", got)
	}

	if rec := do(e, http.MethodPut, "/api/tasks/"+created.ID, `{"title":"Call the bank today","priority":"bogus"}`, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("explicit invalid priority should be rejected, got %d", rec.Code)
	}
}

func TestToggleTaskTwice(t *testing.T) {
	e, s, _ := newTestServer(t, storage.NewMemorySlot())
	created := createVia(t, e, "Write report", "high")

	for _, want := range []bool{true, false} {
		if rec := do(e, http.MethodPost, "/api/tasks/"+created.ID+"/toggle", "", nil); rec.Code != http.StatusNoContent {
			t.Fatalf("toggle: %d", rec.Code)
		}
		if got, _ := s.Get(created.ID); got.Done != want {
			t.Fatalf("expected done=%v, got %+v", want, got)
		}
	}
	if rec := do(e, http.MethodPost, "/api/tasks/missing/toggle", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("toggle of missing task should be a no-op, got %d", rec.Code)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	e, s, _ := newTestServer(t, storage.NewMemorySlot())
	a := createVia(t, e, "Task A", "low")
	b := createVia(t, e, "Task B", "low")

	rec := do(e, http.MethodDelete, "/api/tasks/"+a.ID, "", nil)
	if rec.Code != http.StatusOK || decodeBody[deleteResponse](t, rec).Deleted {
		t.Fatalf("unconfirmed delete must not remove, got %d %s", rec.Code, rec.Body.String())
	}
	if _, ok := s.Get(a.ID); !ok {
		t.Fatal("task removed without confirmation")
	}

	rec = do(e, http.MethodDelete, "/api/tasks/"+a.ID+"?confirm=true", "", nil)
	if !decodeBody[deleteResponse](t, rec).Deleted {
		t.Fatalf("expected delete with query confirmation, got %s", rec.Body.String())
	}
	rec = do(e, http.MethodDelete, "/api/tasks/"+b.ID, "", map[string]string{headerConfirmDelete: "true"})
	if !decodeBody[deleteResponse](t, rec).Deleted {
		t.Fatalf("expected delete with header confirmation, got %s", rec.Body.String())
	}
	if len(s.Tasks()) != 0 {
		t.Fatalf("expected empty collection, got %+v", s.Tasks())
	}

	rec = do(e, http.MethodDelete, "/api/tasks/missing?confirm=1", "", nil)
	if rec.Code != http.StatusOK || decodeBody[deleteResponse](t, rec).Deleted {
		t.Fatalf("delete of missing task should report false, got %s", rec.Body.String())
	}
}

func TestPersistFailureReturnsServerError(t *testing.T) {
	e, s, hook := newTestServer(t, failingSlot{})

	rec := do(e, http.MethodPost, "/api/tasks", `{"title":"Buy milk","priority":"low"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(s.Tasks()) != 0 {
		t.Fatal("failed persist must leave the collection unchanged")
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Message != observabilityEvent || entry.Data["severity_text"] != "ERROR" {
		t.Fatalf("expected error observability event, got %#v", entry)
	}
	attrs, _ := entry.Data["attributes"].(map[string]any)
	if attrs[attrPrefix+"error_stage"] != "persist" {
		t.Fatalf("expected persist error stage, got %#v", attrs)
	}
}

func TestStatsAndHealthz(t *testing.T) {
	e, _, _ := newTestServer(t, storage.NewMemorySlot())
	a := createVia(t, e, "Task A", "low")
	createVia(t, e, "Task B", "low")
	do(e, http.MethodPost, "/api/tasks/"+a.ID+"/toggle", "", nil)

	if got := decodeBody[domain.Stats](t, do(e, http.MethodGet, "/api/stats", "", nil)); got != (domain.Stats{Total: 2, Pending: 1, Done: 1}) {
		t.Fatalf("unexpected stats: %+v", got)
	}
	rec := do(e, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || decodeBody[healthResponse](t, rec) != (healthResponse{Status: "ok", Tasks: 2}) {
		t.Fatalf("unexpected healthz: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpointExportsTaskGauges(t *testing.T) {
	e, _, _ := newTestServer(t, storage.NewMemorySlot())
	a := createVia(t, e, "Task A", "low")
	createVia(t, e, "Task B", "low")
	do(e, http.MethodPost, "/api/tasks/"+a.ID+"/toggle", "", nil)

	rec := do(e, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`prism_todo_tasks{state="pending"} 1`,
		`prism_todo_tasks{state="done"} 1`,
		`prism_todo_requests_total`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
