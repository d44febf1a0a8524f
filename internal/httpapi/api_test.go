package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codesan-git/blasting-be/internal/auth"
	"github.com/codesan-git/blasting-be/internal/blast"
	"github.com/codesan-git/blasting-be/internal/messagelog"
	"github.com/codesan-git/blasting-be/internal/queue"
	"github.com/codesan-git/blasting-be/internal/retention"
	"github.com/codesan-git/blasting-be/internal/webhook"
)

type testEnv struct {
	handler  http.Handler
	auth     *auth.Service
	store    *auth.MemoryStore
	logs     *messagelog.MemoryStore
	queue    *queue.Memory
	adminTok string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := auth.NewMemoryStore()
	perms, err := auth.NewPermissionService(store.RolePermissions(ctx))
	require.NoError(t, err)
	authSvc, err := auth.NewService(store, perms, "test-secret")
	require.NoError(t, err)

	_, err = authSvc.Register(ctx, auth.RegisterInput{
		Email:    "root@example.com",
		Name:     "Root",
		Password: "root-password",
		Roles:    []string{auth.RoleSuperAdmin},
	})
	require.NoError(t, err)

	q := queue.NewMemory()
	logs := messagelog.NewMemoryStore()
	tracker, err := messagelog.NewTracker(logs)
	require.NoError(t, err)
	templates := blast.NewMemoryTemplates(&blast.Template{
		ID:      "welcome",
		Name:    "Welcome",
		Subject: "Hi {{name}}",
		Body:    "Hello {{name}}",
	})
	blastSvc, err := blast.NewService(q, logs, templates)
	require.NoError(t, err)

	api := New(ReadyProbe{}, "test", Deps{
		Auth:      authSvc,
		Blast:     blastSvc,
		Templates: templates,
		Logs:      logs,
		Retention: retention.NewService(logs, nil, nil, q, nil, 30),
		Webhook:   webhook.NewProcessor(tracker),
	})

	env := &testEnv{
		handler: api.Handler(),
		auth:    authSvc,
		store:   store,
		logs:    logs,
		queue:   q,
	}
	env.adminTok = env.login(t, "root@example.com", "root-password")
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func (e *testEnv) registerUser(t *testing.T, email, password string, roles ...string) {
	t.Helper()
	_, err := e.auth.Register(context.Background(), auth.RegisterInput{
		Email:    email,
		Name:     "Test User",
		Password: password,
		Roles:    roles,
	})
	require.NoError(t, err)
}

func TestHealthEndpointsArePublic(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "root@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unknown email yields the same error body as a wrong password.
	rec2 := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec2.Code)
	require.JSONEq(t, stripRequestID(t, rec.Body.Bytes()), stripRequestID(t, rec2.Body.Bytes()))
}

func stripRequestID(t *testing.T, raw []byte) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	delete(m, "request_id")
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return string(out)
}

func TestProtectedEndpointRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/messages", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/messages", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestViewerCannotSendBlasts(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, "viewer@example.com", "viewer-password", auth.RoleViewer)
	token := env.login(t, "viewer@example.com", "viewer-password")

	rec := env.do(t, http.MethodPost, "/v1/blasts", token, map[string]any{
		"recipients":  []map[string]string{{"email": "a@example.com", "name": "A"}},
		"channels":    []string{"email"},
		"template_id": "welcome",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// The viewer's default grant still allows reading the log.
	rec = env.do(t, http.MethodGet, "/v1/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBlastCreatesJobsAndLogRows(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/blasts", env.adminTok, map[string]any{
		"recipients": []map[string]string{
			{"email": "a@example.com", "name": "A"},
			{"email": "b@example.com", "name": "B"},
		},
		"channels":    []string{"email"},
		"template_id": "welcome",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp blast.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.JobIDs, 2)

	depth, err := env.queue.Depth(context.Background(), "email")
	require.NoError(t, err)
	require.Equal(t, 2, depth)

	list := env.do(t, http.MethodGet, "/v1/messages", env.adminTok, nil)
	require.Equal(t, http.StatusOK, list.Code)
	var page struct {
		Messages []*messagelog.MessageLog `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &page))
	require.Len(t, page.Messages, 2)
	for _, row := range page.Messages {
		require.Equal(t, messagelog.StatusQueued, row.Status)
	}
}

func TestBlastValidationFailures(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/blasts", env.adminTok, map[string]any{
		"recipients":  []map[string]string{},
		"channels":    []string{"email"},
		"template_id": "welcome",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/blasts", env.adminTok, map[string]any{
		"recipients":  []map[string]string{{"email": "a@example.com"}},
		"channels":    []string{"email"},
		"template_id": "no-such-template",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessagesQueryValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/messages?status=bogus", env.adminTok, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/messages?channel=fax", env.adminTok, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/messages?status=queued&channel=email", env.adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRolePermissionMutationsAreIdempotent(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"permission": auth.PermissionSendBlast}

	rec := env.do(t, http.MethodPost, "/v1/roles/viewer/permissions", env.adminTok, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"created":true`)

	rec = env.do(t, http.MethodPost, "/v1/roles/viewer/permissions", env.adminTok, body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"created":false`)

	rec = env.do(t, http.MethodDelete, "/v1/roles/viewer/permissions?permission="+auth.PermissionSendBlast, env.adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"removed":true`)

	rec = env.do(t, http.MethodDelete, "/v1/roles/viewer/permissions?permission="+auth.PermissionSendBlast, env.adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"removed":false`)
}

func TestUserLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/users", env.adminTok, map[string]any{
		"email":    "op@example.com",
		"name":     "Operator",
		"password": "op-password",
		"roles":    []string{auth.RoleOperator},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("Location"))

	var created auth.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Empty(t, created.PasswordHash)

	rec = env.do(t, http.MethodPatch, "/v1/users/"+created.ID, env.adminTok, map[string]any{
		"is_active": false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Deactivated accounts cannot log in.
	login := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "op@example.com",
		"password": "op-password",
	})
	require.Equal(t, http.StatusForbidden, login.Code)

	rec = env.do(t, http.MethodDelete, "/v1/users/"+created.ID, env.adminTok, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/v1/users/"+created.ID, env.adminTok, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLastSuperAdminCannotBeDeleted(t *testing.T) {
	env := newTestEnv(t)

	users, err := env.auth.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)

	rec := env.do(t, http.MethodDelete, "/v1/users/"+users[0].ID, env.adminTok, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRefreshAndLogoutFlow(t *testing.T) {
	env := newTestEnv(t)

	login := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "root@example.com",
		"password": "root-password",
	})
	require.Equal(t, http.StatusOK, login.Code)
	var pair tokenResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &pair))

	refreshed := env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusOK, refreshed.Code)

	// The old refresh token was rotated out.
	replay := env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, replay.Code)

	var next tokenResponse
	require.NoError(t, json.Unmarshal(refreshed.Body.Bytes(), &next))
	out := env.do(t, http.MethodPost, "/v1/auth/logout", next.AccessToken, map[string]string{
		"refresh_token": next.RefreshToken,
	})
	require.Equal(t, http.StatusNoContent, out.Code)
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"message_id":"wamid.1","status":"delivered"}`,
		`{"unexpected":"shape"}`,
		`garbage`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/whatsapp", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, body)
		require.Contains(t, rec.Body.String(), "received")
	}
}

func TestWebhookAcknowledgesUnreadableBody(t *testing.T) {
	env := newTestEnv(t)

	// An oversized body fails mid-read; the provider must still get a 200
	// or it will retry the callback indefinitely.
	huge := bytes.Repeat([]byte("x"), 1<<20+1)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/whatsapp", bytes.NewReader(huge))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "received")
}

func TestWebhookUpdatesDeliveryStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.logs.Create(ctx, &messagelog.MessageLog{
		JobID:          "job-1",
		MessageID:      "wamid.9",
		Channel:        messagelog.ChannelWhatsApp,
		RecipientPhone: "+62811",
		Status:         messagelog.StatusProcessing,
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/whatsapp",
		bytes.NewBufferString(`{"message_id":"wamid.9","status":"delivered"}`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	row, err := env.logs.FindByMessageID(ctx, "wamid.9")
	require.NoError(t, err)
	require.Equal(t, messagelog.StatusSent, row.Status)
}

func TestCleanupEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/admin/cleanup?days=7", env.adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "message_logs")
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/v1/blasts", env.adminTok, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestUnknownRouteIs404(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/nope", env.adminTok, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
