package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/middleware"
	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/internal/testutil"
	"ottoseguridad_backend/pkg/pipeline"
	"ottoseguridad_backend/pkg/session"
)

const testSecret = "0123456789abcdef0123"

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	m := session.NewManager(testSecret, time.Hour)
	middleware.InitAuth(m, "")
	InitAuthController(m, false)
	InitBulletinController(nil, time.UTC, time.Minute)
	pipeline.Default = pipeline.New(pipeline.Deps{DB: db}, pipeline.Options{})

	t.Cleanup(func() {
		pipeline.Default.Wait()
		WaitBackground()
	})
	return &testEnv{app: NewApp(AppOptions{}), db: db, sessions: m}
}

// login returns a bearer token for a new user with the given role.
func (e *testEnv) login(t *testing.T, email string, role model.Role) (string, *model.User) {
	t.Helper()
	user := testutil.CreateUser(t, e.db, email, "secret123", role)
	token, _, err := e.sessions.Issue(e.db, user, "127.0.0.1", "test")
	require.NoError(t, err)
	return token, user
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestRespondError(t *testing.T) {
	app := fiber.New()
	errs := map[string]error{
		"/fiber":      fiber.NewError(fiber.StatusTeapot, "short and stout"),
		"/missing":    gorm.ErrRecordNotFound,
		"/busy":       pipeline.ErrBusy,
		"/duplicate":  gorm.ErrDuplicatedKey,
		"/transition": model.ErrInvalidTransition,
		"/empty":      pipeline.ErrNoArticles,
		"/video":      pipeline.ErrVideoNotConfigured,
		"/boom":       errors.New("disk on fire"),
	}
	for path, err := range errs {
		err := err
		app.Get(path, func(c *fiber.Ctx) error { return respondError(c, err, "Something failed") })
	}

	tt := []struct {
		path string
		code int
		msg  string
	}{
		{"/fiber", fiber.StatusTeapot, "short and stout"},
		{"/missing", fiber.StatusNotFound, "Not found"},
		{"/busy", fiber.StatusConflict, pipeline.ErrBusy.Error()},
		{"/duplicate", fiber.StatusConflict, "Already exists"},
		{"/transition", fiber.StatusConflict, model.ErrInvalidTransition.Error()},
		{"/empty", fiber.StatusUnprocessableEntity, pipeline.ErrNoArticles.Error()},
		{"/video", fiber.StatusServiceUnavailable, pipeline.ErrVideoNotConfigured.Error()},
		{"/boom", fiber.StatusInternalServerError, "Something failed"},
	}
	for _, tc := range tt {
		resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
		require.NoError(t, err)
		assert.Equal(t, tc.code, resp.StatusCode, tc.path)

		var body map[string]interface{}
		decode(t, resp, &body)
		assert.Equal(t, tc.msg, body["error"], tc.path)
	}
}

func TestValidationErrorsListFields(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "admin@otto.ec", model.RoleAdmin)

	resp := e.request(t, "POST", "/api/sources", fiber.Map{"name": "", "url": "not a url"}, token)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "Validation failed", body.Error)
	assert.Contains(t, body.Fields, "name")
	assert.Contains(t, body.Fields, "url")
}

func TestPagination(t *testing.T) {
	app := fiber.New()
	var got page
	app.Get("/", func(c *fiber.Ctx) error {
		got = pagination(c)
		return c.JSON(paginated([]int{}, 45, got))
	})

	tt := []struct {
		query string
		want  page
	}{
		{"", page{Page: 1, Limit: defaultPageSize, Offset: 0}},
		{"?page=3&limit=10", page{Page: 3, Limit: 10, Offset: 20}},
		{"?page=-1&limit=1000", page{Page: 1, Limit: defaultPageSize, Offset: 0}},
	}
	for _, tc := range tt {
		resp, err := app.Test(httptest.NewRequest("GET", "/"+tc.query, nil))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.query)

		var body map[string]interface{}
		decode(t, resp, &body)
		assert.EqualValues(t, (45+tc.want.Limit-1)/tc.want.Limit, body["pages"], tc.query)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	resp := e.request(t, "GET", "/health", nil, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["cache"])
}
