package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	engine *gin.Engine
	store  *mockUserStore
	tokens *JWTAuthenticator
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	_, client := newTestRedis(t)
	store := &mockUserStore{}
	tokens := NewJWTAuthenticator("secret", time.Hour, NewRedisTokenDenylist(client))
	metrics := NewMetricsService(client)
	engine := NewRouter(
		Config{},
		NewAuthService(store, tokens, metrics),
		NewUserResource(store, 4),
		tokens,
		NewStatusService(store, client, metrics, time.Now()),
	)
	return &routerFixture{engine: engine, store: store, tokens: tokens}
}

func (f *routerFixture) tokenFor(t *testing.T, id, level int64) string {
	t.Helper()
	token, _, err := f.tokens.Issue(User{ID: id, LevelID: level})
	require.NoError(t, err)
	return token
}

func (f *routerFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLoginMissingField(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodPost, "/login", "", `{"username":"alice"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "The given data was invalid.", body["message"])
	assert.Equal(t, map[string]any{"password": []any{"The password field is required."}}, body["data"])
}

func TestLoginEmptyBody(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodPost, "/login", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Contains(t, data, "username")
	assert.Contains(t, data, "password")
}

func TestLoginWrongPassword(t *testing.T) {
	f := newRouterFixture(t)
	f.store.On("FindByUsername", mock.Anything, "alice").
		Return(&User{ID: 3, LevelID: RoleUser, Password: mustHash(t, "right")}, nil)

	w := f.do(http.MethodPost, "/login", "", `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t,
		`{"success":false,"code":403,"message":"Login failed, incorrect username or password.","data":[],"metadata":[]}`,
		w.Body.String())
}

func TestLoginLogoutFlow(t *testing.T) {
	f := newRouterFixture(t)
	f.store.On("FindByUsername", mock.Anything, "alice").
		Return(&User{ID: 3, LevelID: RoleUser, Username: "alice", Password: mustHash(t, "pw")}, nil)
	f.store.On("TouchLastLogin", mock.Anything, int64(3), mock.Anything).Return(nil)
	f.store.On("LevelName", mock.Anything, RoleUser).Return("User", nil)
	f.store.On("Count", mock.Anything, mock.Anything).Return(1, nil)
	f.store.On("List", mock.Anything, mock.Anything).Return([]User{{ID: 3, Username: "alice"}}, nil)

	w := f.do(http.MethodPost, "/login", "", `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			User  map[string]any `json:"user"`
			Token string         `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, "Login successfull.", login.Message)
	assert.Equal(t, "User", login.Data.User["level_name"])
	assert.NotContains(t, login.Data.User, "password")
	assert.NotNil(t, login.Data.User["last_login"])
	require.NotEmpty(t, login.Data.Token)

	w = f.do(http.MethodGet, "/user", login.Data.Token, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeEnvelope(t, w)["success"])

	w = f.do(http.MethodPost, "/logout", login.Data.Token, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/user", login.Data.Token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthenticated.", decodeEnvelope(t, w)["message"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newRouterFixture(t)
	for _, tc := range []struct{ method, path, token string }{
		{http.MethodGet, "/user", ""},
		{http.MethodGet, "/user/1", "garbage"},
		{http.MethodDelete, "/user/1", ""},
		{http.MethodPost, "/logout", ""},
	} {
		w := f.do(tc.method, tc.path, tc.token, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestNonAdminWriteAccess(t *testing.T) {
	f := newRouterFixture(t)
	token := f.tokenFor(t, 5, RoleUser)

	// authorization is decided before the body is validated
	w := f.do(http.MethodPost, "/user", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, msgNoAccess, decodeEnvelope(t, w)["message"])

	w = f.do(http.MethodPut, "/user/6", token, `{"name":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodDelete, "/user/5", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodGet, "/system/status", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	f.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestCreateUserValidation(t *testing.T) {
	f := newRouterFixture(t)
	token := f.tokenFor(t, 1, RoleAdmin)

	w := f.do(http.MethodPost, "/user", token, `{"name":"N","username":"n","password":"p","email":"not-an-email"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, []any{"The email must be a valid email address."}, data["email"])
}

func TestUpdateReturnsCreated(t *testing.T) {
	f := newRouterFixture(t)
	token := f.tokenFor(t, 5, RoleUser)
	f.store.On("Update", mock.Anything, int64(5), mock.Anything).Return(nil)
	f.store.On("FindByID", mock.Anything, int64(5)).Return(&User{ID: 5, Name: "Renamed"}, nil)

	w := f.do(http.MethodPut, "/user/5", token, `{"name":"Renamed"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "Update data successfull", body["message"])
	assert.Equal(t, "Renamed", body["data"].(map[string]any)["name"])
}

func TestDeleteMissingUser(t *testing.T) {
	f := newRouterFixture(t)
	token := f.tokenFor(t, 1, RoleAdmin)
	f.store.On("Delete", mock.Anything, int64(77)).Return(ErrUserNotFound)

	w := f.do(http.MethodDelete, "/user/77", token, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "No query results for user 77", decodeEnvelope(t, w)["message"])
}

func TestListEmptyIsSoftFailure(t *testing.T) {
	f := newRouterFixture(t)
	token := f.tokenFor(t, 1, RoleAdmin)
	f.store.On("Count", mock.Anything, mock.Anything).Return(0, nil)
	f.store.On("List", mock.Anything, mock.Anything).Return([]User{}, nil)

	w := f.do(http.MethodGet, "/user?per_page=5&sort=name:asc", token, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"success":false,"code":200,"message":"No data found","data":[],"metadata":{"total_data":0,"per_page":5,"total_page":0,"page":1}}`,
		w.Body.String())
}

func TestListRejectsBadPaging(t *testing.T) {
	f := newRouterFixture(t)
	token := f.tokenFor(t, 1, RoleAdmin)

	w := f.do(http.MethodGet, "/user?per_page=-1", token, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(http.MethodGet, "/user?page=abc", token, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthzAndStatus(t *testing.T) {
	f := newRouterFixture(t)
	f.store.On("Ping", mock.Anything).Return(nil)

	w := f.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = f.do(http.MethodGet, "/system/status", f.tokenFor(t, 1, RoleAdmin), "")
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "ok", data["database"])
	assert.Equal(t, "ok", data["redis"])
}

func TestUnknownRoute(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decodeEnvelope(t, w)["success"])
}

func TestOriginCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(OriginRefererMiddleware(Config{AllowedOrigins: []string{"https://app.example.com"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBearerAuthCarriesPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := NewJWTAuthenticator("secret", time.Hour, nil)
	token, _, err := tokens.Issue(User{ID: 8, LevelID: RoleUser, Username: "dana"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", BearerAuth(tokens), func(c *gin.Context) {
		p, ok := PrincipalFromContext(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, p.Username)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dana", w.Body.String())
}

func TestInputLimitsAreValidationErrors(t *testing.T) {
	f := newRouterFixture(t)
	token := f.tokenFor(t, 1, RoleAdmin)

	body := `{"name":"N","username":"n","email":"n@example.com","password":"` + strings.Repeat("a", 73) + `"}`
	w := f.do(http.MethodPost, "/user", token, body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, []any{"The password may not be greater than 72 characters."}, data["password"])

	w = f.do(http.MethodGet, "/user?per_page=1001", token, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	data = decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, []any{"The per page may not be greater than 1000."}, data["per_page"])

	w = f.do(http.MethodGet, "/user?per_page=4&page=4611686018427387905", token, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decodeEnvelope(t, w)["data"], "page")

	f.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "Count", mock.Anything, mock.Anything)
}
