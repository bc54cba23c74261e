package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-gateway/internal/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newManagers(t *testing.T) (*auth.JWTManager, *auth.JWTManager) {
	t.Helper()
	user, err := auth.NewJWTManager("secret", time.Hour, "lending-gateway", auth.RoleUser)
	require.NoError(t, err)
	admin, err := auth.NewJWTManager("secret", time.Hour, "lending-gateway", auth.RoleAdmin)
	require.NoError(t, err)
	return user, admin
}

func serve(r *gin.Engine, header string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRequireAuth(t *testing.T) {
	user, admin := newManagers(t)
	r := gin.New()
	r.GET("/x", NewAuthMiddleware(user, quietLogger()).RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(auth.ContextUserAddress))
	})

	token, _, err := user.Issue("0xAbC")
	require.NoError(t, err)
	w, _ := serve(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xabc", w.Body.String())

	cases := []struct {
		header string
		status int
		code   string
	}{
		{"", http.StatusUnauthorized, "MISSING_AUTH_HEADER"},
		{"Token abc", http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"Bearer ", http.StatusUnauthorized, "EMPTY_TOKEN"},
		{"Bearer garbage", http.StatusUnauthorized, "INVALID_TOKEN"},
	}
	for _, tc := range cases {
		w, body := serve(r, tc.header)
		assert.Equal(t, tc.status, w.Code, tc.header)
		assert.Equal(t, tc.code, body["code"], tc.header)
		assert.Equal(t, false, body["success"])
	}

	adminToken, _, err := admin.Issue("root")
	require.NoError(t, err)
	w, body := serve(r, "Bearer "+adminToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", body["code"])
}

func TestRequireAdminAuth(t *testing.T) {
	user, admin := newManagers(t)
	r := gin.New()
	r.GET("/x", NewAdminAuthMiddleware(admin, quietLogger()).RequireAdminAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(auth.ContextAdminUsername))
	})

	token, _, err := admin.Issue("root")
	require.NoError(t, err)
	w, _ := serve(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "root", w.Body.String())

	userToken, _, err := user.Issue("0xabc")
	require.NoError(t, err)
	w, _ = serve(r, "Bearer "+userToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLocalhostOnly(t *testing.T) {
	l := NewLocalhostOnly(quietLogger(), []string{"10.0.0.0/8", "203.0.113.7", "bogus", "1.2.3.0/99"})

	assert.True(t, l.isAllowedIP("127.0.0.1"))
	assert.True(t, l.isAllowedIP("::1"))
	assert.True(t, l.isAllowedIP("10.20.30.40"))
	assert.True(t, l.isAllowedIP("203.0.113.7"))
	assert.False(t, l.isAllowedIP("203.0.113.8"))
	assert.False(t, l.isAllowedIP("not-an-ip"))

	r := gin.New()
	r.GET("/x", l.Restrict(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "198.51.100.1:4000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.1.1.1:4000"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
