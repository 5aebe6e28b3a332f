package server

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"marketplace-api/internal/auth"
	"marketplace-api/internal/storage"
	mytesting "marketplace-api/internal/testing"
	"net/http"
	"net/http/httptest"
	"testing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func statusOkHandler(c *gin.Context) {
	c.Status(http.StatusOK)
}

func jsonEngine() *gin.Engine {
	e := gin.New()
	e.POST("/", enforceJSON(), statusOkHandler)
	return e
}

func requireMessage(t *testing.T, rr *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	require.Equal(t, status, rr.Code)
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, msg, body.Message)
}

func TestEnforceJSON(t *testing.T) {
	t.Parallel()

	payload := bytes.NewBuffer([]byte(`{"name":"` + mytesting.RandString() + `"}`))
	req, err := http.NewRequest("POST", "/", payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	jsonEngine().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEnforceJSON_MalformedContentType(t *testing.T) {
	t.Parallel()

	payload := bytes.NewBuffer([]byte(`{"name":"` + mytesting.RandString() + `"}`))
	req, err := http.NewRequest("POST", "/", payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "1:2\n+/-")

	rr := httptest.NewRecorder()
	jsonEngine().ServeHTTP(rr, req)

	requireMessage(t, rr, http.StatusBadRequest, "Malformed Content-Type header")
}

func TestEnforceJSON_UnsupportedContentType(t *testing.T) {
	t.Parallel()

	payload := bytes.NewBuffer([]byte(`{"name":"` + mytesting.RandString() + `"}`))
	req, err := http.NewRequest("POST", "/", payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")

	rr := httptest.NewRecorder()
	jsonEngine().ServeHTTP(rr, req)

	requireMessage(t, rr, http.StatusUnsupportedMediaType, "Content-Type header must be application/json")
}

func TestEnforceJSON_NoContentType(t *testing.T) {
	t.Parallel()

	payload := bytes.NewBuffer([]byte(`{"name":"` + mytesting.RandString() + `"}`))
	req, err := http.NewRequest("POST", "/", payload)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	jsonEngine().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEnforceJSON_NoBody(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("POST", "/", bytes.NewBuffer(nil))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	jsonEngine().ServeHTTP(rr, req)

	requireMessage(t, rr, http.StatusBadRequest, "No body provided")
}

func TestEnforceJSON_MalformedJSON(t *testing.T) {
	t.Parallel()

	payload := bytes.NewBuffer([]byte(`{"name":"` + mytesting.RandString() + `"`))
	req, err := http.NewRequest("POST", "/", payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	jsonEngine().ServeHTTP(rr, req)

	requireMessage(t, rr, http.StatusBadRequest, "Malformed JSON")
}

func TestEnforceJSON_BodyKept(t *testing.T) {
	t.Parallel()

	name := mytesting.RandString()
	e := gin.New()
	e.POST("/", enforceJSON(), func(c *gin.Context) {
		var req nameRequest
		require.NoError(t, c.ShouldBindJSON(&req))
		c.String(http.StatusOK, req.Name)
	})

	req, err := http.NewRequest("POST", "/", bytes.NewBufferString(`{"name":"`+name+`"}`))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, name, rr.Body.String())
}

type stubAuthenticator struct {
	user storage.User
	err  error
}

func (s stubAuthenticator) Authenticate(_ context.Context, _ string) (storage.User, error) {
	return s.user, s.err
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	user := storage.User{ID: "u1", Name: "Jane"}

	tests := []struct {
		name   string
		header string
		auth   stubAuthenticator
		status int
		msg    string
	}{
		{name: "no header", header: "", status: http.StatusForbidden, msg: "Unauthorized request"},
		{name: "not bearer", header: "Basic abc", status: http.StatusForbidden, msg: "Unauthorized request"},
		{name: "empty bearer", header: "Bearer  ", status: http.StatusForbidden, msg: "Unauthorized request"},
		{name: "expired", header: "Bearer t", auth: stubAuthenticator{err: auth.ErrTokenExpired}, status: http.StatusUnauthorized, msg: "Session expired"},
		{name: "invalid", header: "Bearer t", auth: stubAuthenticator{err: auth.ErrTokenInvalid}, status: http.StatusUnauthorized, msg: "Unauthorized access"},
		{name: "unknown user", header: "Bearer t", auth: stubAuthenticator{err: auth.ErrUnknownUser}, status: http.StatusForbidden, msg: "Unauthorized request"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := gin.New()
			e.GET("/", authenticate(tc.auth, testLogger()), statusOkHandler)

			req := httptest.NewRequest("GET", "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			e.ServeHTTP(rr, req)

			requireMessage(t, rr, tc.status, tc.msg)
		})
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		e := gin.New()
		e.GET("/", authenticate(stubAuthenticator{user: user}, testLogger()), func(c *gin.Context) {
			c.String(http.StatusOK, currentUser(c).ID)
		})

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer t")
		rr := httptest.NewRecorder()
		e.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, user.ID, rr.Body.String())
	})
}

func TestLimitBody(t *testing.T) {
	t.Parallel()

	e := gin.New()
	h := &handler{logger: testLogger()}
	e.POST("/", limitBody(8), func(c *gin.Context) {
		var req nameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.bindError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"name":"`+mytesting.RandString()+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	requireMessage(t, rr, http.StatusRequestEntityTooLarge, "Request body is too large")
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	e := gin.New()
	e.Use(log(testLogger().Desugar()))
	e.GET("/", statusOkHandler)

	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, rr.Header().Get("X-Request-ID"), 20)
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	e := gin.New()
	e.Use(recoverer(testLogger()))
	e.GET("/", func(c *gin.Context) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	requireMessage(t, rr, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
