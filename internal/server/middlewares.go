package server

import (
	"bytes"
	"context"
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
	"io"
	"marketplace-api/internal/auth"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/zapadapter"
	"mime"
	"net/http"
	"strings"
	"time"
)

const userKey = "user"

// abort stops the chain with a {"message": msg} body
func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}

// enforceJSON is a middleware pre-processing each HTTP request with a body
// it checks for application/json Content-Type header and valid json body
// it also sets blank Content-Type header to application/json
func enforceJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.Request

		// check "Content-Type" header
		contentType := r.Header.Get("Content-Type")
		if contentType != "" {
			mt, _, err := mime.ParseMediaType(contentType)
			if err != nil {
				abort(c, http.StatusBadRequest, "Malformed Content-Type header")
				return
			}

			if mt != "application/json" {
				abort(c, http.StatusUnsupportedMediaType, "Content-Type header must be application/json")
				return
			}
		} else {
			r.Header.Set("Content-Type", "application/json")
		}

		// check if provided request body is valid JSON
		var bodyBuf bytes.Buffer
		bodyReader := io.TeeReader(r.Body, &bodyBuf)
		body, err := io.ReadAll(bodyReader)
		if err != nil {
			abort(c, http.StatusBadRequest, "Can not read request body")
			return
		}

		if len(body) == 0 {
			abort(c, http.StatusBadRequest, "No body provided")
			return
		}

		err = fastjson.ValidateBytes(body)
		if err != nil {
			abort(c, http.StatusBadRequest, "Malformed JSON")
			return
		}

		r.Body = io.NopCloser(&bodyBuf)

		c.Next()
	}
}

// limitBody caps the size of request bodies
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// log assigns an id to every request, carries it through the request context and logs the outcome
func log(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := xid.New().String()
		start := time.Now()

		ctx := zapadapter.NewContextWithID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", id)

		c.Next()

		logger.Info("incoming http request",
			zap.String("id", id),
			zap.String("method", c.Request.Method),
			zap.String("uri", c.Request.URL.RequestURI()),
			zap.String("ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// recoverer turns panics into 500 responses
func recoverer(logger *zap.SugaredLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err interface{}) {
		zapadapter.WithRequestID(c.Request.Context(), logger).Errorf("Recovered from panic: %v", err)
		abort(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	})
}

// Authenticator resolves an access token to its user
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (storage.User, error)
}

// authenticate resolves the bearer token into a user stored in the gin context
func authenticate(a Authenticator, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if !strings.HasPrefix(header, "Bearer ") || token == "" {
			abort(c, http.StatusForbidden, "Unauthorized request")
			return
		}

		u, err := a.Authenticate(c.Request.Context(), token)
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			abort(c, http.StatusUnauthorized, "Session expired")
			return
		case errors.Is(err, auth.ErrTokenInvalid):
			abort(c, http.StatusUnauthorized, "Unauthorized access")
			return
		case errors.Is(err, auth.ErrUnknownUser):
			abort(c, http.StatusForbidden, "Unauthorized request")
			return
		case err != nil:
			zapadapter.WithRequestID(c.Request.Context(), logger).Errorf("Authenticating request: %v", err)
			abort(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			return
		}

		c.Set(userKey, u)
		c.Next()
	}
}

// currentUser returns the user stored by authenticate
func currentUser(c *gin.Context) storage.User {
	u, _ := c.MustGet(userKey).(storage.User)
	return u
}
