package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"marketplace-api/internal/auth"
	"marketplace-api/internal/conversation"
	"marketplace-api/internal/product"
	"marketplace-api/internal/realtime"
	"marketplace-api/internal/storage"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
)

type handler struct {
	logger        *zap.SugaredLogger
	auth          *auth.Service
	conversations *conversation.Service
	products      *product.Service
	registry      realtime.Registry
}

// profile is the private projection of the caller's account
type profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
	Avatar   string `json:"avatar,omitempty"`
}

func newProfile(u storage.User) profile {
	p := profile{ID: u.ID, Email: u.Email, Name: u.Name, Verified: u.Verified}
	if u.Avatar != nil {
		p.Avatar = u.Avatar.URL
	}
	return p
}

func message(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"message": msg})
}

// queryInt reads an optional integer query parameter, def is returned when it is absent
func queryInt(c *gin.Context, key string, def int64) (int64, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// isImage reports whether the declared type of an uploaded file is an image
func isImage(fh *multipart.FileHeader) bool {
	return strings.HasPrefix(fh.Header.Get("Content-Type"), "image/")
}

// multipartFiles returns the files uploaded under key, or nil when the request carries none
func multipartFiles(c *gin.Context, key string) ([]*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err == http.ErrNotMultipart {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return form.File[key], nil
}
