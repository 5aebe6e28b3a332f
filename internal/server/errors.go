package server

import (
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"marketplace-api/internal/apperr"
	"marketplace-api/internal/storage/zapadapter"
	"net/http"
)

// respondError writes err as {"message": ...} with the status of its kind
// internal and upstream failures are logged, their cause never reaches the client
func (h *handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal || kind == apperr.KindUpstream {
		zapadapter.WithRequestID(c.Request.Context(), h.logger).Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	abort(c, apperr.Status(kind), apperr.MessageOf(err))
}

// bindError answers a request whose body could not be bound into a request struct
func (h *handler) bindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		abort(c, http.StatusUnprocessableEntity, validationMessage(ve[0]))
		return
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		abort(c, http.StatusRequestEntityTooLarge, "Request body is too large")
		return
	}
	abort(c, http.StatusUnprocessableEntity, "Invalid request body")
}
