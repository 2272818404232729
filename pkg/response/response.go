package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/madrasah-registration/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data     interface{}         `json:"data,omitempty"`
	Error    *appErrors.Error    `json:"error,omitempty"`
	Warnings []appErrors.Warning `json:"warnings,omitempty"`
	Meta     map[string]any      `json:"meta,omitempty"`
}

// WithWarnings sends a 200 response whose operation succeeded but left
// follow-up work, such as a payment link that could not be issued.
func WithWarnings(c *gin.Context, data interface{}, warnings []appErrors.Warning) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, Envelope{Data: data, Warnings: warnings})
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	_ = c.Error(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
