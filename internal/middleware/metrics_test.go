package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/madrasah-registration/internal/service"
)

func TestMetricsLabelsRouteTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()

	r := gin.New()
	r.Use(Metrics(metrics, "/metrics"))
	r.POST("/students/:id/cancel", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	for _, path := range []string{"/students/s-1/cancel", "/students/s-2/cancel", "/wp-login.php"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	assert.Contains(t, body, `http_requests_total{method="POST",path="/students/:id/cancel",status="204"} 2`)
	assert.Contains(t, body, `http_requests_total{method="POST",path="unmatched",status="404"} 1`)
	assert.NotContains(t, body, "s-1")
	assert.NotContains(t, body, `path="/metrics"`)
}
