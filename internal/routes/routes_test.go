package routes

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"dutysync/internal/controllers"
	"dutysync/internal/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testRouter() *gin.Engine {
	st := store.NewMemory()
	return SetupRouter(Deps{
		Duty:     &controllers.DutyController{Store: st},
		Location: &controllers.LocationController{Store: st},
		Store:    st,
	})
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	r := testRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := testRouter()

	for _, path := range []string{"/admin/duties", "/driver/duties"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

// Recovery must sit under every route registered on the engine: a handler
// panic becomes a 500 response instead of killing the process.
func TestRecoveryCoversRoutes(t *testing.T) {
	r := testRouter()
	r.GET("/boom", func(*gin.Context) { panic("handler blew up") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
