package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/clipmark/clipmark-api/pkg/config"
)

type fakeCounter struct {
	count int64
	err   error
}

func (f *fakeCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.count++
	return f.count, nil
}

func rateLimitedRouter(counter AttemptCounter, cfg config.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", RateLimit(counter, cfg, zap.NewNop(), nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	router := rateLimitedRouter(&fakeCounter{}, config.RateLimitConfig{Enabled: true, MaxAttempts: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	router := rateLimitedRouter(&fakeCounter{}, config.RateLimitConfig{Enabled: true, MaxAttempts: 2, Window: time.Minute})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitFailsOpenWhenCounterDown(t *testing.T) {
	counter := &fakeCounter{err: errors.New("connection refused")}
	router := rateLimitedRouter(counter, config.RateLimitConfig{Enabled: true, MaxAttempts: 1, Window: time.Minute})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	counter := &fakeCounter{}
	router := rateLimitedRouter(counter, config.RateLimitConfig{Enabled: false, MaxAttempts: 1, Window: time.Minute})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Zero(t, counter.count)
}
