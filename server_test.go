package main

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
)

// NOTE: These tests are intentionally DB-free; they cover the readiness
// gate, not the handlers behind it.

func gatedRouter(ready *atomic.Bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(readinessGate(ready))
	r.GET("/schedules", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"schedules": []string{}}) })
	return r
}

func TestReadinessGate_Returns503UntilWired(t *testing.T) {
	var ready atomic.Bool
	r := gatedRouter(&ready)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schedules", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before wiring, got %d", w.Code)
	}

	ready.Store(true)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schedules", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after wiring, got %d", w.Code)
	}
}

func TestReadinessGate_HealthzAlwaysAnswers(t *testing.T) {
	var ready atomic.Bool
	r := gatedRouter(&ready)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for startup probe while not ready, got %d", w.Code)
	}
}
