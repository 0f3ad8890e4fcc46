package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"edgegate/internal/telemetry/models"
	"edgegate/internal/telemetry/store"
)

type HandlerSuite struct {
	suite.Suite
	router http.Handler
	events *store.Store
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.events = store.New(100, store.WithLogger(logger))

	h := New(s.events, 70, logger)
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) get(url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func (s *HandlerSuite) seed() {
	ctx := context.Background()
	info := models.RequestInfo{IP: "10.0.0.1", Path: "/api/postiz/posts", Method: "POST"}
	s.events.Record(ctx, models.NewAuthFailure(info, "bad token"))
	s.events.Record(ctx, models.NewMaliciousInput(info, "body.q", "sql_injection", "sql_keywords", "' OR 1=1 --"))
	s.events.Record(ctx, models.NewBruteForce(info, 20))
}

func (s *HandlerSuite) TestRecent() {
	s.seed()

	rec := s.get("/ops/security/events/recent?limit=2")
	s.Equal(http.StatusOK, rec.Code)

	var resp struct {
		Count  int                    `json:"count"`
		Events []models.SecurityEvent `json:"events"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(2, resp.Count)
	s.Equal(models.EventBruteForce, resp.Events[0].Type)
}

func (s *HandlerSuite) TestRecentRejectsBadLimit() {
	s.Equal(http.StatusBadRequest, s.get("/ops/security/events/recent?limit=-1").Code)
	s.Equal(http.StatusBadRequest, s.get("/ops/security/events/recent?limit=abc").Code)
}

func (s *HandlerSuite) TestByType() {
	s.seed()

	rec := s.get("/ops/security/events/by-type/malicious_input")
	s.Equal(http.StatusOK, rec.Code)

	var resp struct {
		Count  int                    `json:"count"`
		Events []models.SecurityEvent `json:"events"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(1, resp.Count)
	s.Equal("body.q", resp.Events[0].Details["field"])
}

func (s *HandlerSuite) TestByTypeRejectsUnknown() {
	s.Equal(http.StatusBadRequest, s.get("/ops/security/events/by-type/unknown_kind").Code)
}

func (s *HandlerSuite) TestHighRisk() {
	s.seed()

	rec := s.get("/ops/security/events/high-risk")
	s.Equal(http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(2, resp.Count) // malicious input (high) + brute force (critical)
}

func (s *HandlerSuite) TestMetrics() {
	s.seed()

	from := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	to := time.Now().UTC().Add(time.Minute).Format(time.RFC3339)
	rec := s.get("/ops/security/metrics?from=" + from + "&to=" + to)
	s.Equal(http.StatusOK, rec.Code)

	var snap models.Snapshot
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &snap))
	s.Equal(3, snap.Total)
	s.Equal(1, snap.ByType[models.EventAuthFailure])
	s.Len(snap.TopIPs, 1)
}

func (s *HandlerSuite) TestMetricsRejectsBadRange() {
	s.Equal(http.StatusBadRequest, s.get("/ops/security/metrics?from=yesterday").Code)

	from := time.Now().UTC().Format(time.RFC3339)
	to := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	s.Equal(http.StatusBadRequest, s.get("/ops/security/metrics?from="+from+"&to="+to).Code)
}

func (s *HandlerSuite) TestEmptyStoreShapes() {
	rec := s.get("/ops/security/events/recent")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"events":[]`)
}
