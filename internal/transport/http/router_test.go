package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"comply/internal/filing"
	filinghandler "comply/internal/filing/handler"
	"comply/internal/filing/handler/mocks"
	jwttoken "comply/internal/jwt_token"
	"comply/internal/screening"
	screeninghandler "comply/internal/screening/handler"
)

type stubScreener struct {
	result *screening.Result
}

func (s *stubScreener) Screen(ctx context.Context, e screening.Entity) (*screening.Result, error) {
	return s.result, nil
}

type RouterSuite struct {
	suite.Suite

	ctrl    *gomock.Controller
	service *mocks.MockService
	jwt     *jwttoken.JWTService
	router  http.Handler
	ready   error
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.jwt = jwttoken.NewJWTService("test-signing-key", "comply", "comply-operators")
	s.ready = nil

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = NewRouter(Dependencies{
		Filing:    filinghandler.New(s.service, logger),
		Screening: screeninghandler.New(&stubScreener{result: &screening.Result{Action: screening.ActionClear}}, nil, logger),
		Validator: jwttoken.NewJWTServiceAdapter(s.jwt),
		ReadyCheck: func() error {
			return s.ready
		},
	}, logger)
}

func (s *RouterSuite) token(role string) string {
	token, err := s.jwt.GenerateAccessToken(uuid.New(), role, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *RouterSuite) get(path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) TestHealthzIsPublic() {
	rec := s.get("/healthz", "")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestReadyzReflectsCheck() {
	s.Equal(http.StatusOK, s.get("/readyz", "").Code)

	s.ready = errors.New("postgres unreachable")
	s.Equal(http.StatusServiceUnavailable, s.get("/readyz", "").Code)
}

func (s *RouterSuite) TestMetricsIsPublic() {
	rec := s.get("/metrics", "")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestFilingsRequireToken() {
	rec := s.get("/filings/"+uuid.NewString(), "")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "unauthorized")
}

func (s *RouterSuite) TestGarbageTokenRejected() {
	rec := s.get("/filings/"+uuid.NewString(), "not-a-jwt")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestExpiredTokenRejected() {
	token, err := s.jwt.GenerateAccessToken(uuid.New(), RoleComplianceOfficer, -time.Minute)
	s.Require().NoError(err)
	rec := s.get("/filings/"+uuid.NewString(), token)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestNonOperatorRoleForbidden() {
	rec := s.get("/filings/"+uuid.NewString(), s.token("support_agent"))
	s.Equal(http.StatusForbidden, rec.Code)
	s.Contains(rec.Body.String(), "forbidden")
}

func (s *RouterSuite) TestOperatorReachesFilingHandler() {
	id := uuid.New()
	s.service.EXPECT().Get(gomock.Any(), id).Return(&filing.Filing{
		ID:        id,
		SubjectID: "cust-1",
		Type:      filing.TypeSAR,
		Status:    filing.StatusSubmitted,
		Amount:    30_000,
		Priority:  filing.PriorityHigh,
		CreatedAt: time.Now(),
		Deadline:  time.Now().AddDate(0, 0, 3),
		UpdatedAt: time.Now(),
		Version:   1,
	}, nil)

	rec := s.get(fmt.Sprintf("/filings/%s", id), s.token(RoleComplianceOfficer))
	s.Equal(http.StatusOK, rec.Code)

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(id.String(), body["id"])
}

func (s *RouterSuite) TestRequestIDEchoedOnResponse() {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal("req-123", rec.Header().Get("X-Request-Id"))

	rec = s.get("/healthz", "")
	s.NotEmpty(rec.Header().Get("X-Request-Id"))
}
