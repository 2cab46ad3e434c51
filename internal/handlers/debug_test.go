package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/telemetry"
)

type staticOnline []string

func (s staticOnline) Online() []string { return s }

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, staticOnline{}, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/presence", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugPresence(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, staticOnline{"alice", "bob"}, true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/presence", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"online":["alice","bob"],"count":2}`, rec.Body.String())
}

func TestDebugAuditTest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pub := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(pub, "audit.messaging", "messaging-service", "test", nil)
	pub.On("Publish", mock.Anything, "audit.messaging", mock.MatchedBy(func(e telemetry.AuditEnvelope) bool {
		return e.RequestID == "req-7" && e.UserID != nil && *e.UserID == "u9" && e.Payload.Action == "debug.audit_test"
	})).Return(nil).Once()

	r := gin.New()
	RegisterDebugRoutes(r, emitter, staticOnline{}, true)
	req := httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil)
	req.Header.Set("X-Request-ID", "req-7")
	req.Header.Set("X-User-ID", "u9")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","requestId":"req-7"}`, rec.Body.String())
	pub.AssertExpectations(t)
}

func TestDebugAuditTestWithoutEmitter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, staticOnline{}, true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
