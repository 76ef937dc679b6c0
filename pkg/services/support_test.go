package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/llm"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInflightGuard(t *testing.T) {
	guard := NewInflightGuard()

	release, err := guard.Acquire("alice", "analytics")
	require.NoError(t, err)

	_, err = guard.Acquire("alice", "analytics")
	assert.ErrorIs(t, err, ErrInFlight)

	// 別ユーザー・別操作は独立
	other, err := guard.Acquire("bob", "analytics")
	require.NoError(t, err)
	other()
	another, err := guard.Acquire("alice", "market")
	require.NoError(t, err)
	another()

	release()
	release() // 二重解放しても問題ない
	again, err := guard.Acquire("alice", "analytics")
	require.NoError(t, err)
	again()
}

func TestMonitoringMiddlewareAndDashboard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	monitor := NewMonitoringService()

	r := gin.New()
	r.Use(monitor.LoggingMiddleware())
	r.GET("/api/v1/crm/customers/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.GET("/api/v1/monitoring/logs", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/v1/crm/customers/1", "/api/v1/crm/customers/2", "/api/v1/fail", "/api/v1/monitoring/logs"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	data := monitor.GetDashboardData(24)
	assert.Equal(t, 2, data.Endpoints["/api/v1/crm/customers/:id"])
	assert.Equal(t, 1, data.Endpoints["/api/v1/fail"])
	assert.NotContains(t, data.Endpoints, "/api/v1/monitoring/logs")
	require.Len(t, data.RecentErrors, 1)
	assert.Equal(t, http.StatusBadGateway, data.RecentErrors[0].StatusCode)
	assert.Len(t, data.RequestsOverTime, 24)
	assert.Equal(t, 3, data.RequestsOverTime[23]["requests"])
}

func TestInstrumentRecordsProviderOutcomes(t *testing.T) {
	monitor := NewMonitoringService()
	provider := newFakeProvider()
	provider.failures[marketKeyword] = apperrors.ConfigMissing("fake", "GROQ_API_KEY", "")
	instrumented := monitor.Instrument(provider)

	assert.Equal(t, "fake", instrumented.Name())
	_, err := instrumented.Send(context.Background(), llm.UserPrompt("hello", "m", false))
	require.NoError(t, err)
	_, err = instrumented.Send(context.Background(), llm.UserPrompt("Market Intelligence report", "m", false))
	require.Error(t, err)

	stats := monitor.GetDashboardData(1).Providers
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Calls)
	assert.Equal(t, map[string]int{"config_missing": 1}, stats[0].Failures)
}

type fakeImageProvider struct {
	prompt string
	model  string
	image  llm.Attachment
	err    error
}

func (f *fakeImageProvider) GenerateImage(_ context.Context, prompt, model string) (string, error) {
	f.prompt, f.model = prompt, model
	return "data:image/png;base64,eA==", f.err
}

func (f *fakeImageProvider) EditImage(_ context.Context, prompt, model string, image llm.Attachment) (string, error) {
	f.prompt, f.model, f.image = prompt, model, image
	return "data:image/png;base64,eQ==", f.err
}

func TestStudioService(t *testing.T) {
	images := &fakeImageProvider{}
	monitor := NewMonitoringService()
	svc := NewStudioService(images, "gemini", "gen-model", "edit-model", monitor)

	url, err := svc.Generate(context.Background(), "a bakery logo", "2K")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,eA==", url)
	assert.Equal(t, "gen-model", images.model)
	assert.Contains(t, images.prompt, "2K resolution")

	src := llm.Attachment{MIMEType: "image/jpeg", Base64: "eg=="}
	_, err = svc.Edit(context.Background(), "make it blue", src)
	require.NoError(t, err)
	assert.Equal(t, "edit-model", images.model)
	assert.Equal(t, src, images.image)

	_, err = svc.Edit(context.Background(), "make it blue", llm.Attachment{})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
	_, err = svc.Generate(context.Background(), "", "1K")
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))

	stats := monitor.GetDashboardData(1).Providers
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Calls)
}

func TestWorkspaceServiceExpiry(t *testing.T) {
	workspaces := NewWorkspaceService(30*time.Millisecond, nil)
	ws := workspaces.Get("alice")
	_, err := ws.AddCustomer("Eve", "eve@example.com", "")
	require.NoError(t, err)
	assert.Same(t, ws, workspaces.Get("alice"))

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, workspaces.Get("alice").Customers())

	workspaces.Drop("alice")
	assert.NotSame(t, ws, workspaces.Get("alice"))
}
