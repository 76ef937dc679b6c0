package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	config "biz-insight-api/configs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chartReply = `{"barChart":[{"name":"Jan","value":1200},{"name":"Feb","value":900}],"pieChart":[{"name":"Coffee","value":60}]}`

// fakeGroq はチャット補完APIの代わりです。JSONモードならグラフ、そうでなければMarkdownを返します。
func fakeGroq(t *testing.T, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req struct {
			ResponseFormat *struct {
				Type string `json:"type"`
			} `json:"response_format"`
			Messages []struct {
				Content interface{} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		content := "## Summary\n**Revenue** grew in January."
		if req.ResponseFormat != nil {
			content = chartReply
		} else if prompt, _ := req.Messages[0].Content.(string); strings.Contains(prompt, "customer relationship manager") {
			content = "Subject: Thanks for visiting\n\nBody: Hi Alice, thanks for stopping by!"
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
}

type testServer struct {
	t        *testing.T
	router   *gin.Engine
	services *Services
	token    string
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	profile, err := config.LoadPromptProfile("")
	require.NoError(t, err)
	svc, err := NewServices(cfg, profile)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	router, err := NewRouter(svc)
	require.NoError(t, err)
	return &testServer{t: t, router: router, services: svc}
}

func baseConfig(groqURL string) *config.Config {
	return &config.Config{
		GroqAPIKey:     "gsk_test",
		GroqBaseURL:    groqURL,
		TextProvider:   "groq",
		VisionProvider: "gemini",
		ProxyPrefix:    "/groq-api",
		SessionTTL:     time.Hour,
		AdminUsername:  "admin",
	}
}

func (s *testServer) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := s.do(method, path, strings.NewReader(body), "application/json")
	var decoded map[string]interface{}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	return w, decoded
}

func (s *testServer) login(username string) {
	w, body := s.doJSON(http.MethodPost, "/api/v1/auth/register", `{"username":"`+username+`","password":"secret"}`)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	s.token = body["session"].(map[string]interface{})["token"].(string)
}

func multipartFile(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, baseConfig("http://127.0.0.1:1"))
	w := s.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownProviderFailsFast(t *testing.T) {
	cfg := baseConfig("http://127.0.0.1:1")
	cfg.TextProvider = "openai"
	profile, err := config.LoadPromptProfile("")
	require.NoError(t, err)

	_, err = NewServices(cfg, profile)
	assert.ErrorContains(t, err, "TEXT_PROVIDER")
}

func TestRoutesRequireSession(t *testing.T) {
	s := newTestServer(t, baseConfig("http://127.0.0.1:1"))
	for _, path := range []string{"/api/v1/dashboard", "/api/v1/crm/customers", "/api/v1/data/records", "/api/v1/auth/me"} {
		w := s.do(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestAPIKeyGuard(t *testing.T) {
	cfg := baseConfig("http://127.0.0.1:1")
	cfg.APIKey = "secret-key"
	s := newTestServer(t, cfg)

	w := s.do(http.MethodGet, "/api/v1/admin/health-status", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/health-status", nil)
	req.Header.Set("X-API-KEY", "secret-key")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadAnalyzeDashboardFlow(t *testing.T) {
	var calls int32
	groq := fakeGroq(t, &calls)
	defer groq.Close()

	s := newTestServer(t, baseConfig(groq.URL))
	s.login("alice")

	// アップロード前のダッシュボードは案内を返す
	w, body := s.doJSON(http.MethodGet, "/api/v1/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Welcome back, alice", body["greeting"])
	assert.NotEmpty(t, body["hint"])

	// データ未投入の分析は400でプロバイダーは呼ばれない
	w, _ = s.doJSON(http.MethodPost, "/api/v1/analytics/run", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, atomic.LoadInt32(&calls))

	csvData := []byte("month,revenue\nJan,1200\nFeb,900\n")
	buf, contentType := multipartFile(t, "file", "sales.csv", csvData)
	w = s.do(http.MethodPost, "/api/v1/data/upload", buf, contentType)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = s.doJSON(http.MethodGet, "/api/v1/data/records", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["count"])

	w, body = s.doJSON(http.MethodPost, "/api/v1/analytics/run", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	analysis := body["analysis"].(map[string]interface{})
	assert.Contains(t, analysis["html"], "<strong>Revenue</strong>")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	w, body = s.doJSON(http.MethodGet, "/api/v1/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)
	charts := body["charts"].(map[string]interface{})
	assert.Len(t, charts["barChart"], 2)
	assert.Len(t, charts["pieChart"], 1)

	// 新しいアップロードで分析結果は無効になる
	buf, contentType = multipartFile(t, "file", "sales.csv", csvData)
	s.do(http.MethodPost, "/api/v1/data/upload", buf, contentType)
	w, _ = s.doJSON(http.MethodGet, "/api/v1/analytics/latest", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyticsRunInFlight(t *testing.T) {
	var calls int32
	groq := fakeGroq(t, &calls)
	defer groq.Close()

	s := newTestServer(t, baseConfig(groq.URL))
	s.login("alice")

	release, err := s.services.Guard.Acquire("alice", "analytics")
	require.NoError(t, err)
	defer release()

	w, _ := s.doJSON(http.MethodPost, "/api/v1/analytics/run", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestUnsupportedUpload(t *testing.T) {
	s := newTestServer(t, baseConfig("http://127.0.0.1:1"))
	s.login("alice")

	buf, contentType := multipartFile(t, "file", "sales.pdf", []byte("%PDF"))
	w := s.do(http.MethodPost, "/api/v1/data/upload", buf, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCRMFlow(t *testing.T) {
	var calls int32
	groq := fakeGroq(t, &calls)
	defer groq.Close()

	s := newTestServer(t, baseConfig(groq.URL))
	s.login("alice")

	w, body := s.doJSON(http.MethodGet, "/api/v1/crm/customers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["customers"], 4)

	w, body = s.doJSON(http.MethodPost, "/api/v1/crm/customers", `{"name":"Eve","email":"eve@example.com","lastPurchase":"Tea"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, float64(5), body["customer"].(map[string]interface{})["id"])

	w, body = s.doJSON(http.MethodPost, "/api/v1/crm/customers/1/email", `{"topic":"new arrivals"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	draft := body["draft"].(map[string]interface{})
	assert.Equal(t, "Thanks for visiting", draft["subject"])
	assert.Equal(t, "Hi Alice, thanks for stopping by!", draft["body"])

	w, _ = s.doJSON(http.MethodPost, "/api/v1/crm/customers/42/insights", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.doJSON(http.MethodPost, "/api/v1/crm/customers/abc/email", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// EmailJS未設定の送信はセットアップ案内になる
	w, body = s.doJSON(http.MethodPost, "/api/v1/crm/send", `{"to":"alice@example.com","subject":"s","body":"b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Setup Required: Please add EMAILJS_SERVICE_ID to .env", body["message"])
}

func TestCRMSendEmailDelivers(t *testing.T) {
	var payload map[string]interface{}
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte("OK"))
	}))
	defer relay.Close()

	cfg := baseConfig("http://127.0.0.1:1")
	cfg.EmailJSServiceID = "service"
	cfg.EmailJSTemplateID = "template"
	cfg.EmailJSPublicKey = "public"
	cfg.EmailJSEndpoint = relay.URL
	s := newTestServer(t, cfg)
	s.login("alice")

	w, body := s.doJSON(http.MethodPost, "/api/v1/crm/send", `{"to":"alice@example.com","subject":"Hello","body":"World"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Email successfully sent to alice@example.com", body["message"])
	assert.Equal(t, "service", payload["service_id"])
}

func TestCRMSendEmailRejectsDuplicateWhileSending(t *testing.T) {
	var relayCalls int32
	received := make(chan struct{}, 1)
	unblock := make(chan struct{})
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&relayCalls, 1)
		received <- struct{}{}
		<-unblock
		w.Write([]byte("OK"))
	}))
	defer relay.Close()

	cfg := baseConfig("http://127.0.0.1:1")
	cfg.EmailJSServiceID = "service"
	cfg.EmailJSTemplateID = "template"
	cfg.EmailJSPublicKey = "public"
	cfg.EmailJSEndpoint = relay.URL
	s := newTestServer(t, cfg)
	s.login("alice")

	const payload = `{"to":"alice@example.com","subject":"Hello","body":"World"}`
	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- s.do(http.MethodPost, "/api/v1/crm/send", strings.NewReader(payload), "application/json")
	}()

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		close(unblock)
		t.Fatal("relay was not called")
	}

	// 送信中の同じユーザーからの二回目は中継に届かない
	w, body := s.doJSON(http.MethodPost, "/api/v1/crm/send", payload)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, body["success"])

	close(unblock)
	assert.Equal(t, http.StatusOK, (<-first).Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&relayCalls))
}

func TestMissingGeminiKeyRequiresSetup(t *testing.T) {
	s := newTestServer(t, baseConfig("http://127.0.0.1:1"))
	s.login("alice")

	w, body := s.doJSON(http.MethodPost, "/api/v1/studio/generate", `{"description":"a logo","size":"2K"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, true, body["setup_required"])
	assert.Equal(t, config.KeyGeminiAPIKey, body["missing_key"])

	png := []byte("\x89PNG\r\n\x1a\n0000")
	buf, contentType := multipartFile(t, "image", "bill.png", png)
	w = s.do(http.MethodPost, "/api/v1/data/analyze-image", buf, contentType)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())

	// プロバイダー呼び出しはモニタリングに記録される
	w, body = s.doJSON(http.MethodGet, "/api/v1/monitoring/logs?provider=gemini", "")
	require.Equal(t, http.StatusOK, w.Code)
	providers := body["providers"].([]interface{})
	require.Len(t, providers, 1)
	failures := providers[0].(map[string]interface{})["failures"].(map[string]interface{})
	assert.Equal(t, float64(2), failures["config_missing"])
}

func TestLogoutDropsSession(t *testing.T) {
	s := newTestServer(t, baseConfig("http://127.0.0.1:1"))
	s.login("alice")

	w, body := s.doJSON(http.MethodGet, "/api/v1/auth/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", body["username"])

	w, _ = s.doJSON(http.MethodPost, "/api/v1/auth/logout", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.doJSON(http.MethodGet, "/api/v1/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	s.token = ""
	w, body = s.doJSON(http.MethodPost, "/api/v1/auth/login", `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid username or password.", body["error"])

	w, _ = s.doJSON(http.MethodPost, "/api/v1/auth/register", `{"username":"alice","password":"secret"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogoutKeepsWorkspaceForOtherSessions(t *testing.T) {
	s := newTestServer(t, baseConfig("http://127.0.0.1:1"))
	s.login("alice")
	firstToken := s.token

	buf, contentType := multipartFile(t, "file", "sales.csv", []byte("month,revenue\nJan,1200\n"))
	w := s.do(http.MethodPost, "/api/v1/data/upload", buf, contentType)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 別の端末から同じユーザーでログイン
	s.token = ""
	w, body := s.doJSON(http.MethodPost, "/api/v1/auth/login", `{"username":"alice","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	secondToken := body["session"].(map[string]interface{})["token"].(string)

	s.token = firstToken
	w, _ = s.doJSON(http.MethodPost, "/api/v1/auth/logout", "")
	require.Equal(t, http.StatusOK, w.Code)

	s.token = secondToken
	w, body = s.doJSON(http.MethodGet, "/api/v1/data/records", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	// 最後のセッションを閉じるとワークスペースも破棄される
	w, _ = s.doJSON(http.MethodPost, "/api/v1/auth/logout", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, s.services.Workspaces.Get("alice").Records())
}
