package handlers

import (
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// ProxyHandler はチャット補完APIへの同一オリジンのリバースプロキシです。
// ブラウザから <PROXY_PREFIX>/chat/completions を叩くと GROQ_BASE_URL/chat/completions へ転送され、
// APIキーはサーバー側で付与されます。
type ProxyHandler struct {
	apiKey string
	proxy  *httputil.ReverseProxy
}

// NewProxyHandler は新しいProxyHandlerを生成します。
func NewProxyHandler(baseURL, apiKey string) (*ProxyHandler, error) {
	target, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("GROQ_BASE_URL が不正です: %q", baseURL)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.Out.Header.Set("Authorization", "Bearer "+apiKey)
			// ブラウザ由来のCookieやAPIキーは転送しない
			r.Out.Header.Del("Cookie")
			r.Out.Header.Del("X-API-KEY")
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Printf("❌ [proxy] 転送に失敗: %s %s: %v", r.Method, r.URL.Path, err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"success":false,"error":"upstream request failed"}`)
		},
	}
	return &ProxyHandler{apiKey: apiKey, proxy: proxy}, nil
}

// Forward は *path 以下のリクエストを転送します。
func (h *ProxyHandler) Forward(c *gin.Context) {
	if h.apiKey == "" {
		respondError(c, apperrors.ConfigMissing("groq", config.KeyGroqAPIKey, ""))
		return
	}

	// ルートのプレフィックスを取り除き、上流のパスだけを残す
	req := c.Request.Clone(c.Request.Context())
	req.URL.Path = "/" + strings.TrimPrefix(c.Param("path"), "/")
	req.URL.RawPath = ""
	h.proxy.ServeHTTP(c.Writer, req)
}
