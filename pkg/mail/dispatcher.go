// Package mail はEmailJS互換のトランザクションメール中継へ下書きを送信します。
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"biz-insight-api/pkg/apperrors"
)

// DefaultEndpoint はEmailJSの送信エンドポイントです。
const DefaultEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// 設定キー名。メッセージに含め、呼び出し側がセットアップ案内を出せるようにします。
const (
	KeyServiceID  = "EMAILJS_SERVICE_ID"
	KeyTemplateID = "EMAILJS_TEMPLATE_ID"
	KeyPublicKey  = "EMAILJS_PUBLIC_KEY"
)

// Config 中継サービスの設定
type Config struct {
	ServiceID  string
	TemplateID string
	PublicKey  string
	Endpoint   string
}

// Result は送信結果です。Sendはエラーを返さず、常にResultを返します。
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Kind は失敗時の種別 (設定不足か配送失敗か)
	Kind       apperrors.Kind `json:"kind,omitempty"`
	MissingKey string         `json:"missing_key,omitempty"`
}

// SetupRequired は設定不足による失敗かどうかを返します。
func (r Result) SetupRequired() bool {
	return r.Kind == apperrors.KindConfigMissing
}

// Dispatcher メール送信クライアント
type Dispatcher struct {
	cfg        Config
	httpClient *http.Client
}

// NewDispatcher 新しいDispatcherを作成
func NewDispatcher(cfg Config, httpClient *http.Client) *Dispatcher {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dispatcher{cfg: cfg, httpClient: httpClient}
}

type templateParams struct {
	ToEmail string `json:"to_email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type sendRequest struct {
	ServiceID      string         `json:"service_id"`
	TemplateID     string         `json:"template_id"`
	UserID         string         `json:"user_id"`
	TemplateParams templateParams `json:"template_params"`
}

// MissingKey は最初に見つかった未設定のキー名を返します。すべて設定済みなら空文字です。
func (d *Dispatcher) MissingKey() string {
	switch {
	case d.cfg.ServiceID == "":
		return KeyServiceID
	case d.cfg.TemplateID == "":
		return KeyTemplateID
	case d.cfg.PublicKey == "":
		return KeyPublicKey
	}
	return ""
}

// Send は件名・本文を宛先へ送信します。
func (d *Dispatcher) Send(ctx context.Context, to, subject, body string) Result {
	if key := d.MissingKey(); key != "" {
		log.Printf("⚠️ [mail] %s が未設定のため送信できません", key)
		return Result{
			Success:    false,
			Message:    fmt.Sprintf("Setup Required: Please add %s to .env", key),
			Kind:       apperrors.KindConfigMissing,
			MissingKey: key,
		}
	}

	if err := d.post(ctx, sendRequest{
		ServiceID:      d.cfg.ServiceID,
		TemplateID:     d.cfg.TemplateID,
		UserID:         d.cfg.PublicKey,
		TemplateParams: templateParams{ToEmail: to, Subject: subject, Message: body},
	}); err != nil {
		log.Printf("❌ [mail] EmailJS Error: %v", err)
		return Result{
			Success: false,
			Message: "Delivery Error: " + err.Error(),
			Kind:    apperrors.KindTransport,
		}
	}

	log.Printf("✅ [mail] %s へ送信しました", to)
	return Result{Success: true, Message: "Email successfully sent to " + to}
}

func (d *Dispatcher) post(ctx context.Context, payload sendRequest) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		if text := strings.TrimSpace(string(body)); text != "" {
			return fmt.Errorf("%s", text)
		}
		return fmt.Errorf("EmailJS API failed")
	}
	return nil
}
