package services

import (
	"context"
	"log"
	"strings"
	"time"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/llm"
	"biz-insight-api/pkg/mail"
	"biz-insight-api/pkg/markdown"
	"biz-insight-api/pkg/models"
	"biz-insight-api/pkg/normalize"
	"biz-insight-api/pkg/prompts"
)

// EmailOptions はメール下書きの任意パラメータです。
type EmailOptions struct {
	Greeting string `json:"greeting"`
	Topic    string `json:"topic"`
}

// CRMService は顧客管理、メール下書き、顧客インサイト、メール送信を提供します。
type CRMService struct {
	provider   llm.Provider
	profile    *config.PromptProfile
	workspaces *WorkspaceService
	mailer     *mail.Dispatcher
	renderer   *markdown.Pipeline
}

// NewCRMService 新しいCRMServiceを作成
func NewCRMService(provider llm.Provider, profile *config.PromptProfile, workspaces *WorkspaceService, mailer *mail.Dispatcher) *CRMService {
	return &CRMService{
		provider:   provider,
		profile:    profile,
		workspaces: workspaces,
		mailer:     mailer,
		renderer:   markdown.Default(),
	}
}

// Customers 顧客一覧
func (s *CRMService) Customers(username string) []models.Customer {
	return s.workspaces.Get(username).Customers()
}

// AddCustomer 顧客を追加
func (s *CRMService) AddCustomer(username string, in models.Customer) (models.Customer, error) {
	return s.workspaces.Get(username).AddCustomer(in.Name, in.Email, in.LastPurchase)
}

// DraftEmail は顧客向けのメールを生成し、件名と本文に分割して返します。
func (s *CRMService) DraftEmail(ctx context.Context, username string, customerID int, opts EmailOptions) (models.EmailDraft, error) {
	customer, err := s.workspaces.Get(username).Customer(customerID)
	if err != nil {
		return models.EmailDraft{}, err
	}

	greeting := opts.Greeting
	if greeting == "" {
		greeting = s.profile.Email.DefaultGreeting
	}
	topic := opts.Topic
	if topic == "" {
		topic = s.profile.Email.DefaultTopic
	}

	prompt, err := prompts.Email(prompts.EmailInput{
		CustomerName: customer.Name,
		LastPurchase: customer.LastPurchase,
		Greeting:     greeting,
		Topic:        topic,
		WordLimit:    s.profile.Email.WordLimit,
	})
	if err != nil {
		return models.EmailDraft{}, err
	}

	model := s.profile.ModelFor(s.provider.Name(), string(prompt.Task))
	raw, err := s.provider.Send(ctx, prompt.Request(model))
	if err != nil {
		return models.EmailDraft{}, err
	}
	return normalize.SplitEmail(raw, customer.Name), nil
}

// Insights は顧客のペルソナ分析を生成します。
func (s *CRMService) Insights(ctx context.Context, username string, customerID int) (*models.TextReport, error) {
	customer, err := s.workspaces.Get(username).Customer(customerID)
	if err != nil {
		return nil, err
	}
	prompt, err := prompts.Insight(customer.Name, customer.LastPurchase)
	if err != nil {
		return nil, err
	}
	return generateReport(ctx, s.provider, s.profile, s.renderer, prompt)
}

// SendEmail は下書きを送信します。結果は常にResultで返り、エラーにはなりません。
func (s *CRMService) SendEmail(ctx context.Context, to, subject, body string) mail.Result {
	if strings.TrimSpace(to) == "" {
		return mail.Result{Success: false, Message: "Recipient email is required.", Kind: apperrors.KindInvalidInput}
	}
	result := s.mailer.Send(ctx, strings.TrimSpace(to), subject, body)
	if !result.Success {
		log.Printf("⚠️ [crm] メール送信失敗 to=%s: %s", to, result.Message)
	}
	return result
}

// generateReport はmarkdownのテキストレポートを生成する共通処理です。
func generateReport(ctx context.Context, provider llm.Provider, profile *config.PromptProfile, renderer *markdown.Pipeline, prompt prompts.Prompt) (*models.TextReport, error) {
	model := profile.ModelFor(provider.Name(), string(prompt.Task))
	text, err := provider.Send(ctx, prompt.Request(model))
	if err != nil {
		return nil, err
	}
	return &models.TextReport{
		Markdown:    text,
		HTML:        renderer.Render(text),
		Provider:    provider.Name(),
		GeneratedAt: time.Now().UTC(),
	}, nil
}
