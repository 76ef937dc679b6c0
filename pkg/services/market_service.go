package services

import (
	"context"
	"log"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/llm"
	"biz-insight-api/pkg/markdown"
	"biz-insight-api/pkg/models"
	"biz-insight-api/pkg/prompts"
)

// MarketService は業界別の市場調査レポートを生成します。
type MarketService struct {
	provider llm.Provider
	profile  *config.PromptProfile
	renderer *markdown.Pipeline
}

// NewMarketService 新しいMarketServiceを作成
func NewMarketService(provider llm.Provider, profile *config.PromptProfile) *MarketService {
	return &MarketService{provider: provider, profile: profile, renderer: markdown.Default()}
}

// Report 市場調査レポートを生成
func (s *MarketService) Report(ctx context.Context, industry string) (*models.TextReport, error) {
	prompt, err := prompts.Market(industry)
	if err != nil {
		return nil, err
	}
	log.Printf("📊 [market] レポート生成: %s", industry)
	return generateReport(ctx, s.provider, s.profile, s.renderer, prompt)
}
