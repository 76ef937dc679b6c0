package services

import (
	"context"
	"errors"
	"log"
	"time"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/dataset"
	"biz-insight-api/pkg/llm"
	"biz-insight-api/pkg/markdown"
	"biz-insight-api/pkg/models"
	"biz-insight-api/pkg/normalize"
	"biz-insight-api/pkg/prompts"

	"golang.org/x/sync/errgroup"
)

// ErrAnalysisSuperseded は実行中に新しいアップロードまたは分析が始まり、結果が破棄されたことを示します。
var ErrAnalysisSuperseded = errors.New("a newer upload or analysis superseded this run; its result was discarded")

// AnalyticsService は売上データの分析レポートとチャートデータを生成します。
type AnalyticsService struct {
	provider   llm.Provider
	profile    *config.PromptProfile
	workspaces *WorkspaceService
	renderer   *markdown.Pipeline
}

// NewAnalyticsService 新しいAnalyticsServiceを作成
func NewAnalyticsService(provider llm.Provider, profile *config.PromptProfile, workspaces *WorkspaceService) *AnalyticsService {
	return &AnalyticsService{
		provider:   provider,
		profile:    profile,
		workspaces: workspaces,
		renderer:   markdown.Default(),
	}
}

// Run は分析とチャート抽出を並行して実行します。
// どちらかが失敗した場合は両方の結果を破棄し、何も保存しません。
func (s *AnalyticsService) Run(ctx context.Context, username string) (*models.AnalysisResult, error) {
	ws := s.workspaces.Get(username)
	dataJSON, generation := ws.BeginAnalysis()
	if dataJSON == "" {
		return nil, apperrors.Invalid("No sales data uploaded. Please upload a spreadsheet first.")
	}

	truncated := dataset.Truncate(dataJSON, s.profile.Truncation.MaxRecords)
	sampleSize := dataset.RecordCount(truncated)

	analysisPrompt, err := prompts.Analysis(truncated, sampleSize)
	if err != nil {
		return nil, err
	}
	chartPrompt, err := prompts.Chart(truncated, sampleSize)
	if err != nil {
		return nil, err
	}

	log.Printf("📊 [analytics] 分析開始 user=%s provider=%s sample=%d generation=%d", username, s.provider.Name(), sampleSize, generation)

	var report string
	var charts models.ChartBundle

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		model := s.profile.ModelFor(s.provider.Name(), string(prompts.TaskAnalysis))
		text, err := s.provider.Send(gctx, analysisPrompt.Request(model))
		if err != nil {
			return err
		}
		report = text
		return nil
	})
	g.Go(func() error {
		model := s.profile.ModelFor(s.provider.Name(), string(prompts.TaskChart))
		raw, err := s.provider.Send(gctx, chartPrompt.Request(model))
		if err != nil {
			return err
		}
		bundle, err := normalize.ParseChartBundle(raw)
		if err != nil {
			return err
		}
		charts = bundle
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Printf("❌ [analytics] 分析失敗 user=%s: %v", username, err)
		return nil, err
	}

	result := &models.AnalysisResult{
		Markdown:    report,
		HTML:        s.renderer.Render(report),
		Charts:      charts,
		SampleSize:  sampleSize,
		Provider:    s.provider.Name(),
		GeneratedAt: time.Now().UTC(),
	}
	if !ws.CommitAnalysis(result, generation) {
		log.Printf("⚠️ [analytics] 古い分析結果を破棄しました user=%s generation=%d", username, generation)
		return nil, ErrAnalysisSuperseded
	}

	log.Printf("✅ [analytics] 分析完了 user=%s bar=%d pie=%d", username, len(charts.BarChart), len(charts.PieChart))
	return result, nil
}

// Latest は保存済みの最新の分析結果を返します。
func (s *AnalyticsService) Latest(username string) *models.AnalysisResult {
	return s.workspaces.Get(username).Analysis()
}
