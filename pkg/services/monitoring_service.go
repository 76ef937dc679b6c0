package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/llm"

	"github.com/gin-gonic/gin"
)

// 保持するログの上限。古いものから捨てる。
const (
	maxRequestLogs  = 5000
	maxProviderLogs = 1000
)

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
}

// ProviderCall はLLMプロバイダー呼び出し1回分の記録です。
type ProviderCall struct {
	Timestamp time.Time      `json:"timestamp"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Outcome   apperrors.Kind `json:"outcome"`
	Success   bool           `json:"success"`
	Latency   time.Duration  `json:"latency"`
}

// MonitoringService はAPIとプロバイダー呼び出しのモニタリング機能を提供します。
type MonitoringService struct {
	logs  []LogEntry
	calls []ProviderCall
	mu    sync.RWMutex
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
func NewMonitoringService() *MonitoringService {
	return &MonitoringService{
		logs:  make([]LogEntry, 0),
		calls: make([]ProviderCall, 0),
	}
}

// LogRequest はリクエストを記録します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxRequestLogs {
		s.logs = s.logs[len(s.logs)-maxRequestLogs:]
	}
}

// RecordProviderCall はプロバイダー呼び出しの結果を記録します。
func (s *MonitoringService) RecordProviderCall(provider, model string, started time.Time, err error) {
	call := ProviderCall{
		Timestamp: started,
		Provider:  provider,
		Model:     model,
		Outcome:   apperrors.KindOf(err),
		Success:   err == nil,
		Latency:   time.Since(started),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if len(s.calls) > maxProviderLogs {
		s.calls = s.calls[len(s.calls)-maxProviderLogs:]
	}
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// 管理系・モニタリング系は記録しない
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/v1/admin") || strings.HasPrefix(path, "/api/v1/monitoring") {
			return
		}

		// ルートテンプレートで集計する (/crm/customers/:id/email など)
		route := c.FullPath()
		if route == "" {
			route = path
		}
		s.LogRequest(LogEntry{
			Timestamp:    start,
			Path:         route,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
		})
	}
}

// Instrument はProviderを包み、呼び出しごとの結果を記録します。
func (s *MonitoringService) Instrument(p llm.Provider) llm.Provider {
	return &instrumentedProvider{Provider: p, monitor: s}
}

type instrumentedProvider struct {
	llm.Provider
	monitor *MonitoringService
}

func (p *instrumentedProvider) Send(ctx context.Context, req llm.Request) (string, error) {
	start := time.Now()
	text, err := p.Provider.Send(ctx, req)
	p.monitor.RecordProviderCall(p.Provider.Name(), req.Model, start, err)
	return text, err
}

// ProviderStats はプロバイダーごとの集計です。
type ProviderStats struct {
	Provider     string         `json:"provider"`
	Calls        int            `json:"calls"`
	Failures     map[string]int `json:"failures"`
	AvgLatencyMs int64          `json:"avgLatencyMs"`
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []map[string]interface{} `json:"requestsOverTime"`
	Endpoints        map[string]int           `json:"endpoints"`
	StatusCodes      []map[string]interface{} `json:"statusCodes"`
	AvgResponseTimes []map[string]interface{} `json:"avgResponseTimes"`
	RecentErrors     []LogEntry               `json:"recentErrors"`
	Providers        []ProviderStats          `json:"providers"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filteredLogs := make([]LogEntry, 0)
	for _, entry := range s.logs {
		if entry.Timestamp.After(since) {
			filteredLogs = append(filteredLogs, entry)
		}
	}

	// requestsOverTime: 過去から現在へ1時間ごと
	requestsOverTime := make([]map[string]interface{}, periodHours)
	bucketIndex := make(map[int64]int, periodHours)
	for i := 0; i < periodHours; i++ {
		bucket := now.Add(-time.Duration(periodHours-1-i) * time.Hour).Truncate(time.Hour)
		bucketIndex[bucket.Unix()] = i
		requestsOverTime[i] = map[string]interface{}{"time": bucket.Format("15:00"), "requests": 0}
	}
	for _, entry := range filteredLogs {
		if i, ok := bucketIndex[entry.Timestamp.Truncate(time.Hour).Unix()]; ok {
			requestsOverTime[i]["requests"] = requestsOverTime[i]["requests"].(int) + 1
		}
	}

	endpoints := make(map[string]int)
	statusCodes := map[string]int{"2xx Success": 0, "4xx Client Error": 0, "5xx Server Error": 0}
	responseTimeSum := make(map[string]time.Duration)
	for _, entry := range filteredLogs {
		endpoints[entry.Path]++
		responseTimeSum[entry.Path] += entry.ResponseTime
		switch {
		case entry.StatusCode >= 200 && entry.StatusCode < 300:
			statusCodes["2xx Success"]++
		case entry.StatusCode >= 400 && entry.StatusCode < 500:
			statusCodes["4xx Client Error"]++
		case entry.StatusCode >= 500:
			statusCodes["5xx Server Error"]++
		}
	}

	statusCodesSlice := make([]map[string]interface{}, 0, len(statusCodes))
	for _, name := range []string{"2xx Success", "4xx Client Error", "5xx Server Error"} {
		statusCodesSlice = append(statusCodesSlice, map[string]interface{}{"name": name, "value": statusCodes[name]})
	}

	avgResponseTimes := make([]map[string]interface{}, 0, len(responseTimeSum))
	for path, total := range responseTimeSum {
		avg := total.Milliseconds() / int64(endpoints[path])
		avgResponseTimes = append(avgResponseTimes, map[string]interface{}{"endpoint": path, "responseTime": avg})
	}
	sort.Slice(avgResponseTimes, func(i, j int) bool {
		return avgResponseTimes[i]["endpoint"].(string) < avgResponseTimes[j]["endpoint"].(string)
	})

	recentErrors := make([]LogEntry, 0)
	for i := len(filteredLogs) - 1; i >= 0 && len(recentErrors) < 10; i-- {
		if filteredLogs[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filteredLogs[i])
		}
	}

	return DashboardData{
		RequestsOverTime: requestsOverTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodesSlice,
		AvgResponseTimes: avgResponseTimes,
		RecentErrors:     recentErrors,
		Providers:        s.providerStats(since),
	}
}

func (s *MonitoringService) providerStats(since time.Time) []ProviderStats {
	byProvider := make(map[string]*ProviderStats)
	latency := make(map[string]time.Duration)
	for _, call := range s.calls {
		if !call.Timestamp.After(since) {
			continue
		}
		stats, ok := byProvider[call.Provider]
		if !ok {
			stats = &ProviderStats{Provider: call.Provider, Failures: map[string]int{}}
			byProvider[call.Provider] = stats
		}
		stats.Calls++
		latency[call.Provider] += call.Latency
		if !call.Success {
			stats.Failures[call.Outcome.String()]++
		}
	}

	out := make([]ProviderStats, 0, len(byProvider))
	for name, stats := range byProvider {
		stats.AvgLatencyMs = latency[name].Milliseconds() / int64(stats.Calls)
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
