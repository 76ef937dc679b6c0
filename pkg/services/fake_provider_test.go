package services

import (
	"context"
	"strings"
	"sync"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/llm"
)

// fakeProvider はプロンプト本文に含まれるキーワードごとに応答を返すテスト用Providerです。
type fakeProvider struct {
	mu       sync.Mutex
	name     string
	replies  map[string]string
	failures map[string]error
	// block が設定されていれば、キーワードに一致した呼び出しはチャネルが閉じるまで待つ
	block    map[string]chan struct{}
	requests []llm.Request
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		name:     "fake",
		replies:  map[string]string{},
		failures: map[string]error{},
		block:    map[string]chan struct{}{},
	}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Send(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	text := ""
	if len(req.Messages) > 0 {
		text = req.Messages[len(req.Messages)-1].Content
	}
	var wait chan struct{}
	for keyword, ch := range f.block {
		if strings.Contains(text, keyword) {
			wait = ch
		}
	}
	f.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for keyword, err := range f.failures {
		if strings.Contains(text, keyword) {
			return "", err
		}
	}
	for keyword, reply := range f.replies {
		if strings.Contains(text, keyword) {
			return reply, nil
		}
	}
	return llm.NoResponsePlaceholder, nil
}

func (f *fakeProvider) calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// プロンプトを識別するキーワード
const (
	analysisKeyword = "business intelligence expert"
	chartKeyword    = "generate a JSON object for a dashboard"
	emailKeyword    = "customer relationship manager"
	insightKeyword  = "CUSTOMER PERSONA"
	marketKeyword   = "Market Intelligence report"
	imageKeyword    = "handwritten bill"
)

func testProfile() *config.PromptProfile {
	profile, err := config.LoadPromptProfile("")
	if err != nil {
		panic(err)
	}
	profile.Models["fake"] = map[string]string{"default": "fake-default", "chart": "fake-chart"}
	return profile
}
