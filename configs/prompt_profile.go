package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed prompt_profile.yaml
var defaultPromptProfile []byte

// PromptProfile はprompt_profile.yamlの構造を定義
type PromptProfile struct {
	// プロバイダー名 -> タスク名 -> モデルID
	Models       map[string]map[string]string `yaml:"models"`
	ModelAliases map[string]string            `yaml:"model_aliases"`

	Generation struct {
		MaxTokens   int     `yaml:"max_tokens"`
		// 未指定(nil)のときだけデフォルトを補完します。0は有効な値です。
		Temperature *float32 `yaml:"temperature"`
	} `yaml:"generation"`

	Truncation struct {
		MaxRecords int `yaml:"max_records"`
	} `yaml:"truncation"`

	Email struct {
		WordLimit       int    `yaml:"word_limit"`
		DefaultGreeting string `yaml:"default_greeting"`
		DefaultTopic    string `yaml:"default_topic"`
	} `yaml:"email"`

	SeedCustomers []SeedCustomer `yaml:"seed_customers"`
}

// SeedCustomer はワークスペース作成時に投入される顧客です。
type SeedCustomer struct {
	ID           int    `yaml:"id"`
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
	LastPurchase string `yaml:"last_purchase"`
}

// LoadPromptProfile はYAMLファイルからプロンプトプロファイルを読み込む。
// pathが空の場合は埋め込みのデフォルトプロファイルを使用します。
func LoadPromptProfile(path string) (*PromptProfile, error) {
	data := defaultPromptProfile
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("プロンプトプロファイルの読み込みに失敗: %w", err)
		}
		data = fileData
	}
	return ParsePromptProfile(data)
}

// ParsePromptProfile はYAMLをパースし、未指定の値をデフォルトで補完します。
func ParsePromptProfile(data []byte) (*PromptProfile, error) {
	var profile PromptProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("YAMLのパースに失敗: %w", err)
	}
	profile.applyDefaults()
	return &profile, nil
}

func (p *PromptProfile) applyDefaults() {
	if p.Models == nil {
		p.Models = map[string]map[string]string{}
	}
	if p.ModelAliases == nil {
		p.ModelAliases = map[string]string{}
	}
	if p.Generation.MaxTokens <= 0 {
		p.Generation.MaxTokens = 2048
	}
	if p.Generation.Temperature == nil {
		t := float32(0.2)
		p.Generation.Temperature = &t
	}
	if p.Truncation.MaxRecords <= 0 {
		p.Truncation.MaxRecords = 50
	}
	if p.Email.WordLimit <= 0 {
		p.Email.WordLimit = 100
	}
	if p.Email.DefaultGreeting == "" {
		p.Email.DefaultGreeting = "Hi"
	}
	if p.Email.DefaultTopic == "" {
		p.Email.DefaultTopic = "checking in"
	}
}

// ModelFor はプロバイダーとタスクに対応するモデルIDを返します。
// タスク固有の指定がなければ "default" を使います。
func (p *PromptProfile) ModelFor(provider, task string) string {
	models, ok := p.Models[provider]
	if !ok {
		return ""
	}
	if model := models[task]; model != "" {
		return model
	}
	return models["default"]
}
