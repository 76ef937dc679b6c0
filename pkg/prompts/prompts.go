// Package prompts はタスクごとのプロンプトを組み立てます。
// すべて純粋な文字列テンプレートで、I/Oは行いません。
package prompts

import (
	"fmt"
	"strings"

	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/llm"
)

// Task はプロンプトの種類です。プロファイルのモデル選択キーも兼ねます。
type Task string

const (
	TaskAnalysis        Task = "analysis"
	TaskChart           Task = "chart"
	TaskEmail           Task = "email"
	TaskInsight         Task = "insight"
	TaskMarket          Task = "market"
	TaskImageAnalysis   Task = "image_analysis"
	TaskImageGeneration Task = "image_generation"
	TaskImageEdit       Task = "image_edit"
)

// 既定値
const (
	DefaultGreeting  = "Hi"
	DefaultTopic     = "checking in"
	DefaultWordLimit = 100
)

// Prompt は送信準備の整ったプロンプトです。
type Prompt struct {
	Task     Task
	Text     string
	JSONMode bool
	Schema   *llm.Schema
}

// Request はモデルIDを付与してプロバイダーへのリクエストに変換します。
func (p Prompt) Request(model string) llm.Request {
	req := llm.UserPrompt(p.Text, model, p.JSONMode)
	req.Schema = p.Schema
	return req
}

// ChartBundleSchema は {barChart: [{name,value}], pieChart: [{name,value}]} のスキーマです。
func ChartBundleSchema() *llm.Schema {
	series := func() *llm.Schema {
		return &llm.Schema{
			Type: llm.TypeArray,
			Items: &llm.Schema{
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"name":  {Type: llm.TypeString},
					"value": {Type: llm.TypeNumber},
				},
				Required: []string{"name", "value"},
			},
		}
	}
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"barChart": series(),
			"pieChart": series(),
		},
		Required: []string{"barChart", "pieChart"},
	}
}

// Analysis は売上データの分析レポート (markdown) を依頼するプロンプトです。
func Analysis(dataJSON string, sampleSize int) (Prompt, error) {
	if strings.TrimSpace(dataJSON) == "" {
		return Prompt{}, apperrors.Invalid("No sales data uploaded. Please upload a spreadsheet first.")
	}
	text := fmt.Sprintf(`You are a business intelligence expert for small businesses.
Analyze the following sales data (showing a sample of %d records) and provide:
1. A brief, easy-to-understand summary of the key findings.
2. Identification of the highest and lowest sales periods/products.
3. A data-driven prediction for future business trends based on this data.
4. Actionable recommendations for the business owner.

Format your response in beautiful, clear markdown with headings, bullets, and bold text. NO RAW JSON.

Here is the sales data in JSON format:
%s`, sampleSize, dataJSON)
	return Prompt{Task: TaskAnalysis, Text: text}, nil
}

// Chart はダッシュボード用のチャートデータ (JSONのみ) を依頼するプロンプトです。
func Chart(dataJSON string, sampleSize int) (Prompt, error) {
	if strings.TrimSpace(dataJSON) == "" {
		return Prompt{}, apperrors.Invalid("No sales data uploaded. Please upload a spreadsheet first.")
	}
	text := fmt.Sprintf(`Based on the following sales data (sample of %d records), generate a JSON object for a dashboard.
The JSON object should have two properties: "barChart" and "pieChart".
"barChart" should be an array of objects for a bar chart, with each object having "name" (e.g., month or product) and "value" (e.g., total sales).
"pieChart" should be an array of objects for a pie chart, with each object having "name" (e.g., category) and "value" (e.g., sales count or amount).
Choose the most relevant data points to visualize.

IMPORTANT: Return ONLY the raw JSON string. Do not include markdown formatting like `+"```json"+`.

Sales Data:
%s`, sampleSize, dataJSON)
	return Prompt{Task: TaskChart, Text: text, JSONMode: true, Schema: ChartBundleSchema()}, nil
}

// EmailInput はメール下書きプロンプトの入力です。
type EmailInput struct {
	CustomerName string
	LastPurchase string
	Greeting     string
	Topic        string
	WordLimit    int
}

// Email は件名と本文からなるプレーンテキストのメールを依頼するプロンプトです。
func Email(in EmailInput) (Prompt, error) {
	if strings.TrimSpace(in.CustomerName) == "" {
		return Prompt{}, apperrors.Invalid("Please select a customer first.")
	}
	if in.Greeting == "" {
		in.Greeting = DefaultGreeting
	}
	if in.Topic == "" {
		in.Topic = DefaultTopic
	}
	if in.WordLimit <= 0 {
		in.WordLimit = DefaultWordLimit
	}
	text := fmt.Sprintf(`You are a customer relationship manager. Write a short, professional, and friendly email to a customer.
Customer Name: %s
Last Item Purchased: %s
Greeting Style: %s
Specific Topic/Goal: %s

Requirements:
1. Use the name and last purchase naturally.
2. Keep it under %d words.
3. Clear and helpful subject line.
4. No [Placeholders].
5. Output in plain text (no markdown formatting symbols like # or *).

Email structure:
Subject: ...

Body: ...`, in.CustomerName, in.LastPurchase, in.Greeting, in.Topic, in.WordLimit)
	return Prompt{Task: TaskEmail, Text: text}, nil
}

// Insight は顧客のペルソナ・次回購入予測・アップセル戦略を依頼するプロンプトです。
func Insight(customerName, purchaseHistory string) (Prompt, error) {
	if strings.TrimSpace(customerName) == "" {
		return Prompt{}, apperrors.Invalid("Please select a customer first.")
	}
	text := fmt.Sprintf(`Analyze this customer: %q who previously bought %q.
Define their CUSTOMER PERSONA (e.g. Budget Conscious, Tech Enthusiast, Busy Professional).
Predict their NEXT LIKELY PURCHASE.
Suggest a TAILORED UPSELL STRATEGY.

Format in clean Markdown.`, customerName, purchaseHistory)
	return Prompt{Task: TaskInsight, Text: text}, nil
}

// Market は業界の市場調査レポートを依頼するプロンプトです。
func Market(industry string) (Prompt, error) {
	industry = strings.TrimSpace(industry)
	if industry == "" {
		return Prompt{}, apperrors.Invalid("Please enter an industry.")
	}
	text := fmt.Sprintf(`You are a high-end business consultant. Provide a detailed Market Intelligence report for the %q industry.
Include:
1. CURRENT TRENDS: What's happening right now?
2. COMPETITIVE LANDSCAPE: Who are the major players and what are they doing?
3. OPPORTUNITIES: Where can a small business win?
4. STRATEGIC ADVICE: 3 clear steps for the next 6 months.

Format in beautiful Markdown with emojis and bold highlights.`, industry)
	return Prompt{Task: TaskMarket, Text: text}, nil
}

// ImageAnalysis は請求書などの画像から明細を抽出するプロンプトです。画像は添付で送ります。
func ImageAnalysis() Prompt {
	return Prompt{
		Task: TaskImageAnalysis,
		Text: "Analyze this image, which is likely a handwritten bill or business document. " +
			"Extract all relevant information such as items, quantities, prices, and totals. " +
			"If it's not a bill, describe the content in detail from a business perspective. " +
			"Present the extracted data in a clean, structured format (like a table in markdown).",
	}
}

// 画像サイズ
const (
	ImageSize1K = "1K"
	ImageSize2K = "2K"
	ImageSize4K = "4K"
)

// ImageGeneration は画像生成プロンプトです。sizeは 1K / 2K / 4K (空なら1K)。
func ImageGeneration(description, size string) (Prompt, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Prompt{}, apperrors.Invalid("Please enter a prompt.")
	}
	switch size {
	case "":
		size = ImageSize1K
	case ImageSize1K, ImageSize2K, ImageSize4K:
	default:
		return Prompt{}, apperrors.Invalid(fmt.Sprintf("Unsupported image size %q (use 1K, 2K or 4K).", size))
	}
	text := fmt.Sprintf("%s\n\nRender a square (1:1) image at %s resolution.", description, size)
	return Prompt{Task: TaskImageGeneration, Text: text}, nil
}

// ImageEdit は添付画像の編集指示です。
func ImageEdit(instruction string) (Prompt, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return Prompt{}, apperrors.Invalid("Please enter an edit instruction.")
	}
	return Prompt{Task: TaskImageEdit, Text: instruction}, nil
}
