package models

import "time"

// SalesRecord はアップロードされた表データの1行です (列名 -> 文字列または数値)。
type SalesRecord map[string]interface{}

// Customer CRMの顧客
type Customer struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	LastPurchase string `json:"lastPurchase"`
}

// ChartDatum グラフの1データ点
type ChartDatum struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ChartBundle 棒グラフと円グラフの系列の組
type ChartBundle struct {
	BarChart []ChartDatum `json:"barChart"`
	PieChart []ChartDatum `json:"pieChart"`
}

// AnalysisResult 売上分析の結果 (Markdown本文 + グラフ)
type AnalysisResult struct {
	Markdown    string      `json:"markdown"`
	HTML        string      `json:"html"`
	Charts      ChartBundle `json:"charts"`
	SampleSize  int         `json:"sample_size"`
	Provider    string      `json:"provider"`
	Generation  uint64      `json:"generation"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// EmailDraft 生成されたメールの件名と本文
type EmailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TextReport Markdown形式のテキストレポート (顧客インサイト、市場レポート、画像解析)
type TextReport struct {
	Markdown    string    `json:"markdown"`
	HTML        string    `json:"html"`
	Provider    string    `json:"provider"`
	GeneratedAt time.Time `json:"generated_at"`
}

// User 登録済みユーザー
type User struct {
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}
