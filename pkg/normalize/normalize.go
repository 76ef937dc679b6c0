// Package normalize はプロバイダーの生テキストを呼び出し側が期待する形に変換します。
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/models"
)

var (
	leadingFence  = regexp.MustCompile("^```(?:json|JSON)?[ \t]*\n?")
	trailingFence = regexp.MustCompile("\n?```$")

	subjectPattern = regexp.MustCompile(`Subject:\s*(.*)`)
	bodyPattern    = regexp.MustCompile(`Body:\s*([\s\S]*)`)
)

// StripCodeFence は前後の空白と、先頭の ```json / ``` および末尾の ``` を取り除きます。
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// rawDatum は値の型を検証するため value を未解析のまま受け取ります。
type rawDatum struct {
	Name  *string         `json:"name"`
	Value json.RawMessage `json:"value"`
}

type rawBundle struct {
	BarChart *[]rawDatum `json:"barChart"`
	PieChart *[]rawDatum `json:"pieChart"`
}

// ParseChartBundle はチャート用JSONを解析します。
// 両方のキーが必要で、各要素は空でない name と数値の value を持たなければなりません。
// 不正な要素は変換せずに解析エラーとします。
func ParseChartBundle(raw string) (models.ChartBundle, error) {
	cleaned := StripCodeFence(raw)

	var bundle rawBundle
	if err := json.Unmarshal([]byte(cleaned), &bundle); err != nil {
		return models.ChartBundle{}, apperrors.Parse("", "チャートデータのJSON解析に失敗しました", err)
	}
	if bundle.BarChart == nil || bundle.PieChart == nil {
		return models.ChartBundle{}, apperrors.Parse("", `チャートデータに "barChart" と "pieChart" の両方が必要です`, nil)
	}

	bar, err := convertSeries("barChart", *bundle.BarChart)
	if err != nil {
		return models.ChartBundle{}, err
	}
	pie, err := convertSeries("pieChart", *bundle.PieChart)
	if err != nil {
		return models.ChartBundle{}, err
	}
	return models.ChartBundle{BarChart: bar, PieChart: pie}, nil
}

func convertSeries(key string, items []rawDatum) ([]models.ChartDatum, error) {
	out := make([]models.ChartDatum, 0, len(items))
	for i, item := range items {
		if item.Name == nil || strings.TrimSpace(*item.Name) == "" {
			return nil, apperrors.Parse("", fmt.Sprintf("%s[%d]: name が空です", key, i), nil)
		}
		var value float64
		if len(item.Value) == 0 || string(item.Value) == "null" || json.Unmarshal(item.Value, &value) != nil {
			return nil, apperrors.Parse("", fmt.Sprintf("%s[%d]: value が数値ではありません (%s)", key, i, string(item.Value)), nil)
		}
		out = append(out, models.ChartDatum{Name: *item.Name, Value: value})
	}
	return out, nil
}

// SplitEmail は生成されたテキストを件名と本文に分割します。
// どちらかのパターンが一致しない場合は "Update for <顧客名>" を件名、生テキスト全体を本文とします。
func SplitEmail(raw, customerName string) models.EmailDraft {
	subject := subjectPattern.FindStringSubmatch(raw)
	body := bodyPattern.FindStringSubmatch(raw)
	if subject == nil || body == nil {
		return models.EmailDraft{Subject: "Update for " + customerName, Body: raw}
	}
	return models.EmailDraft{
		Subject: strings.TrimSpace(subject[1]),
		Body:    strings.TrimSpace(body[1]),
	}
}
