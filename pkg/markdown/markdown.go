// Package markdown はプロバイダーが返すmarkdownを、順序付きの置換ルールでHTMLに変換します。
package markdown

import (
	"fmt"
	"html"
	"regexp"
)

// Stage はルールの実行段階です。段階は昇順に実行されなければなりません。
// 改行の置換が先に走ると、見出しやリストの行頭・行末アンカーが壊れます。
type Stage int

const (
	StageBlock Stage = iota
	StageInline
	StageLineBreak
)

func (s Stage) String() string {
	switch s {
	case StageBlock:
		return "block"
	case StageInline:
		return "inline"
	case StageLineBreak:
		return "line_break"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Rule は名前付きの置換ルールです。
type Rule struct {
	Name        string
	Stage       Stage
	Pattern     *regexp.Regexp
	Replacement string
}

// Apply はルールを単体で適用します。
func (r Rule) Apply(text string) string {
	return r.Pattern.ReplaceAllString(text, r.Replacement)
}

// 標準ルール
var (
	HeadingRule = Rule{
		Name:        "heading",
		Stage:       StageBlock,
		Pattern:     regexp.MustCompile(`(?m)^#+[ \t]+(.*)$`),
		Replacement: `<h3 class="font-bold text-slate-800 mt-4 mb-2">$1</h3>`,
	}
	BoldRule = Rule{
		Name:        "bold",
		Stage:       StageInline,
		Pattern:     regexp.MustCompile(`\*\*(.*?)\*\*`),
		Replacement: `<strong>$1</strong>`,
	}
	ListItemRule = Rule{
		Name:        "list_item",
		Stage:       StageInline,
		Pattern:     regexp.MustCompile(`(?m)^[ \t]*[-*][ \t]+(.*)$`),
		Replacement: `<li class="ml-4 list-disc">$1</li>`,
	}
	LineBreakRule = Rule{
		Name:        "line_break",
		Stage:       StageLineBreak,
		Pattern:     regexp.MustCompile(`\r?\n`),
		Replacement: `<br />`,
	}
)

// Pipeline は段階順に並んだルールの列です。
type Pipeline struct {
	rules  []Rule
	escape bool
}

// NewPipeline はルールの段階順を検証してPipelineを作成します。
// escapeがtrueなら、ルール適用前に入力をHTMLエスケープします。
func NewPipeline(escape bool, rules ...Rule) (*Pipeline, error) {
	for i := 1; i < len(rules); i++ {
		if rules[i].Stage < rules[i-1].Stage {
			return nil, fmt.Errorf("rule %q (%s) cannot run after rule %q (%s)",
				rules[i].Name, rules[i].Stage, rules[i-1].Name, rules[i-1].Stage)
		}
	}
	for _, r := range rules {
		if r.Pattern == nil {
			return nil, fmt.Errorf("rule %q has no pattern", r.Name)
		}
	}
	return &Pipeline{rules: rules, escape: escape}, nil
}

// Render はテキストにルールを順に適用します。
func (p *Pipeline) Render(text string) string {
	if p.escape {
		text = html.EscapeString(text)
	}
	for _, r := range p.rules {
		text = r.Apply(text)
	}
	return text
}

// Rules は設定済みのルール名を順に返します。
func (p *Pipeline) Rules() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name
	}
	return names
}

// Default は見出し → 太字 → リスト → 改行 の標準パイプラインです。
func Default() *Pipeline {
	return &Pipeline{
		rules:  []Rule{HeadingRule, BoldRule, ListItemRule, LineBreakRule},
		escape: true,
	}
}

// LineBreaks は改行のみを置換するパイプラインです (画像解析結果の表示用)。
func LineBreaks() *Pipeline {
	return &Pipeline{rules: []Rule{LineBreakRule}, escape: true}
}
