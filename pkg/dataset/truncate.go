// Package dataset はアップロードされた表データのデコードと、
// プロバイダーへ送るデータ量の制限を扱います。
package dataset

import (
	"encoding/json"
	"log"
)

// DefaultLimit はプロバイダーへ送るレコード数の既定上限です。
const DefaultLimit = 50

// Truncate はシリアライズ済みのJSON配列を先頭limit件に切り詰めます。
// 件数が上限以内なら入力をそのまま返します。配列として解析できない場合も
// 入力をそのまま返し、警告ログのみ出力します。
func Truncate(serialized string, limit int) string {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(serialized), &items); err != nil {
		log.Printf("⚠️ [truncate] JSON配列として解析できないため、そのまま送信します: %v", err)
		return serialized
	}
	if len(items) <= limit {
		return serialized
	}

	out, err := json.Marshal(items[:limit])
	if err != nil {
		log.Printf("⚠️ [truncate] 再シリアライズに失敗したため、そのまま送信します: %v", err)
		return serialized
	}
	log.Printf("📊 [truncate] Data truncated from %d to %d items for API processing.", len(items), limit)
	return string(out)
}

// RecordCount はシリアライズ済みJSON配列の要素数を返します。配列でなければ0です。
func RecordCount(serialized string) int {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(serialized), &items); err != nil {
		return 0
	}
	return len(items)
}
