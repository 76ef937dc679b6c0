package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/models"

	"github.com/xuri/excelize/v2"
)

// SupportedExtensions はアップロード可能な拡張子です。
var SupportedExtensions = []string{".xlsx", ".csv"}

// LegacyExcelMessage は旧形式(.xls)のブックがアップロードされたときの案内です。
const LegacyExcelMessage = "旧形式の.xlsファイルは読み込めません。.xlsxまたは.csvで保存し直してからアップロードしてください。"

// DecodeSpreadsheet はスプレッドシートを読み込み、ヘッダー行をキーとするレコード列に変換します。
// .xlsx は先頭シート、.csv はファイル全体を対象にします。
func DecodeSpreadsheet(r io.Reader, filename string) ([]models.SalesRecord, error) {
	var rows [][]string

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, apperrors.Parse("", "Excelファイルの読み込みに失敗しました。", err)
		}
		defer f.Close()
		rows, err = f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, apperrors.Parse("", "Excelシートの行取得に失敗しました。", err)
		}
	case ".csv":
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		var err error
		rows, err = reader.ReadAll()
		if err != nil {
			return nil, apperrors.Parse("", "CSVファイルの解析に失敗しました。", err)
		}
	case ".xls":
		// excelizeはOOXMLのみ対応で、BIFF形式の旧ブックは読めない
		return nil, apperrors.Invalid(LegacyExcelMessage)
	default:
		return nil, apperrors.Invalid("サポートされていないファイル形式です。.xlsxまたは.csvをアップロードしてください。")
	}

	if len(rows) < 2 { // ヘッダー + 1行以上
		return nil, apperrors.Invalid("ファイルにはヘッダー行と少なくとも1行のデータが必要です。")
	}

	header := normalizeHeader(rows[0])
	records := make([]models.SalesRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := models.SalesRecord{}
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			record[header[i]] = cellValue(cell)
		}
		if len(record) == 0 {
			continue
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return nil, apperrors.Invalid("ファイルにはヘッダー行と少なくとも1行のデータが必要です。")
	}

	log.Printf("📊 [upload] %s: %d列 / %d件のレコードを読み込みました", filename, len(header), len(records))
	return records, nil
}

// normalizeHeader は空の列名に位置ベースの名前を付け、重複する列名に連番を付けます。
func normalizeHeader(raw []string) []string {
	header := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 0
		}
		header[i] = name
	}
	return header
}

// cellValue は数値として解釈できるセルをfloat64に、それ以外を文字列のまま返します。
func cellValue(cell string) interface{} {
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return cell
	}
	return v
}
