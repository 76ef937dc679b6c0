// Package apperrors は呼び出し側が文字列照合ではなく種別で分岐できるよう、
// エラーに明示的な種別を付与します。
package apperrors

import (
	"errors"
	"fmt"
)

// Kind はエラーの種別です。
type Kind int

const (
	// KindUnknown は種別が付与されていないエラーです。
	KindUnknown Kind = iota
	// KindConfigMissing は資格情報や設定値が未設定であることを示します。ネットワーク呼び出し前に検出されます。
	KindConfigMissing
	// KindTransport は非2xx応答またはネットワーク障害です。
	KindTransport
	// KindParse はプロバイダー応答やアップロードファイルの解析失敗です。
	KindParse
	// KindInvalidInput は必須入力の欠落など、呼び出し前に拒否される入力です。
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindConfigMissing:
		return "config_missing"
	case KindTransport:
		return "transport_failure"
	case KindParse:
		return "parse_failure"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// MarshalText はJSON出力で種別名を使うためのものです。
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error は種別付きのエラーです。
type Error struct {
	Kind     Kind
	Provider string
	// Key は未設定の設定キー名 (KindConfigMissing の場合)
	Key string
	// Status はHTTPステータス (KindTransport の場合、不明なら0)
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigMissing は未設定の設定キーを示すエラーを作成します。
func ConfigMissing(provider, key, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("Setup Required: %s is not configured. Please add %s to .env", key, key)
	}
	return &Error{Kind: KindConfigMissing, Provider: provider, Key: key, Message: message}
}

// Transport はプロバイダーの非2xx応答またはネットワーク障害を示すエラーを作成します。
func Transport(provider string, status int, message string, err error) *Error {
	return &Error{Kind: KindTransport, Provider: provider, Status: status, Message: message, Err: err}
}

// Parse は解析失敗を示すエラーを作成します。
func Parse(provider, message string, err error) *Error {
	return &Error{Kind: KindParse, Provider: provider, Message: message, Err: err}
}

// Invalid は入力不備を示すエラーを作成します。
func Invalid(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// KindOf はエラーチェーンから種別を取り出します。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is はエラーが指定された種別かどうかを返します。
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As はエラーチェーンから *Error を取り出します。
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
