// Package transform はテキスト変換・検出ジョブの処理本体を提供します。
package transform

import "fmt"

const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeEngineFailed = "ENGINE_FAILED"
	CodeBadOutput    = "ENGINE_BAD_OUTPUT"
	CodeUnsupported  = "UNSUPPORTED_JOB_TYPE"
)

// Error はクライアントに返せるエラーコードとメッセージを持つエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
