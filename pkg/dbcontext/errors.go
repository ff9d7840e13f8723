package dbcontext

import "errors"

var (
	// ErrInvalidClientKind はアンビエントクライアントが想定外の種類の場合のエラー
	ErrInvalidClientKind = errors.New("想定外のデータベースクライアントです")
	ErrNoClient          = errors.New("クライアントファクトリがクライアントを返しませんでした")
)
