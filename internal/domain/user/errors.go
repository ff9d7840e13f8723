package user

import "errors"

// User ドメインのエラー定義
var (
	ErrUserNotFound       = errors.New("ユーザーが見つかりません")
	ErrFirstNameRequired  = errors.New("名は必須です")
	ErrLastNameRequired   = errors.New("姓は必須です")
	ErrInvalidEmail       = errors.New("メールアドレスが不正です")
	ErrEmailAlreadyExists = errors.New("メールアドレスは既に登録されています")
	ErrNothingToRename    = errors.New("変更する氏名がありません")
)
