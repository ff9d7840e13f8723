package audit

import "time"

// Kind は監査ログの種類
type Kind string

const (
	KindCreated Kind = "created"
	KindRenamed Kind = "renamed"
	KindDeleted Kind = "deleted"
)

// Entry はユーザー操作の監査ログ
type Entry struct {
	ID        int64
	UserID    int64
	Kind      Kind
	Detail    string
	CreatedAt time.Time
}

// NewEntry は新しい監査ログを作成する
func NewEntry(userID int64, kind Kind, detail string) *Entry {
	return &Entry{
		UserID:    userID,
		Kind:      kind,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}
