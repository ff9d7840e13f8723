package dbcontext

import (
	"context"

	"github.com/google/uuid"
)

// Context は呼び出しチェーン全体で共有される実行コンテキスト
// 現在スコープにあるクライアントを保持し、コントローラー → サービス → リポジトリと
// 明示的に引き回す。複数の goroutine から同時に使ってはいけない
type Context struct {
	id      string
	current Client
	hooks   *hookList
}

// hookList は Manager が開始したトランザクションのコミット後フック
type hookList struct {
	fns []func(ctx context.Context)
}

// NewContext は新しい実行コンテキストを作成する
func NewContext() *Context {
	return &Context{id: uuid.NewString()}
}

// NewContextWithID はリクエストIDなどを ID として実行コンテキストを作成する
func NewContextWithID(id string) *Context {
	if id == "" {
		return NewContext()
	}
	return &Context{id: id}
}

func (c *Context) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

// Current は現在のアンビエントクライアントを返す
func (c *Context) Current() Client {
	if c == nil {
		return Client{}
	}
	return c.current
}

// SetCurrent は外部で用意したクライアントをアンビエントとして設定する
// nil のコンテキストに対しては何もしない
func (c *Context) SetCurrent(cl Client) {
	if c == nil {
		return
	}
	c.current = cl
}

func (c *Context) InTransaction() bool {
	return c.Current().IsTransaction()
}

// AfterCommit はトランザクションのコミット後に実行する処理を登録する
// Manager が開始したトランザクションの中でなければ即座に実行する
// ロールバックされた場合、登録した処理は破棄される
func (c *Context) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if c == nil || c.hooks == nil {
		fn(ctx)
		return
	}
	c.hooks.fns = append(c.hooks.fns, fn)
}
