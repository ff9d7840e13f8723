package sqlutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/blastrain/vitess-sqlparser/sqlparser"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var (
	ErrQueryRequired       = errors.New("SELECT クエリは必須です")
	ErrNotSelect           = errors.New("Paginate と TotalCount は SELECT クエリのみ対応しています")
	ErrMultipleStatements  = errors.New("複数の文は指定できません")
	ErrTrailingPlaceholder = errors.New("ORDER BY / LIMIT / OFFSET 句ではプレースホルダーを使えません")
	ErrInvalidQuery        = errors.New("クエリの解析に失敗")
)

// Querier はページングに必要なクエリ操作（*sqlx.DB, *sqlx.Tx, dbcontext.Executor が満たす）
type Querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	DriverName() string
}

// Paging はページング情報
type Paging struct {
	Offset     int `json:"offset"`
	Limit      int `json:"limit"`
	TotalCount int `json:"totalCount"`
}

// Page はページングされた結果
type Page[T any] struct {
	Items  []T    `json:"items"`
	Paging Paging `json:"paging"`
}

var logger = zap.NewNop()

// SetLogger はパッケージのロガーを設定する
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

// TotalCount は SELECT クエリが返す行の総数を取得する
//
// クエリは SELECT または WITH で始まる1文で、そのまま副問い合わせとして使う。
// プレースホルダーは ? で記述し、ドライバーに合わせて置き換える。
// 文字列リテラルや引用符付き識別子の中の ? は置き換えない。
// トップレベルの ORDER BY / LIMIT / OFFSET にはプレースホルダーを使えない。
// 字句解析は MySQL の規則に従うため、# は行コメント、文字列内の \ はエスケープとして扱う
func TotalCount(ctx context.Context, q Querier, query string, args ...interface{}) (int, error) {
	countQuery, err := buildCountQuery(q, query)
	if err != nil {
		return 0, err
	}
	var total int
	if err := q.GetContext(ctx, &total, countQuery, args...); err != nil {
		return 0, fmt.Errorf("総件数の取得に失敗: %w", err)
	}
	return total, nil
}

// Paginate は SELECT クエリを offset / limit でページングし、総件数と一緒に返す
//
// 例: 9件目から3件取得する
//
//	page, err := sqlutil.Paginate[Book](ctx, exec,
//		`SELECT id, author, title FROM books ORDER BY author`, 9, 3)
//
// 総件数のクエリと行のクエリは同じ Querier で順番に実行する
// 元のクエリの LIMIT / OFFSET 以降は取り除き、offset / limit で置き換える
func Paginate[T any](ctx context.Context, q Querier, query string, offset, limit int, args ...interface{}) (*Page[T], error) {
	if offset < 0 {
		logger.Debug("無効なオフセットのため 0 を使用", zap.Int("offset", offset))
		offset = 0
	}
	if limit < 1 {
		logger.Debug("無効なリミットのため 1 を使用", zap.Int("limit", limit))
		limit = 1
	}

	total, err := TotalCount(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}

	rowsQuery, err := buildRowsQuery(q, query, offset, limit)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := q.SelectContext(ctx, &items, rowsQuery, args...); err != nil {
		return nil, fmt.Errorf("ページの取得に失敗: %w", err)
	}
	if items == nil {
		items = []T{}
	}

	return &Page[T]{
		Items: items,
		Paging: Paging{
			Offset:     offset,
			Limit:      limit,
			TotalCount: total,
		},
	}, nil
}

func buildCountQuery(q Querier, query string) (string, error) {
	sq, err := scanSelect(query)
	if err != nil {
		return "", err
	}
	body, err := sq.bind(sq.cut(sq.orderStart, sq.limitStart), sqlx.BindType(q.DriverName()))
	if err != nil {
		return "", err
	}
	return "SELECT COUNT(*) FROM (\n" + body + "\n) AS _sub", nil
}

func buildRowsQuery(q Querier, query string, offset, limit int) (string, error) {
	sq, err := scanSelect(query)
	if err != nil {
		return "", err
	}
	body, err := sq.bind(sq.cut(sq.limitStart), sqlx.BindType(q.DriverName()))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\nLIMIT %d OFFSET %d", body, limit, offset), nil
}

// selectQuery は呼び出し元のクエリ文字列と、トップレベルの句とプレースホルダーの位置
// クエリ本体は書き換えずにそのまま使う
type selectQuery struct {
	text         string
	orderStart   int // ORDER BY の位置。なければ -1
	limitStart   int // LIMIT または OFFSET の位置。なければ -1
	placeholders []int
}

// scanSelect はトークナイザーでクエリを走査する
// 方言に依存する構文（$1, ::, ILIKE など）は解釈せずに読み飛ばす
func scanSelect(query string) (*selectQuery, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrQueryRequired
	}

	sq := &selectQuery{orderStart: -1, limitStart: -1}
	tkn := sqlparser.NewStringTokenizer(query)
	var (
		depth      int
		end        int
		first      = true
		terminated = -1
	)
	for {
		start := skipBlank(query, end)
		typ, _ := tkn.Scan()
		// トークナイザーは常に1文字先読みしている
		end = tkn.Position - 1
		if typ == 0 {
			break
		}
		if typ == sqlparser.COMMENT {
			continue
		}
		if terminated >= 0 {
			return nil, ErrMultipleStatements
		}
		if first {
			if typ != sqlparser.SELECT && typ != sqlparser.WITH {
				return nil, ErrNotSelect
			}
			first = false
		}

		switch typ {
		case sqlparser.LEX_ERROR:
			if start < len(query) && (strings.IndexByte("'\"`", query[start]) >= 0 || strings.HasPrefix(query[start:], "/*")) {
				return nil, fmt.Errorf("%w: 閉じられていない引用符またはコメントがあります（位置 %d）", ErrInvalidQuery, start)
			}
		case '(':
			depth++
		case ')':
			depth--
		case ';':
			if depth == 0 {
				terminated = start
			}
		case sqlparser.VALUE_ARG:
			if query[start] == '?' {
				sq.placeholders = append(sq.placeholders, start)
			}
		case sqlparser.ORDER:
			if depth == 0 {
				sq.orderStart = start
			}
		case sqlparser.LIMIT, sqlparser.OFFSET:
			if depth == 0 && sq.limitStart < 0 {
				sq.limitStart = start
			}
		}
	}
	if first {
		return nil, ErrNotSelect
	}
	if terminated >= 0 {
		query = query[:terminated]
	}
	sq.text = query
	return sq, nil
}

// cut は指定した位置のうち最も前にあるものを返す。どれもなければクエリの末尾
func (sq *selectQuery) cut(positions ...int) int {
	end := len(sq.text)
	for _, p := range positions {
		if p >= 0 && p < end {
			end = p
		}
	}
	return end
}

// bind は end までのクエリを返す。? はドライバーのプレースホルダーに置き換える
func (sq *selectQuery) bind(end int, bindType int) (string, error) {
	var b strings.Builder
	last := 0
	for i, p := range sq.placeholders {
		if p >= end {
			return "", ErrTrailingPlaceholder
		}
		b.WriteString(sq.text[last:p])
		b.WriteString(bindVar(bindType, i+1))
		last = p + 1
	}
	b.WriteString(strings.TrimRight(sq.text[last:end], " \t\r\n"))
	return b.String(), nil
}

// bindVar は sqlx.Rebind と同じ形式のプレースホルダーを返す
func bindVar(bindType, n int) string {
	switch bindType {
	case sqlx.DOLLAR:
		return "$" + strconv.Itoa(n)
	case sqlx.NAMED:
		return ":arg" + strconv.Itoa(n)
	case sqlx.AT:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

func skipBlank(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\n' || s[i] == '\r' || s[i] == '\t') {
		i++
	}
	return i
}
