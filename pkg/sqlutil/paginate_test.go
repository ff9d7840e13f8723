package sqlutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type book struct {
	ID     int64  `db:"id"`
	Author string `db:"author"`
	Title  string `db:"title"`
}

func setupBooks(t *testing.T, n int) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	db.MustExec(`CREATE TABLE books (id INTEGER PRIMARY KEY AUTOINCREMENT, author TEXT NOT NULL, title TEXT NOT NULL)`)
	// 逆順で挿入して ORDER BY が効いていることを確認する
	for i := n; i >= 1; i-- {
		db.MustExec(`INSERT INTO books (author, title) VALUES (?, ?)`, fmt.Sprintf("author-%02d", i), fmt.Sprintf("Title %d", i))
	}
	return db
}

func TestPaginate(t *testing.T) {
	ctx := context.Background()
	db := setupBooks(t, 20)

	t.Run("オフセット9から3件取得できる", func(t *testing.T) {
		page, err := Paginate[book](ctx, db, `SELECT id, author, title FROM books ORDER BY author`, 9, 3)
		require.NoError(t, err)

		require.Len(t, page.Items, 3)
		assert.Equal(t, "author-10", page.Items[0].Author)
		assert.Equal(t, "author-11", page.Items[1].Author)
		assert.Equal(t, "author-12", page.Items[2].Author)
		assert.Equal(t, Paging{Offset: 9, Limit: 3, TotalCount: 20}, page.Paging)
	})

	t.Run("条件付きのクエリでも総件数は条件に従う", func(t *testing.T) {
		page, err := Paginate[book](ctx, db, `SELECT id, author, title FROM books WHERE author LIKE ? ORDER BY author`, 0, 5, "author-1%")
		require.NoError(t, err)

		assert.Equal(t, 10, page.Paging.TotalCount)
		require.Len(t, page.Items, 5)
		assert.Equal(t, "author-10", page.Items[0].Author)
	})

	t.Run("元のクエリの LIMIT は置き換えられる", func(t *testing.T) {
		page, err := Paginate[book](ctx, db, `SELECT id, author, title FROM books ORDER BY author LIMIT 2`, 0, 4)
		require.NoError(t, err)

		assert.Equal(t, 20, page.Paging.TotalCount)
		assert.Len(t, page.Items, 4)
	})

	t.Run("無効なオフセットとリミットは補正される", func(t *testing.T) {
		page, err := Paginate[book](ctx, db, `SELECT id, author, title FROM books ORDER BY author`, -5, 0)
		require.NoError(t, err)

		assert.Equal(t, 0, page.Paging.Offset)
		assert.Equal(t, 1, page.Paging.Limit)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "author-01", page.Items[0].Author)
	})

	t.Run("範囲外のページは空のスライスを返す", func(t *testing.T) {
		page, err := Paginate[book](ctx, db, `SELECT id, author, title FROM books`, 100, 10)
		require.NoError(t, err)

		assert.NotNil(t, page.Items)
		assert.Empty(t, page.Items)
		assert.Equal(t, 20, page.Paging.TotalCount)
	})

	t.Run("トランザクションの中でも使える", func(t *testing.T) {
		tx, err := db.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		_, err = tx.Exec(`INSERT INTO books (author, title) VALUES ('author-21', 'Title 21')`)
		require.NoError(t, err)

		page, err := Paginate[book](ctx, tx, `SELECT id, author, title FROM books ORDER BY author`, 20, 5)
		require.NoError(t, err)
		assert.Equal(t, 21, page.Paging.TotalCount)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "author-21", page.Items[0].Author)
	})
}

func TestTotalCount(t *testing.T) {
	ctx := context.Background()
	db := setupBooks(t, 7)

	total, err := TotalCount(ctx, db, `SELECT id FROM books WHERE author <> ? ORDER BY id DESC`, "author-01")
	require.NoError(t, err)
	assert.Equal(t, 6, total)
}

func TestPaginate_QueryText(t *testing.T) {
	ctx := context.Background()
	db := setupBooks(t, 3)
	db.MustExec(`INSERT INTO books (author, title) VALUES ('a', 'x:v1y'), ('a', 'what?')`)

	t.Run("文字列リテラル内の :v1 はプレースホルダーとして扱わない", func(t *testing.T) {
		page, err := Paginate[book](ctx, db, `SELECT id, author, title FROM books WHERE title = 'x:v1y' AND author = ?`, 0, 10, "a")
		require.NoError(t, err)

		assert.Equal(t, 1, page.Paging.TotalCount)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "x:v1y", page.Items[0].Title)
	})

	t.Run("文字列リテラル内の ? はプレースホルダーとして扱わない", func(t *testing.T) {
		page, err := Paginate[book](ctx, db, `SELECT id, author, title FROM books WHERE title = 'what?' AND author = ?`, 0, 10, "a")
		require.NoError(t, err)

		assert.Equal(t, 1, page.Paging.TotalCount)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "what?", page.Items[0].Title)
	})

	t.Run("ダブルクォートの識別子は列として扱われる", func(t *testing.T) {
		page, err := Paginate[book](ctx, db, `SELECT id, author, "title" FROM books ORDER BY id`, 0, 2)
		require.NoError(t, err)

		assert.Equal(t, 5, page.Paging.TotalCount)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "Title 3", page.Items[0].Title)
	})

	t.Run("末尾のセミコロンと行コメント", func(t *testing.T) {
		page, err := Paginate[book](ctx, db, "SELECT id, author, title FROM books ORDER BY id; -- 全件", 3, 10)
		require.NoError(t, err)

		assert.Equal(t, 5, page.Paging.TotalCount)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "x:v1y", page.Items[0].Title)
	})

	t.Run("行コメントで終わるクエリ", func(t *testing.T) {
		total, err := TotalCount(ctx, db, "SELECT id FROM books WHERE author = ? -- 著者で絞り込む", "a")
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})
}

func TestPaginate_InvalidQuery(t *testing.T) {
	ctx := context.Background()
	db := setupBooks(t, 1)

	t.Run("空のクエリはエラー", func(t *testing.T) {
		_, err := Paginate[book](ctx, db, "  ", 0, 10)
		assert.ErrorIs(t, err, ErrQueryRequired)
	})

	tests := []struct {
		name    string
		query   string
		wantErr error
	}{
		{"SELECT 以外", `UPDATE books SET title = 'x'`, ErrNotSelect},
		{"SELECT で始まらない", `SELEKT nope`, ErrNotSelect},
		{"コメントのみ", `-- nothing`, ErrNotSelect},
		{"複数の文", `SELECT id FROM books; DELETE FROM books`, ErrMultipleStatements},
		{"閉じられていない文字列", `SELECT id FROM books WHERE title = 'abc`, ErrInvalidQuery},
		{"閉じられていないコメント", `SELECT id FROM books /* abc`, ErrInvalidQuery},
		{"LIMIT のプレースホルダー", `SELECT id FROM books ORDER BY id LIMIT ?`, ErrTrailingPlaceholder},
		{"ORDER BY のプレースホルダー", `SELECT id FROM books ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END`, ErrTrailingPlaceholder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TotalCount(ctx, db, tt.query, 1)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildQueries(t *testing.T) {
	pg := sqlx.NewDb(nil, "postgres")
	query := `SELECT id, author FROM books WHERE author = ? AND title = ? ORDER BY author`

	t.Run("総件数のクエリは ORDER BY を含まない", func(t *testing.T) {
		q, err := buildCountQuery(pg, query)
		require.NoError(t, err)

		assert.Equal(t, "SELECT COUNT(*) FROM (\nSELECT id, author FROM books WHERE author = $1 AND title = $2\n) AS _sub", q)
	})

	t.Run("行のクエリは ORDER BY を保持し LIMIT / OFFSET を付与する", func(t *testing.T) {
		q, err := buildRowsQuery(pg, query, 30, 15)
		require.NoError(t, err)

		assert.Equal(t, "SELECT id, author FROM books WHERE author = $1 AND title = $2 ORDER BY author\nLIMIT 15 OFFSET 30", q)
	})

	t.Run("? を使うドライバーではそのまま", func(t *testing.T) {
		q, err := buildCountQuery(sqlx.NewDb(nil, "mysql"), query)
		require.NoError(t, err)
		assert.Contains(t, q, "author = ? AND title = ?")
	})

	t.Run("元の LIMIT / OFFSET は取り除かれる", func(t *testing.T) {
		q, err := buildRowsQuery(pg, `SELECT id FROM books ORDER BY id LIMIT 10 OFFSET 5`, 0, 3)
		require.NoError(t, err)
		assert.Equal(t, "SELECT id FROM books ORDER BY id\nLIMIT 3 OFFSET 0", q)
	})
}

func TestBuildCountQuery_KeepsQueryText(t *testing.T) {
	pg := sqlx.NewDb(nil, "postgres")

	tests := []struct {
		name  string
		query string
		body  string
	}{
		{
			name:  "文字列リテラル",
			query: `SELECT id FROM books WHERE title = 'x:v1y?' AND author = ?`,
			body:  `SELECT id FROM books WHERE title = 'x:v1y?' AND author = $1`,
		},
		{
			name:  "引用符付き識別子",
			query: `SELECT "id", "key" FROM books WHERE "title" = ? ORDER BY "id"`,
			body:  `SELECT "id", "key" FROM books WHERE "title" = $1`,
		},
		{
			name:  "PostgreSQL の構文",
			query: `SELECT id FROM books WHERE title ILIKE $1 AND created_at > now() - INTERVAL '1 day' AND key::text = $2 ORDER BY id`,
			body:  `SELECT id FROM books WHERE title ILIKE $1 AND created_at > now() - INTERVAL '1 day' AND key::text = $2`,
		},
		{
			name:  "副問い合わせの ORDER BY / LIMIT は残す",
			query: `SELECT id FROM books WHERE id IN (SELECT id FROM books ORDER BY id LIMIT 3) ORDER BY id`,
			body:  `SELECT id FROM books WHERE id IN (SELECT id FROM books ORDER BY id LIMIT 3)`,
		},
		{
			name:  "ウィンドウ関数",
			query: `SELECT id, ROW_NUMBER() OVER (ORDER BY author) AS rn FROM books`,
			body:  `SELECT id, ROW_NUMBER() OVER (ORDER BY author) AS rn FROM books`,
		},
		{
			name:  "WITH 句",
			query: `WITH a AS (SELECT id FROM books WHERE author = ?) SELECT id FROM a ORDER BY id`,
			body:  `WITH a AS (SELECT id FROM books WHERE author = $1) SELECT id FROM a`,
		},
		{
			name:  "コメント内の ORDER BY",
			query: `SELECT id /* ORDER BY x */ FROM books`,
			body:  `SELECT id /* ORDER BY x */ FROM books`,
		},
		{
			name:  "末尾のセミコロン",
			query: `SELECT id FROM books ;`,
			body:  `SELECT id FROM books`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := buildCountQuery(pg, tt.query)
			require.NoError(t, err)
			assert.Equal(t, "SELECT COUNT(*) FROM (\n"+tt.body+"\n) AS _sub", q)
		})
	}
}

func TestLikeClause(t *testing.T) {
	t.Run("ワイルドカードなし", func(t *testing.T) {
		clause, arg := LikeClause("last_name", "Tremblay", false)
		assert.Equal(t, "last_name = ?", clause)
		assert.Equal(t, "Tremblay", arg)
	})

	t.Run("前方と後方のワイルドカード", func(t *testing.T) {
		clause, arg := LikeClause("last_name", "*rem*", false)
		assert.Equal(t, "last_name LIKE ?", clause)
		assert.Equal(t, "%rem%", arg)
	})

	t.Run("小文字化", func(t *testing.T) {
		clause, arg := LikeClause("last_name", "Trem*", true)
		assert.Equal(t, "LOWER(last_name) LIKE ?", clause)
		assert.Equal(t, "trem%", arg)
	})

	t.Run("ワイルドカードのみ", func(t *testing.T) {
		_, arg := LikeClause("last_name", "*", false)
		assert.Equal(t, "%", arg)
	})
}
