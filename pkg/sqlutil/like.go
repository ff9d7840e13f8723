package sqlutil

import "strings"

// LikeClause は value の先頭・末尾の * をワイルドカードとして扱う条件を作る
// lower が true の場合は大文字小文字を区別しない
// 戻り値は ? を1つ含む条件と、その引数
func LikeClause(column, value string, lower bool) (string, string) {
	pattern := value
	wildcard := false
	if strings.HasPrefix(pattern, "*") {
		pattern = "%" + strings.TrimLeft(pattern, "*")
		wildcard = true
	}
	if strings.HasSuffix(pattern, "*") {
		pattern = strings.TrimRight(pattern, "*") + "%"
		wildcard = true
	}

	switch {
	case lower:
		return "LOWER(" + column + ") LIKE ?", strings.ToLower(pattern)
	case wildcard:
		return column + " LIKE ?", pattern
	default:
		return column + " = ?", value
	}
}
