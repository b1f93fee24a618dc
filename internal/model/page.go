package model

import (
	"math"
	"strconv"
	"strings"
)

// 一覧のページング既定値。
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// MaxPage はpageの上限。これを超える値は丸められ、空のページとして扱われる。
const MaxPage = math.MaxInt32

// ParsePageParams はpage/limitのクエリ値を解釈する。
// 正の整数でない値は既定値に戻し、limitはMaxLimit、pageはMaxPageで頭打ちにする。
func ParsePageParams(page, limit string) (int, int) {
	p := positiveOr(page, DefaultPage)
	if p > MaxPage {
		p = MaxPage
	}
	l := positiveOr(limit, DefaultLimit)
	if l > MaxLimit {
		l = MaxLimit
	}
	return p, l
}

// PageOffset はスキップ件数 (page-1)*limit を返す。
// 乗算がintに収まらない場合はmath.MaxIntに飽和させる。
func PageOffset(page, limit int) int {
	if page < 1 || limit < 1 {
		return 0
	}
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

func positiveOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return def
	}
	return n
}
