package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// dbDialectName 获取数据库方言名称，默认按 sqlite 处理。
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	name := strings.ToLower(strings.TrimSpace(db.Dialector.Name()))
	if name == "" {
		return "sqlite"
	}
	return name
}

// monthBucketExpr 构建按月分桶表达式（YYYY-MM），兼容 sqlite 与 postgres。
func monthBucketExpr(db *gorm.DB, column string) string {
	return monthBucketExprByDialect(dbDialectName(db), column)
}

func monthBucketExprByDialect(dialect, column string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql":
		return fmt.Sprintf("to_char(%s, 'YYYY-MM')", column)
	default:
		// glebarez/sqlite 以文本形式保存时间，strftime 可直接解析
		return fmt.Sprintf("strftime('%%Y-%%m', %s)", column)
	}
}

// idTextExpr 将整型主键转为文本分组键。
func idTextExpr(db *gorm.DB, column string) string {
	switch dbDialectName(db) {
	case "postgres", "postgresql":
		return fmt.Sprintf("CAST(%s AS VARCHAR)", column)
	default:
		return fmt.Sprintf("CAST(%s AS TEXT)", column)
	}
}
