package report

import "github.com/coopledger/internal/provider"

// Handler 报表接口处理器（汇总、导出、供给预测、巡检）
type Handler struct {
	*provider.Container
}

// New 创建报表处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
