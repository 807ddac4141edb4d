package ledger

import "github.com/coopledger/internal/provider"

// Handler 台账接口处理器（批次、流水、加工、谱系与溯源）
type Handler struct {
	*provider.Container
}

// New 创建台账处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
