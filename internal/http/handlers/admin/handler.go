package admin

import "github.com/coopledger/internal/provider"

// Handler 管理接口处理器（角色策略与范围令牌）
// 说明：仅国家级管理员可访问。
type Handler struct {
	*provider.Container
}

// New 创建管理处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
