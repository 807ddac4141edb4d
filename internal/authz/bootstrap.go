package authz

import (
	"fmt"

	"github.com/coopledger/internal/constants"
)

// builtinRoles 调用方范围令牌可携带的全部角色
var builtinRoles = []string{
	constants.RoleProvincialAnalyst,
	constants.RoleCooperativeOperator,
	constants.RoleNationalAdmin,
}

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 系统预置角色矩阵（与调用方范围角色一一对应）
// 路由层只判定角色能否调用接口，合作社与省份范围由台账服务校验。
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: constants.RoleProvincialAnalyst,
			Policies: []Policy{
				{Object: "/batches", Action: "GET"},
				{Object: "/batches/*", Action: "GET"},
				{Object: "/transactions", Action: "GET"},
				{Object: "/transactions/:id", Action: "GET"},
				{Object: "/reports/*", Action: "GET"},
				{Object: "/reports/exports", Action: "POST"},
			},
		},
		{
			Role: constants.RoleCooperativeOperator,
			Policies: []Policy{
				{Object: "/batches", Action: "*"},
				{Object: "/batches/*", Action: "GET"},
				{Object: "/transactions", Action: "*"},
				{Object: "/transactions/*", Action: "*"},
				{Object: "/transformations", Action: "POST"},
				{Object: "/reports/*", Action: "GET"},
				{Object: "/reports/exports", Action: "POST"},
			},
		},
		{
			Role:     constants.RoleNationalAdmin,
			Inherits: []string{constants.RoleCooperativeOperator},
			Policies: []Policy{
				{Object: "/audits", Action: "POST"},
				{Object: "/authz/*", Action: "*"},
			},
		},
	}
}

// BootstrapBuiltinRoles 写入预置继承关系与默认策略；已有策略保持不变，可重复执行
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return ErrUnavailable
	}
	for _, seed := range BuiltinRoleSeeds() {
		subject := rolePrefix + seed.Role
		for _, parent := range seed.Inherits {
			if _, err := s.enforcer.AddGroupingPolicy(subject, rolePrefix+parent); err != nil {
				return fmt.Errorf("link role %s -> %s failed: %w", seed.Role, parent, err)
			}
		}
		rules := make([][]string, 0, len(seed.Policies))
		for _, policy := range seed.Policies {
			action := NormalizeAction(policy.Action)
			if action == "" {
				return ErrActionRequired
			}
			has, err := s.enforcer.HasPolicy(subject, NormalizeObject(policy.Object), action)
			if err != nil {
				return fmt.Errorf("check builtin policy failed: %w", err)
			}
			if !has {
				rules = append(rules, []string{subject, NormalizeObject(policy.Object), action})
			}
		}
		if len(rules) == 0 {
			continue
		}
		if _, err := s.enforcer.AddPolicies(rules); err != nil {
			return fmt.Errorf("add builtin policies for %s failed: %w", seed.Role, err)
		}
	}
	return nil
}
