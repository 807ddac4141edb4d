package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/coopledger/internal/constants"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/util"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const (
	apiV1Prefix     = "/api/v1"
	casbinTableName = "casbin_rule"
	rolePrefix      = "role:"
)

// 角色 -> 接口 的 RBAC 模型；对象使用 keyMatch2 路由模式，角色可继承
const ledgerRBACModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

var (
	ErrUnavailable     = errors.New("授权服务不可用")
	ErrUnknownRole     = errors.New("未知角色，仅支持 provincial_analyst / cooperative_operator / national_admin")
	ErrActionRequired  = errors.New("策略动作不能为空")
	ErrProtectedPolicy = errors.New("该策略受保护，撤销后将无法再管理授权")
)

// protectedPolicies 国家管理员管理授权本身所需的策略，禁止撤销
var protectedPolicies = map[Policy]struct{}{
	{Subject: rolePrefix + constants.RoleNationalAdmin, Object: "/authz/*", Action: "*"}: {},
}

// Policy 权限策略
type Policy struct {
	Subject string `json:"subject"`
	Object  string `json:"object"`
	Action  string `json:"action"`
}

// RoleSummary 角色概览
type RoleSummary struct {
	Role        string   `json:"role"`
	Inherits    []string `json:"inherits"`
	PolicyCount int      `json:"policy_count"`
}

// Service 调用方角色的接口级授权；合作社与省份范围不在这里判定
type Service struct {
	enforcer *casbin.SyncedEnforcer
}

// NewService 创建授权服务，策略存放在 casbin_rule 表
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("authz db is nil")
	}

	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", casbinTableName)
	if err != nil {
		return nil, fmt.Errorf("create authz adapter failed: %w", err)
	}
	m, err := model.NewModelFromString(ledgerRBACModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model failed: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer failed: %w", err)
	}
	enforcer.AddFunction("keyMatch2", util.KeyMatch2Func)
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load authz policy failed: %w", err)
	}
	return &Service{enforcer: enforcer}, nil
}

// EnforceRole 判定范围角色能否以 method 调用 path
func (s *Service) EnforceRole(role, path, method string) (bool, error) {
	if s == nil || s.enforcer == nil {
		return false, ErrUnavailable
	}
	subject, err := NormalizeRole(role)
	if err != nil {
		return false, err
	}
	return s.enforcer.Enforce(subject, NormalizeObject(path), NormalizeAction(method))
}

// ListRoles 列出预置角色及其继承关系
func (s *Service) ListRoles() ([]RoleSummary, error) {
	if s == nil || s.enforcer == nil {
		return nil, ErrUnavailable
	}
	summaries := make([]RoleSummary, 0, len(builtinRoles))
	for _, role := range builtinRoles {
		subject := rolePrefix + role
		parents, err := s.enforcer.GetRolesForUser(subject)
		if err != nil {
			return nil, fmt.Errorf("list role inheritance failed: %w", err)
		}
		inherits := make([]string, 0, len(parents))
		for _, parent := range parents {
			inherits = append(inherits, strings.TrimPrefix(parent, rolePrefix))
		}
		sort.Strings(inherits)
		rules, err := s.enforcer.GetFilteredPolicy(0, subject)
		if err != nil {
			return nil, fmt.Errorf("list role policies failed: %w", err)
		}
		summaries = append(summaries, RoleSummary{Role: role, Inherits: inherits, PolicyCount: len(rules)})
	}
	return summaries, nil
}

// GrantRolePolicy 为预置角色追加接口策略
func (s *Service) GrantRolePolicy(role, object, action string) error {
	policy, err := s.buildPolicy(role, object, action)
	if err != nil {
		return err
	}
	if _, err := s.enforcer.AddPolicy(policy.Subject, policy.Object, policy.Action); err != nil {
		return fmt.Errorf("grant policy failed: %w", err)
	}
	return nil
}

// RevokeRolePolicy 撤销角色策略；受保护策略拒绝撤销
func (s *Service) RevokeRolePolicy(role, object, action string) error {
	policy, err := s.buildPolicy(role, object, action)
	if err != nil {
		return err
	}
	if _, protected := protectedPolicies[policy]; protected {
		return ErrProtectedPolicy
	}
	if _, err := s.enforcer.RemovePolicy(policy.Subject, policy.Object, policy.Action); err != nil {
		return fmt.Errorf("revoke policy failed: %w", err)
	}
	return nil
}

// GetRolePolicies 查询角色策略；effective 为 true 时包含继承得到的策略
func (s *Service) GetRolePolicies(role string, effective bool) ([]Policy, error) {
	if s == nil || s.enforcer == nil {
		return nil, ErrUnavailable
	}
	subject, err := NormalizeRole(role)
	if err != nil {
		return nil, err
	}
	var rules [][]string
	if effective {
		rules, err = s.enforcer.GetImplicitPermissionsForUser(subject)
	} else {
		rules, err = s.enforcer.GetFilteredPolicy(0, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("get role policies failed: %w", err)
	}
	policies := make([]Policy, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		policies = append(policies, Policy{
			Subject: strings.TrimPrefix(rule[0], rolePrefix),
			Object:  rule[1],
			Action:  rule[2],
		})
	}
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].Object != policies[j].Object {
			return policies[i].Object < policies[j].Object
		}
		return policies[i].Action < policies[j].Action
	})
	return policies, nil
}

func (s *Service) buildPolicy(role, object, action string) (Policy, error) {
	if s == nil || s.enforcer == nil {
		return Policy{}, ErrUnavailable
	}
	subject, err := NormalizeRole(role)
	if err != nil {
		return Policy{}, err
	}
	act := NormalizeAction(action)
	if act == "" {
		return Policy{}, ErrActionRequired
	}
	return Policy{Subject: subject, Object: NormalizeObject(object), Action: act}, nil
}

// NormalizeRole 校验并转换为 casbin 主体，只接受预置范围角色
func NormalizeRole(role string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(role), rolePrefix)
	for _, builtin := range builtinRoles {
		if name == builtin {
			return rolePrefix + name, nil
		}
	}
	return "", ErrUnknownRole
}

// NormalizeObject 去掉 /api/v1 前缀，策略只记录版本内路径
func NormalizeObject(object string) string {
	normalized := strings.TrimSpace(object)
	if normalized == "" {
		return "/"
	}
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasPrefix(normalized, apiV1Prefix+"/") {
		return strings.TrimPrefix(normalized, apiV1Prefix)
	}
	if normalized == apiV1Prefix {
		return "/"
	}
	return normalized
}

// NormalizeAction 统一授权动作
func NormalizeAction(action string) string {
	return strings.ToUpper(strings.TrimSpace(action))
}
