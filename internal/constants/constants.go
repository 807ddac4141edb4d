package constants

// 台账交易类型
const (
	TxnKindReceipt      = "RECEIPT"
	TxnKindTransformIn  = "TRANSFORM_IN"
	TxnKindTransformOut = "TRANSFORM_OUT"
	TxnKindDispatch     = "DISPATCH"
	TxnKindAdjustment   = "ADJUSTMENT"
)

// 业务操作标签
const (
	OperationHarvest        = "harvest"
	OperationPurchase       = "purchase"
	OperationTransformation = "transformation"
	OperationProcessingLoss = "processing_loss"
	OperationDistribution   = "distribution"
	OperationSale           = "sale"
	OperationCorrection     = "correction"
)

// 常见产品形态
const (
	ProductCherry    = "cherry"
	ProductParchment = "parchment"
	ProductGreenBean = "green_bean"
	ProductRoasted   = "roasted"
)

// 计量单位
const (
	UnitKilogram = "kg"
)

// 批次库存状态
const (
	StockStatusFull     = "full"
	StockStatusPartial  = "partial"
	StockStatusDepleted = "depleted"
)

// 溯源阶段
const (
	TraceStageOrigin     = "origin"
	TraceStageHarvest    = "harvest"
	TraceStageProcessing = "processing"
	TraceStageCurrent    = "current_status"
)

// 溯源阶段完整度
const (
	TraceStatusComplete = "complete"
	TraceStatusPartial  = "partial"
	TraceStatusUnknown  = "unknown"
	TraceStatusEmpty    = "empty"
)

// 汇总层级
const (
	RollupLevelNation      = "nation"
	RollupLevelProvince    = "province"
	RollupLevelCooperative = "cooperative"
	RollupLevelFarmer      = "farmer"
	RollupLevelLand        = "land"
	RollupLevelMonth       = "month"
)

// 汇总指标
const (
	RollupMetricHarvestTotal  = "harvestTotal"
	RollupMetricActiveFarmers = "activeFarmers"
	RollupMetricLandArea      = "landArea"
	RollupMetricProductivity  = "productivity"
)

// RollupNationKey 全国汇总的固定分组键
const RollupNationKey = "national"

// 参考数据：农事活动类型
const (
	ActivityPlanting        = "planting"
	ActivityFertilizing     = "fertilizing"
	ActivityHarvestEstimate = "harvest_estimate"
	ActivityHarvest         = "harvest"
)

// 参考数据：农户状态
const (
	FarmerStatusActive   = "active"
	FarmerStatusInactive = "inactive"
)

// 调用方角色
const (
	RoleCooperativeOperator = "cooperative_operator"
	RoleProvincialAnalyst   = "provincial_analyst"
	RoleNationalAdmin       = "national_admin"
)

// 队列常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型
const (
	TaskLedgerIntegrityAudit = "ledger:integrity_audit"
	TaskRollupExport         = "report:rollup_export"
)

// 完整性巡检问题类型
const (
	AuditIssueNegativeStock    = "negative_stock"
	AuditIssueLineageCycle     = "lineage_cycle"
	AuditIssueCrossCooperative = "cross_cooperative_parent"
	AuditIssueMissingParent    = "missing_parent"
	AuditIssueUnbalancedOp     = "unbalanced_operation"
)

// 权限审计动作
const (
	AuthzAuditActionGrantPolicy  = "grant_policy"
	AuthzAuditActionRevokePolicy = "revoke_policy"
	AuthzAuditActionIssueToken   = "issue_scope_token"
)
