package service

import (
	"context"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/metrics"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"
)

const defaultMaxLineageDepth = 64

// LineageService 批次谱系图服务
type LineageService struct {
	batchRepo  repository.BatchRepository
	ledgerRepo repository.LedgerRepository
	registry   *RegistryLookup
	metrics    *metrics.Metrics
	maxDepth   int
}

// LineageEdge 谱系边（由父批次 TRANSFORM_OUT 与子批次 TRANSFORM_IN 的操作引用推导）
type LineageEdge struct {
	ParentBatchCode string          `json:"parent_batch_code"`
	ChildBatchCode  string          `json:"child_batch_code"`
	OperationRef    string          `json:"operation_ref"`
	TransactionID   uint            `json:"transaction_id"`
	Quantity        models.Quantity `json:"quantity"`
	Date            time.Time       `json:"date"`
}

// BatchEdges 批次的入边与出边
type BatchEdges struct {
	Incoming []LineageEdge `json:"incoming"`
	Outgoing []LineageEdge `json:"outgoing"`
}

// DescendantNode 后代批次及其相对深度
type DescendantNode struct {
	Batch models.Batch `json:"batch"`
	Depth int          `json:"depth"`
}

// NewLineageService 创建谱系服务
func NewLineageService(
	batchRepo repository.BatchRepository,
	ledgerRepo repository.LedgerRepository,
	registry *RegistryLookup,
	m *metrics.Metrics,
	maxDepth int,
) *LineageService {
	if maxDepth <= 0 {
		maxDepth = defaultMaxLineageDepth
	}
	return &LineageService{
		batchRepo:  batchRepo,
		ledgerRepo: ledgerRepo,
		registry:   registry,
		metrics:    m,
		maxDepth:   maxDepth,
	}
}

// Children 直接子批次
func (s *LineageService) Children(ctx context.Context, scope Scope, code string) ([]models.Batch, error) {
	batch, err := loadReadableBatch(ctx, s.batchRepo, s.registry, scope, code)
	if err != nil {
		return nil, err
	}
	return s.batchRepo.WithContext(ctx).ListChildren(batch.Code)
}

// Ancestors 祖先批次（根在前，不含自身）
func (s *LineageService) Ancestors(ctx context.Context, scope Scope, code string) ([]models.Batch, error) {
	batch, err := loadReadableBatch(ctx, s.batchRepo, s.registry, scope, code)
	if err != nil {
		return nil, err
	}
	path, err := s.pathOf(ctx, batch)
	if err != nil {
		return nil, err
	}
	return path[:len(path)-1], nil
}

// Path 从原始批次到自身的完整路径（根在前，含自身）
func (s *LineageService) Path(ctx context.Context, scope Scope, code string) ([]models.Batch, error) {
	batch, err := loadReadableBatch(ctx, s.batchRepo, s.registry, scope, code)
	if err != nil {
		return nil, err
	}
	return s.pathOf(ctx, batch)
}

// pathOf 沿父批次链回溯到原始批次；检测到环或超过最大深度时返回 LineageCycleError
func (s *LineageService) pathOf(ctx context.Context, batch *models.Batch) ([]models.Batch, error) {
	repo := s.batchRepo.WithContext(ctx)
	chain := []models.Batch{*batch}
	visited := map[string]struct{}{batch.Code: {}}
	current := *batch
	for !current.IsOrigin() {
		if len(chain) > s.maxDepth {
			return nil, s.cycleError(batch.Code, chain, "max_depth_exceeded")
		}
		parentCode := current.ParentCode()
		if _, seen := visited[parentCode]; seen {
			chain = append(chain, models.Batch{Code: parentCode})
			return nil, s.cycleError(batch.Code, chain, "cycle")
		}
		parent, err := repo.GetByCode(parentCode)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			// 父批次缺失属于数据损坏，按已知路径返回，由巡检上报
			logger.Warnw("lineage_parent_missing",
				"batch_code", current.Code,
				"parent_batch_code", parentCode,
			)
			break
		}
		visited[parent.Code] = struct{}{}
		chain = append(chain, *parent)
		current = *parent
	}
	// 反转为根在前
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (s *LineageService) cycleError(code string, chain []models.Batch, reason string) error {
	path := make([]string, 0, len(chain))
	for _, batch := range chain {
		path = append(path, batch.Code)
	}
	s.metrics.ObserveLineageCycle()
	logger.Errorw("lineage_cycle_detected",
		"batch_code", code,
		"reason", reason,
		"path", path,
		"max_depth", s.maxDepth,
	)
	return &LineageCycleError{BatchCode: code, Path: path}
}

// Descendants 广度优先遍历后代批次（深度受限，防御环）
func (s *LineageService) Descendants(ctx context.Context, scope Scope, code string) ([]DescendantNode, error) {
	batch, err := loadReadableBatch(ctx, s.batchRepo, s.registry, scope, code)
	if err != nil {
		return nil, err
	}
	repo := s.batchRepo.WithContext(ctx)
	visited := map[string]struct{}{batch.Code: {}}
	frontier := []string{batch.Code}
	result := make([]DescendantNode, 0)
	for depth := 1; len(frontier) > 0; depth++ {
		if depth > s.maxDepth {
			return nil, s.cycleError(batch.Code, []models.Batch{*batch}, "max_depth_exceeded")
		}
		children, err := repo.ListChildrenOf(frontier)
		if err != nil {
			return nil, err
		}
		next := make([]string, 0, len(children))
		for _, child := range children {
			if _, seen := visited[child.Code]; seen {
				return nil, s.cycleError(batch.Code, []models.Batch{*batch, child}, "cycle")
			}
			visited[child.Code] = struct{}{}
			result = append(result, DescendantNode{Batch: child, Depth: depth})
			next = append(next, child.Code)
		}
		frontier = next
	}
	return result, nil
}

// Edges 批次的谱系边
func (s *LineageService) Edges(ctx context.Context, scope Scope, code string) (*BatchEdges, error) {
	batch, err := loadReadableBatch(ctx, s.batchRepo, s.registry, scope, code)
	if err != nil {
		return nil, err
	}
	children, err := s.batchRepo.WithContext(ctx).ListChildren(batch.Code)
	if err != nil {
		return nil, err
	}
	incoming := []LineageEdge{}
	if !batch.IsOrigin() {
		incoming, err = s.edgesInto(ctx, []models.Batch{*batch})
		if err != nil {
			return nil, err
		}
	}
	outgoing, err := s.edgesInto(ctx, children)
	if err != nil {
		return nil, err
	}
	return &BatchEdges{Incoming: incoming, Outgoing: outgoing}, nil
}

// edgesInto 由子批次的 TRANSFORM_IN 流水推导父子边
func (s *LineageService) edgesInto(ctx context.Context, children []models.Batch) ([]LineageEdge, error) {
	edges := []LineageEdge{}
	if len(children) == 0 {
		return edges, nil
	}
	byID := make(map[uint]models.Batch, len(children))
	ids := make([]uint, 0, len(children))
	for _, child := range children {
		byID[child.ID] = child
		ids = append(ids, child.ID)
	}
	entries, err := s.ledgerRepo.WithContext(ctx).ListByBatchIDs(ids)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Kind != constants.TxnKindTransformIn {
			continue
		}
		child := byID[entry.BatchID]
		edges = append(edges, LineageEdge{
			ParentBatchCode: child.ParentCode(),
			ChildBatchCode:  child.Code,
			OperationRef:    entry.OperationRef,
			TransactionID:   entry.ID,
			Quantity:        entry.QuantityDelta,
			Date:            entry.Date,
		})
	}
	return edges, nil
}
