package symbolic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"movefuzz/pkg/mutator"
	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
)

// Solver 约束求解接口
type Solver interface {
	Solve(ctx context.Context, constraints []Constraint) ([]Hint, error)
}

// Stats 求解统计
type Stats struct {
	Constraints int
	CacheHits   int
	LocalSolves int
	Z3Solves    int
	Fallbacks   int
	Hints       int
}

// ConstraintSolver 按策略组合本地求解器与Z3，带结果缓存
//
// 每个worker独立持有，不做并发保护。
type ConstraintSolver struct {
	cfg   Config
	local LocalSolver
	z3    *Z3Solver
	cache *lru.Cache[string, []Hint]
	stats Stats
}

// NewConstraintSolver 创建求解器；Z3不可用时退回本地策略
func NewConstraintSolver(cfg Config) (*ConstraintSolver, error) {
	cfg.MergeWithDefaults()
	switch cfg.Strategy {
	case StrategyLocal, StrategyZ3, StrategyHybrid:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
	cache, err := lru.New[string, []Hint](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	cs := &ConstraintSolver{cfg: cfg, cache: cache}
	if cfg.Strategy != StrategyLocal {
		zs, err := NewZ3Solver(cfg)
		if err != nil {
			log.Warn("Z3 unavailable, falling back to local solver", "strategy", cfg.Strategy, "err", err)
		} else {
			cs.z3 = zs
		}
	}
	return cs, nil
}

// Close 释放Z3资源
func (cs *ConstraintSolver) Close() {
	if cs.z3 != nil {
		cs.z3.Close()
	}
}

// Stats 统计快照
func (cs *ConstraintSolver) Stats() Stats {
	return cs.stats
}

// Hints 从一次执行的跟踪中求出候选值
func (cs *ConstraintSolver) Hints(ctx context.Context, trace *types.Trace) ([]Hint, error) {
	if !cs.cfg.Enabled {
		return nil, nil
	}
	constraints := Extract(trace, cs.cfg.MaxConstraints)
	if len(constraints) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, cs.cfg.Timeout())
	defer cancel()

	cs.stats.Constraints += len(constraints)
	var hints []Hint
	for _, group := range groupByVariable(constraints) {
		hs, err := cs.solveGroup(ctx, group)
		if err != nil {
			return hints, err
		}
		hints = append(hints, hs...)
	}
	cs.stats.Hints += len(hints)
	return hints, nil
}

func (cs *ConstraintSolver) solveGroup(ctx context.Context, group []Constraint) ([]Hint, error) {
	key := groupKey(group)
	if hs, ok := cs.cache.Get(key); ok {
		cs.stats.CacheHits++
		return hs, nil
	}
	var hints []Hint
	if cs.useZ3(group) {
		hs, err := cs.z3.Solve(ctx, group)
		if err == nil {
			cs.stats.Z3Solves++
			hints = hs
		} else {
			log.Trace("Z3 solve failed, using local solver", "constraints", len(group), "err", err)
			cs.stats.Fallbacks++
		}
	}
	// 合取无解时逐条求解
	if hints == nil {
		hs, err := cs.local.Solve(ctx, group)
		if err != nil {
			return nil, err
		}
		cs.stats.LocalSolves++
		hints = hs
	}
	cs.cache.Add(key, hints)
	return hints, nil
}

func (cs *ConstraintSolver) useZ3(group []Constraint) bool {
	if cs.z3 == nil || !cs.z3.CanHandle(group) {
		return false
	}
	switch cs.cfg.Strategy {
	case StrategyZ3:
		return true
	case StrategyHybrid:
		return len(group) >= cs.cfg.HybridMinGroup
	}
	return false
}

// groupByVariable 同一位置同一侧同一宽度的约束视为同一变量
func groupByVariable(constraints []Constraint) [][]Constraint {
	index := make(map[string]int)
	var groups [][]Constraint
	for _, c := range constraints {
		k := fmt.Sprintf("%s/%d/%d", c.Loc.String(), c.Side, c.Width)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], c)
	}
	return groups
}

func groupKey(group []Constraint) string {
	keys := make([]string, len(group))
	for i, c := range group {
		keys[i] = c.Key()
	}
	sort.Strings(keys)
	return strings.Join(keys, ";")
}

// Feed 把候选值按其字节宽度加入魔数池，返回新增条目数
func Feed(pool *mutator.MagicPool, hints []Hint) int {
	if pool == nil {
		return 0
	}
	added := 0
	for _, h := range hints {
		v := new(uint256.Int).Set(&h.Value)
		bytes := h.Width / 8
		if bytes == 0 {
			bytes = 1
		}
		if pool.AddUint(bytes, v) {
			added++
		}
	}
	return added
}
