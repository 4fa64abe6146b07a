package analysis

import (
	"context"
	"sort"

	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// Analyzer 一项静态分析
type Analyzer struct {
	Name string
	Run  func(modules []*Module) []types.OracleFinding
}

// Analyzers 固定的静态分析表
func Analyzers() []Analyzer {
	return []Analyzer{
		{Name: BoolJudgement.Oracle, Run: BoolJudgement.Analyze},
		{Name: InfiniteLoop.Oracle, Run: InfiniteLoop.Analyze},
		{Name: PrecisionLoss.Oracle, Run: PrecisionLoss.Analyze},
		{Name: TypeConversion.Oracle, Run: TypeConversion.Analyze},
		{Name: UncheckedReturn.Oracle, Run: UncheckedReturn.Analyze},
		{Name: "StaticUnusedConstant", Run: UnusedConstants},
		{Name: "StaticUnusedPrivateFunction", Run: UnusedPrivateFunctions},
		{Name: "StaticUnusedFriendFunction", Run: UnusedFriendFunctions},
		{Name: "StaticUnusedStruct", Run: UnusedStructs},
		{Name: "StaticUnusedEnum", Run: UnusedEnums},
	}
}

// Analyze 对每个非native函数报告首个命中位置
func (d Detector) Analyze(modules []*Module) []types.OracleFinding {
	var out []types.OracleFinding
	for _, m := range modules {
		for i := range m.Functions {
			fn := &m.Functions[i]
			pc, ok := d.Scan(fn)
			if !ok {
				continue
			}
			out = append(out, types.NewFinding(d.Oracle, d.Severity, types.Location(m.Ident(fn), -1), map[string]interface{}{
				"module":   m.ID().String(),
				"function": fn.Name,
				"pc":       pc,
				"message":  d.Message,
			}))
		}
	}
	return out
}

// RunAll 并行运行静态分析；names非空时只运行其中列出的分析
//
// 模块只读共享，结果按分析表顺序拼接。
func RunAll(ctx context.Context, modules []*Module, names ...string) ([]types.OracleFinding, error) {
	enabled := make(map[string]bool, len(names))
	for _, n := range names {
		enabled[n] = true
	}
	var selected []Analyzer
	for _, a := range Analyzers() {
		if len(enabled) == 0 || enabled[a.Name] {
			selected = append(selected, a)
		}
	}

	results := make([][]types.OracleFinding, len(selected))
	g, ctx := errgroup.WithContext(ctx)
	for i, a := range selected {
		i, a := i, a
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = a.Run(modules)
			log.Debug("Static analysis finished", "analyzer", a.Name, "findings", len(results[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []types.OracleFinding
	for _, r := range results {
		out = append(out, r...)
	}
	log.Info("Static analysis complete", "modules", len(modules), "analyzers", len(selected), "findings", len(out))
	return out, nil
}

// packages 按地址分组模块，地址有序
func packages(modules []*Module) ([]types.Address, map[types.Address][]*Module) {
	groups := make(map[types.Address][]*Module)
	var addrs []types.Address
	for _, m := range modules {
		if _, ok := groups[m.Address]; !ok {
			addrs = append(addrs, m.Address)
		}
		groups[m.Address] = append(groups[m.Address], m)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Hex() < addrs[j].Hex() })
	return addrs, groups
}
