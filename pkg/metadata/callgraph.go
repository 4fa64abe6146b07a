package metadata

import (
	"sort"
	"strings"

	"movefuzz/pkg/types"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emicklei/dot"
)

// CallEdge 调用边，携带调用点的类型实参
type CallEdge struct {
	From     int
	To       int
	TypeArgs []types.SignatureToken
}

// Label 边标签：逗号分隔的类型实参
func (e CallEdge) Label() string {
	parts := make([]string, len(e.TypeArgs))
	for i, t := range e.TypeArgs {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// CallGraph 函数调用图：节点存放在数组中，按(module, function)去重
type CallGraph struct {
	nodes   []types.FunctionIdent
	index   map[types.FunctionIdent]int
	edges   []CallEdge
	out     map[int][]int // 节点 -> 出边下标
	in      map[int][]int // 节点 -> 入边下标
	modules mapset.Set[types.ModuleID]
}

// NewCallGraph 创建空调用图
func NewCallGraph() *CallGraph {
	return &CallGraph{
		index:   make(map[types.FunctionIdent]int),
		out:     make(map[int][]int),
		in:      make(map[int][]int),
		modules: mapset.NewThreadUnsafeSet[types.ModuleID](),
	}
}

// AddModule 标记模块已加入；重复加入返回false
func (g *CallGraph) AddModule(id types.ModuleID) bool {
	return g.modules.Add(id)
}

// AddNode 添加（或取回已有的）函数节点
func (g *CallGraph) AddNode(fn types.FunctionIdent) int {
	if idx, ok := g.index[fn]; ok {
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, fn)
	g.index[fn] = idx
	return idx
}

// AddCall 添加一条调用边
func (g *CallGraph) AddCall(caller, callee types.FunctionIdent, tyArgs []types.SignatureToken) {
	from := g.AddNode(caller)
	to := g.AddNode(callee)
	g.edges = append(g.edges, CallEdge{From: from, To: to, TypeArgs: tyArgs})
	e := len(g.edges) - 1
	g.out[from] = append(g.out[from], e)
	g.in[to] = append(g.in[to], e)
}

// Node 节点下标对应的函数
func (g *CallGraph) Node(idx int) types.FunctionIdent {
	return g.nodes[idx]
}

// Lookup 函数对应的节点下标
func (g *CallGraph) Lookup(fn types.FunctionIdent) (int, bool) {
	idx, ok := g.index[fn]
	return idx, ok
}

// Len 节点数
func (g *CallGraph) Len() int { return len(g.nodes) }

// Edges 全部边
func (g *CallGraph) Edges() []CallEdge { return g.edges }

// Callees 直接被调函数（去重）
func (g *CallGraph) Callees(fn types.FunctionIdent) []types.FunctionIdent {
	idx, ok := g.index[fn]
	if !ok {
		return nil
	}
	return g.collect(g.out[idx], func(e CallEdge) int { return e.To })
}

// Callers 直接调用者（去重）
func (g *CallGraph) Callers(fn types.FunctionIdent) []types.FunctionIdent {
	idx, ok := g.index[fn]
	if !ok {
		return nil
	}
	return g.collect(g.in[idx], func(e CallEdge) int { return e.From })
}

func (g *CallGraph) collect(edgeIdx []int, end func(CallEdge) int) []types.FunctionIdent {
	seen := make(map[int]bool)
	var out []types.FunctionIdent
	for _, e := range edgeIdx {
		n := end(g.edges[e])
		if !seen[n] {
			seen[n] = true
			out = append(out, g.nodes[n])
		}
	}
	return out
}

// Reachable 从fn出发可达的全部函数（含自身）
func (g *CallGraph) Reachable(fn types.FunctionIdent) mapset.Set[types.FunctionIdent] {
	seen := mapset.NewThreadUnsafeSet[types.FunctionIdent]()
	start, ok := g.index[fn]
	if !ok {
		return seen
	}
	stack := []int{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !seen.Add(g.nodes[n]) {
			continue
		}
		for _, e := range g.out[n] {
			stack = append(stack, g.edges[e].To)
		}
	}
	return seen
}

// Dot 导出Graphviz DOT文本
func (g *CallGraph) Dot() string {
	graph := dot.NewGraph(dot.Directed)
	nodes := make([]dot.Node, len(g.nodes))
	for i, fn := range g.nodes {
		nodes[i] = graph.Node(fn.String()).Box()
	}
	edges := append([]CallEdge(nil), g.edges...)
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	for _, e := range edges {
		if label := e.Label(); label != "" {
			graph.Edge(nodes[e.From], nodes[e.To], label)
		} else {
			graph.Edge(nodes[e.From], nodes[e.To])
		}
	}
	return graph.String()
}
