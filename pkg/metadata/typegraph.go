package metadata

import (
	"sort"

	"movefuzz/pkg/types"

	"github.com/emicklei/dot"
)

// TypeGraph 结构体标识 -> 生产者函数（返回该类型）与消费者函数（以该类型为参数）
type TypeGraph struct {
	producers map[string][]types.FunctionIdent
	consumers map[string][]types.FunctionIdent
}

// NewTypeGraph 创建空类型图
func NewTypeGraph() *TypeGraph {
	return &TypeGraph{
		producers: make(map[string][]types.FunctionIdent),
		consumers: make(map[string][]types.FunctionIdent),
	}
}

// AddFunction 登记函数的参数/返回结构体
func (g *TypeGraph) AddFunction(ident types.FunctionIdent, fn *types.FunctionAbi) {
	for _, ret := range fn.Returns {
		for _, id := range structIdentities(ret.Deref()) {
			g.producers[id] = appendUnique(g.producers[id], ident)
		}
	}
	for _, param := range fn.Parameters {
		if types.IsTxContextToken(param) {
			continue
		}
		for _, id := range structIdentities(param.Deref()) {
			g.consumers[id] = appendUnique(g.consumers[id], ident)
		}
	}
}

// Producers 返回该结构体的函数
func (g *TypeGraph) Producers(identity string) []types.FunctionIdent {
	return g.producers[identity]
}

// Consumers 以该结构体为参数的函数
func (g *TypeGraph) Consumers(identity string) []types.FunctionIdent {
	return g.consumers[identity]
}

// ProducersOf 返回给定具体类型的函数（按结构体标识匹配）
func (g *TypeGraph) ProducersOf(tag types.TypeTag) []types.FunctionIdent {
	if tag.Kind != types.TagStruct || tag.Struct == nil {
		return nil
	}
	return g.producers[tag.Struct.Identity()]
}

// Dot 导出二部图：类型节点（椭圆）与函数节点（方框）
func (g *TypeGraph) Dot() string {
	graph := dot.NewGraph(dot.Directed)
	ids := make(map[string]bool)
	for id := range g.producers {
		ids[id] = true
	}
	for id := range g.consumers {
		ids[id] = true
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		typeNode := graph.Node(id)
		for _, fn := range g.producers[id] {
			graph.Edge(graph.Node(fn.String()).Box(), typeNode, "returns")
		}
		for _, fn := range g.consumers[id] {
			graph.Edge(typeNode, graph.Node(fn.String()).Box(), "param")
		}
	}
	return graph.String()
}

// structIdentities 令牌的外层结构体标识；vector按元素类型
func structIdentities(tok types.SignatureToken) []string {
	switch tok.Kind {
	case types.TokStruct, types.TokStructInstantiation:
		if tok.Struct == nil {
			return nil
		}
		return []string{tok.Struct.String()}
	case types.TokVector, types.TokReference, types.TokMutableReference:
		if tok.Elem != nil {
			return structIdentities(*tok.Elem)
		}
	}
	return nil
}

func appendUnique(list []types.FunctionIdent, fn types.FunctionIdent) []types.FunctionIdent {
	for _, f := range list {
		if f == fn {
			return list
		}
	}
	return append(list, fn)
}
