package analysis

import (
	"movefuzz/pkg/metadata"
)

// BuildCallGraph 由call指令构建调用图；同一模块只加入一次
func BuildCallGraph(modules []*Module) *metadata.CallGraph {
	g := metadata.NewCallGraph()
	for _, m := range modules {
		if !g.AddModule(m.ID()) {
			continue
		}
		for i := range m.Functions {
			fn := &m.Functions[i]
			caller := m.Ident(fn)
			g.AddNode(caller)
			for _, in := range fn.Code {
				if in.IsCall(OperationFunction) && in.Callee != nil {
					g.AddCall(caller, in.Callee.Ident(), in.Callee.TypeArgs)
				}
			}
		}
	}
	return g
}
