package analysis

import (
	"fmt"
	"sort"

	"movefuzz/pkg/types"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// calledIn 模块集合中所有call指令的被调函数
func calledIn(modules []*Module) mapset.Set[types.FunctionIdent] {
	called := mapset.NewThreadUnsafeSet[types.FunctionIdent]()
	for _, m := range modules {
		for i := range m.Functions {
			for _, in := range m.Functions[i].Code {
				if in.IsCall(OperationFunction) && in.Callee != nil {
					called.Add(in.Callee.Ident())
				}
			}
		}
	}
	return called
}

func sortedIdents(set mapset.Set[types.FunctionIdent]) []string {
	out := make([]string, 0, set.Cardinality())
	for fn := range set.Iter() {
		out = append(out, fn.String())
	}
	sort.Strings(out)
	return out
}

// UnusedPrivateFunctions 从未被调用的private非entry函数（init除外），按模块报告
func UnusedPrivateFunctions(modules []*Module) []types.OracleFinding {
	var out []types.OracleFinding
	for _, m := range modules {
		called := calledIn([]*Module{m})
		unused := mapset.NewThreadUnsafeSet[types.FunctionIdent]()
		for i := range m.Functions {
			fn := &m.Functions[i]
			if fn.Visibility != types.VisibilityPrivate || fn.IsEntry || fn.Name == "init" {
				continue
			}
			if !called.Contains(m.Ident(fn)) {
				unused.Add(m.Ident(fn))
			}
		}
		if unused.Cardinality() == 0 {
			continue
		}
		out = append(out, types.NewFinding("StaticUnusedPrivateFunction", types.SeverityInformational, m.ID().String(), map[string]interface{}{
			"package":   m.Address.Hex(),
			"module":    m.Name,
			"functions": sortedIdents(unused),
			"message":   "Private functions are never invoked",
		}))
	}
	return out
}

// UnusedFriendFunctions 包内从未被调用的friend非entry函数，按包报告
func UnusedFriendFunctions(modules []*Module) []types.OracleFinding {
	var out []types.OracleFinding
	addrs, groups := packages(modules)
	for _, addr := range addrs {
		mods := groups[addr]
		called := calledIn(mods)
		unused := mapset.NewThreadUnsafeSet[types.FunctionIdent]()
		for _, m := range mods {
			for i := range m.Functions {
				fn := &m.Functions[i]
				if fn.Visibility == types.VisibilityFriend && !fn.IsEntry && !called.Contains(m.Ident(fn)) {
					unused.Add(m.Ident(fn))
				}
			}
		}
		if unused.Cardinality() == 0 {
			continue
		}
		out = append(out, types.NewFinding("StaticUnusedFriendFunction", types.SeverityInformational, addr.Hex(), map[string]interface{}{
			"package":   addr.Hex(),
			"functions": sortedIdents(unused),
			"message":   "Friend functions are never invoked",
		}))
	}
	return out
}

// UnusedConstants 从未被加载的常量池条目
func UnusedConstants(modules []*Module) []types.OracleFinding {
	var out []types.OracleFinding
	for _, m := range modules {
		visited := make([]bool, len(m.Constants))
		for i := range m.Functions {
			for _, in := range m.Functions[i].Code {
				if in.Op == OpLoad && in.Const != nil && in.Const.Pool != nil && *in.Const.Pool < len(visited) {
					visited[*in.Const.Pool] = true
				}
			}
		}
		var unused []string
		for i, v := range visited {
			if !v {
				unused = append(unused, constantString(m.Constants[i]))
			}
		}
		if len(unused) == 0 {
			continue
		}
		out = append(out, types.NewFinding("StaticUnusedConstant", types.SeverityInformational, m.ID().String(), map[string]interface{}{
			"package":          m.Address.Hex(),
			"module":           m.Name,
			"unused_constants": unused,
			"message":          "Constants are defined but never referenced",
		}))
	}
	return out
}

// constantString 整数常量按小端解码为十进制，其余输出十六进制
func constantString(c ConstantDef) string {
	if c.Type.Kind.IsInteger() && len(c.Value) == c.Type.ByteWidth() {
		be := make([]byte, len(c.Value))
		for i, b := range c.Value {
			be[len(be)-1-i] = b
		}
		return fmt.Sprintf("%s(%s)", c.Type, new(uint256.Int).SetBytes(be).Dec())
	}
	return fmt.Sprintf("%s(%s)", c.Type, hexutil.Encode(c.Value))
}

// datatypeUse 统计结构体/枚举的使用：出现在函数参数中或被pack
func datatypeUse(m *Module, operation string) mapset.Set[string] {
	used := mapset.NewThreadUnsafeSet[string]()
	for i := range m.Functions {
		fn := &m.Functions[i]
		for _, p := range fn.Parameters {
			d := p.Deref()
			if d.IsStruct() && d.Struct != nil && d.Struct.Address == m.Address && d.Struct.Module == m.Name {
				used.Add(d.Struct.Name)
			}
		}
		for _, in := range fn.Code {
			if in.IsCall(operation) && in.Datatype != "" {
				used.Add(in.Datatype)
			}
		}
	}
	return used
}

func unusedDatatypes(modules []*Module, oracle, operation, key, message string, defs func(*Module) []Datatype) []types.OracleFinding {
	var out []types.OracleFinding
	for _, m := range modules {
		used := datatypeUse(m, operation)
		var unused []string
		for _, d := range defs(m) {
			if !used.Contains(d.Name) {
				unused = append(unused, d.Name)
			}
		}
		if len(unused) == 0 {
			continue
		}
		out = append(out, types.NewFinding(oracle, types.SeverityInformational, m.ID().String(), map[string]interface{}{
			"package": m.Address.Hex(),
			"module":  m.Name,
			key:       unused,
			"message": message,
		}))
	}
	return out
}

// UnusedStructs 既不作为参数也从未被pack的结构体
func UnusedStructs(modules []*Module) []types.OracleFinding {
	return unusedDatatypes(modules, "StaticUnusedStruct", OperationPack, "structs",
		"Structs are defined but never used", func(m *Module) []Datatype { return m.Structs })
}

// UnusedEnums 从未构造任何变体的枚举
func UnusedEnums(modules []*Module) []types.OracleFinding {
	return unusedDatatypes(modules, "StaticUnusedEnum", OperationPackVariant, "enums",
		"Enums are defined but never used", func(m *Module) []Datatype { return m.Enums })
}
