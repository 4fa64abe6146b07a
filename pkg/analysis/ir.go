// Package analysis 对反汇编得到的模块IR做一次性静态分析，并提供与动态oracle共用的逐指令检测
package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// ErrMalformedIR 模块IR无法解析或引用越界
	ErrMalformedIR = errors.New("malformed module IR")
)

// 指令种类（stackless形式）
const (
	OpAssign = "assign"
	OpLoad   = "load"
	OpCall   = "call"
	OpRet    = "ret"
	OpBranch = "branch"
	OpJump   = "jump"
	OpLabel  = "label"
	OpAbort  = "abort"
	OpNop    = "nop"
)

// call指令的操作
const (
	OperationFunction    = "function"
	OperationPack        = "pack"
	OperationPackVariant = "pack_variant"
	OperationEq          = "eq"
	OperationNeq         = "neq"
	OperationLt          = "lt"
	OperationLe          = "le"
	OperationGt          = "gt"
	OperationGe          = "ge"
	OperationAdd         = "add"
	OperationSub         = "sub"
	OperationMul         = "mul"
	OperationDiv         = "div"
	OperationMod         = "mod"
	OperationShl         = "shl"
	OperationShr         = "shr"
	OperationCastU8      = "cast_u8"
	OperationCastU16     = "cast_u16"
	OperationCastU32     = "cast_u32"
	OperationCastU64     = "cast_u64"
	OperationCastU128    = "cast_u128"
	OperationCastU256    = "cast_u256"
)

// castWidths 类型转换操作的目标位宽
var castWidths = map[string]int{
	OperationCastU8:   8,
	OperationCastU16:  16,
	OperationCastU32:  32,
	OperationCastU64:  64,
	OperationCastU128: 128,
	OperationCastU256: 256,
}

// CastWidth 类型转换操作的目标位宽，非转换返回0
func CastWidth(operation string) int {
	return castWidths[operation]
}

// Callee 被调用函数及调用点的类型实参
type Callee struct {
	Module   types.ModuleID         `json:"module"`
	Function string                 `json:"function"`
	TypeArgs []types.SignatureToken `json:"type_args,omitempty"`
}

// Ident 被调用函数标识
func (c *Callee) Ident() types.FunctionIdent {
	return types.FunctionIdent{Module: c.Module, Function: c.Function}
}

// Const load指令加载的常量；Pool非空表示来自常量池
type Const struct {
	Bool *bool       `json:"bool,omitempty"`
	Int  *types.Word `json:"int,omitempty"`
	Pool *int        `json:"pool,omitempty"`
}

// Instruction 一条stackless指令
type Instruction struct {
	Op        string  `json:"op"`
	Dsts      []int   `json:"dsts,omitempty"`
	Srcs      []int   `json:"srcs,omitempty"`
	Operation string  `json:"operation,omitempty"` // call
	Callee    *Callee `json:"callee,omitempty"`    // call function
	Datatype  string  `json:"datatype,omitempty"`  // pack / pack_variant 的本模块类型名
	Const     *Const  `json:"const,omitempty"`     // load
	Label     int     `json:"label,omitempty"`     // label / jump
	Then      int     `json:"then,omitempty"`      // branch
	Else      int     `json:"else,omitempty"`      // branch
}

// IsCall 是否为指定操作的call指令
func (in *Instruction) IsCall(operation string) bool {
	return in.Op == OpCall && in.Operation == operation
}

// Function 函数IR
type Function struct {
	Name       string                 `json:"name"`
	Visibility types.Visibility       `json:"visibility"`
	IsEntry    bool                   `json:"is_entry,omitempty"`
	IsNative   bool                   `json:"is_native,omitempty"`
	Parameters []types.SignatureToken `json:"parameters,omitempty"`
	Returns    []types.SignatureToken `json:"returns,omitempty"`
	Locals     []types.SignatureToken `json:"locals,omitempty"` // 局部变量类型，参数在前
	Code       []Instruction          `json:"code,omitempty"`

	labels map[int]int
}

// LabelOffset 标签所在的指令下标
func (f *Function) LabelOffset(label int) (int, bool) {
	if f.labels == nil {
		for pc, in := range f.Code {
			if in.Op == OpLabel && in.Label == label {
				return pc, true
			}
		}
		return 0, false
	}
	pc, ok := f.labels[label]
	return pc, ok
}

// LocalType 局部变量类型
func (f *Function) LocalType(local int) (types.SignatureToken, bool) {
	if local < 0 || local >= len(f.Locals) {
		return types.SignatureToken{}, false
	}
	return f.Locals[local], true
}

// DefOf 在pc所在基本块内向前查找local最近一次被定义的指令
func (f *Function) DefOf(local, pc int) (*Instruction, bool) {
	for i := pc - 1; i >= 0 && i < len(f.Code); i-- {
		in := &f.Code[i]
		if in.Op == OpLabel {
			return nil, false
		}
		for _, d := range in.Dsts {
			if d == local {
				return in, true
			}
		}
	}
	return nil, false
}

// Datatype 结构体或枚举定义
type Datatype struct {
	Name string `json:"name"`
}

// ConstantDef 常量池条目
type ConstantDef struct {
	Type  types.TypeTag `json:"type"`
	Value hexutil.Bytes `json:"value"`
}

// Module 一个模块的反汇编IR
type Module struct {
	Address   types.Address    `json:"address"`
	Name      string           `json:"name"`
	Friends   []types.ModuleID `json:"friends,omitempty"`
	Constants []ConstantDef    `json:"constants,omitempty"`
	Structs   []Datatype       `json:"structs,omitempty"`
	Enums     []Datatype       `json:"enums,omitempty"`
	Functions []Function       `json:"functions"`

	byName map[string]int
}

// ID 模块标识
func (m *Module) ID() types.ModuleID {
	return types.ModuleID{Address: m.Address, Name: m.Name}
}

// Function 按名称查找函数
func (m *Module) Function(name string) (*Function, bool) {
	if m.byName == nil {
		for i := range m.Functions {
			if m.Functions[i].Name == name {
				return &m.Functions[i], true
			}
		}
		return nil, false
	}
	i, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return &m.Functions[i], true
}

// Ident 模块内函数的标识
func (m *Module) Ident(fn *Function) types.FunctionIdent {
	return types.FunctionIdent{Module: m.ID(), Function: fn.Name}
}

// Prepare 建立名称与标签索引并校验引用，手工构造的模块在分析前需调用
func (m *Module) Prepare() error {
	if m.Name == "" {
		return fmt.Errorf("%w: module without name", ErrMalformedIR)
	}
	m.byName = make(map[string]int, len(m.Functions))
	for i := range m.Functions {
		fn := &m.Functions[i]
		if fn.Name == "" {
			return fmt.Errorf("%w: %s has a function without name", ErrMalformedIR, m.ID())
		}
		if _, dup := m.byName[fn.Name]; dup {
			return fmt.Errorf("%w: %s defines %s twice", ErrMalformedIR, m.ID(), fn.Name)
		}
		m.byName[fn.Name] = i
		fn.labels = make(map[int]int)
		for pc, in := range fn.Code {
			if in.Op == OpLabel {
				fn.labels[in.Label] = pc
			}
			for _, l := range append(append([]int(nil), in.Dsts...), in.Srcs...) {
				if l < 0 || (len(fn.Locals) > 0 && l >= len(fn.Locals)) {
					return fmt.Errorf("%w: %s::%s@%d references local %d", ErrMalformedIR, m.ID(), fn.Name, pc, l)
				}
			}
			if in.Op == OpCall && in.Operation == OperationFunction && in.Callee == nil {
				return fmt.Errorf("%w: %s::%s@%d calls nothing", ErrMalformedIR, m.ID(), fn.Name, pc)
			}
			if in.Const != nil && in.Const.Pool != nil && (*in.Const.Pool < 0 || *in.Const.Pool >= len(m.Constants)) {
				return fmt.Errorf("%w: %s::%s@%d loads constant %d", ErrMalformedIR, m.ID(), fn.Name, pc, *in.Const.Pool)
			}
		}
	}
	return nil
}

// DecodeModule 解析单个模块的JSON IR
func DecodeModule(data []byte) (*Module, error) {
	var m Module
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIR, err)
	}
	if err := m.Prepare(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeModules 解析JSON数组形式的多个模块
func DecodeModules(data []byte) ([]*Module, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIR, err)
	}
	out := make([]*Module, 0, len(raw))
	for _, r := range raw {
		m, err := DecodeModule(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// LoadModules 从文件加载模块IR（单个对象或数组）
func LoadModules(paths ...string) ([]*Module, error) {
	var out []*Module
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read module IR %s: %w", p, err)
		}
		var mods []*Module
		if trimmed := firstNonSpace(data); trimmed == '[' {
			mods, err = DecodeModules(data)
		} else {
			var m *Module
			m, err = DecodeModule(data)
			mods = []*Module{m}
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, mods...)
	}
	return out, nil
}

func firstNonSpace(data []byte) byte {
	for _, c := range data {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c
	}
	return 0
}

// TokenWidth 整数令牌的位宽，非整数返回0
func TokenWidth(tok types.SignatureToken) int {
	switch tok.Kind {
	case types.TokU8:
		return 8
	case types.TokU16:
		return 16
	case types.TokU32:
		return 32
	case types.TokU64:
		return 64
	case types.TokU128:
		return 128
	case types.TokU256:
		return 256
	}
	return 0
}
