package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TokenKind 签名令牌种类
type TokenKind uint8

const (
	TokBool TokenKind = iota
	TokU8
	TokU16
	TokU32
	TokU64
	TokU128
	TokU256
	TokAddress
	TokSigner
	TokVector
	TokStruct
	TokStructInstantiation
	TokReference
	TokMutableReference
	TokTypeParameter
)

var tokenKindNames = map[TokenKind]string{
	TokBool:                "bool",
	TokU8:                  "u8",
	TokU16:                 "u16",
	TokU32:                 "u32",
	TokU64:                 "u64",
	TokU128:                "u128",
	TokU256:                "u256",
	TokAddress:             "address",
	TokSigner:              "signer",
	TokVector:              "vector",
	TokStruct:              "struct",
	TokStructInstantiation: "struct_instantiation",
	TokReference:           "reference",
	TokMutableReference:    "mutable_reference",
	TokTypeParameter:       "type_parameter",
}

// primitiveTokenTags 原始令牌到具体类型的映射
var primitiveTokenTags = map[TokenKind]TagKind{
	TokBool:    TagBool,
	TokU8:      TagU8,
	TokU16:     TagU16,
	TokU32:     TagU32,
	TokU64:     TagU64,
	TokU128:    TagU128,
	TokU256:    TagU256,
	TokAddress: TagAddress,
	TokSigner:  TagSigner,
}

// String 返回种类名称
func (k TokenKind) String() string {
	if name, ok := tokenKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", uint8(k))
}

// MarshalText 实现 encoding.TextMarshaler
func (k TokenKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (k *TokenKind) UnmarshalText(text []byte) error {
	s := string(text)
	for kind, name := range tokenKindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown signature token kind %q", s)
}

// StructRef 结构体声明的标识（不含类型实参）
type StructRef struct {
	Address Address `json:"address"`
	Module  string  `json:"module"`
	Name    string  `json:"name"`
}

// String addr::module::name
func (r StructRef) String() string {
	return fmt.Sprintf("%s::%s::%s", r.Address, r.Module, r.Name)
}

// Instantiate 用具体类型实参构造结构体类型
func (r StructRef) Instantiate(args ...TypeTag) StructTag {
	return StructTag{Address: r.Address, Module: r.Module, Name: r.Name, TypeArgs: args}
}

// SignatureToken ABI中的类型表达式，可能包含类型参数
type SignatureToken struct {
	Kind     TokenKind        `json:"kind"`
	Elem     *SignatureToken  `json:"elem,omitempty"`      // vector / reference / mutable_reference
	Struct   *StructRef       `json:"struct,omitempty"`    // struct / struct_instantiation
	TypeArgs []SignatureToken `json:"type_args,omitempty"` // struct_instantiation
	Param    int              `json:"param,omitempty"`     // type_parameter 的下标
}

// PrimitiveToken 原始类型令牌
func PrimitiveToken(kind TokenKind) SignatureToken { return SignatureToken{Kind: kind} }

// VectorToken vector<elem>
func VectorToken(elem SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokVector, Elem: &elem}
}

// RefToken &inner
func RefToken(inner SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokReference, Elem: &inner}
}

// MutRefToken &mut inner
func MutRefToken(inner SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokMutableReference, Elem: &inner}
}

// TypeParamToken 第idx个类型参数
func TypeParamToken(idx int) SignatureToken {
	return SignatureToken{Kind: TokTypeParameter, Param: idx}
}

// StructToken 结构体令牌，带实参时为 struct_instantiation
func StructToken(ref StructRef, args ...SignatureToken) SignatureToken {
	if len(args) == 0 {
		return SignatureToken{Kind: TokStruct, Struct: &ref}
	}
	return SignatureToken{Kind: TokStructInstantiation, Struct: &ref, TypeArgs: args}
}

// IsReference 是否为引用（可变或不可变）
func (t SignatureToken) IsReference() bool {
	return t.Kind == TokReference || t.Kind == TokMutableReference
}

// Deref 去掉最外层引用
func (t SignatureToken) Deref() SignatureToken {
	if t.IsReference() && t.Elem != nil {
		return *t.Elem
	}
	return t
}

// IsStruct 解引用后是否为结构体
func (t SignatureToken) IsStruct() bool {
	d := t.Deref()
	return d.Kind == TokStruct || d.Kind == TokStructInstantiation
}

// ContainsTypeParameter 是否引用了类型参数
func (t SignatureToken) ContainsTypeParameter() bool {
	switch t.Kind {
	case TokTypeParameter:
		return true
	case TokVector, TokReference, TokMutableReference:
		return t.Elem != nil && t.Elem.ContainsTypeParameter()
	case TokStructInstantiation:
		for _, a := range t.TypeArgs {
			if a.ContainsTypeParameter() {
				return true
			}
		}
	}
	return false
}

// MaxTypeParameter 引用的最大类型参数下标，没有时返回-1
func (t SignatureToken) MaxTypeParameter() int {
	hi := -1
	switch t.Kind {
	case TokTypeParameter:
		hi = t.Param
	case TokVector, TokReference, TokMutableReference:
		if t.Elem != nil {
			hi = t.Elem.MaxTypeParameter()
		}
	case TokStructInstantiation:
		for _, a := range t.TypeArgs {
			if m := a.MaxTypeParameter(); m > hi {
				hi = m
			}
		}
	}
	return hi
}

// Subst 用调用的类型实参替换类型参数，得到具体类型；引用被剥离
func (t SignatureToken) Subst(tyArgs []TypeTag) (TypeTag, error) {
	if kind, ok := primitiveTokenTags[t.Kind]; ok {
		return TypeTag{Kind: kind}, nil
	}
	switch t.Kind {
	case TokTypeParameter:
		if t.Param < 0 || t.Param >= len(tyArgs) {
			return TypeTag{}, fmt.Errorf("%w: T%d with %d type arguments", ErrTypeParamOutOfRange, t.Param, len(tyArgs))
		}
		return tyArgs[t.Param].Clone(), nil
	case TokVector:
		if t.Elem == nil {
			return TypeTag{}, fmt.Errorf("%w: vector without element", ErrMalformedToken)
		}
		elem, err := t.Elem.Subst(tyArgs)
		if err != nil {
			return TypeTag{}, err
		}
		return VectorOf(elem), nil
	case TokReference, TokMutableReference:
		if t.Elem == nil {
			return TypeTag{}, fmt.Errorf("%w: reference without target", ErrMalformedToken)
		}
		return t.Elem.Subst(tyArgs)
	case TokStruct, TokStructInstantiation:
		if t.Struct == nil {
			return TypeTag{}, fmt.Errorf("%w: struct without identity", ErrMalformedToken)
		}
		st := StructTag{Address: t.Struct.Address, Module: t.Struct.Module, Name: t.Struct.Name}
		for _, a := range t.TypeArgs {
			tag, err := a.Subst(tyArgs)
			if err != nil {
				return TypeTag{}, err
			}
			st.TypeArgs = append(st.TypeArgs, tag)
		}
		return TypeTag{Kind: TagStruct, Struct: &st}, nil
	}
	return TypeTag{}, fmt.Errorf("%w: kind %s", ErrMalformedToken, t.Kind)
}

// String 人类可读形式
func (t SignatureToken) String() string {
	switch t.Kind {
	case TokVector:
		if t.Elem == nil {
			return "vector<?>"
		}
		return "vector<" + t.Elem.String() + ">"
	case TokReference:
		if t.Elem == nil {
			return "&?"
		}
		return "&" + t.Elem.String()
	case TokMutableReference:
		if t.Elem == nil {
			return "&mut ?"
		}
		return "&mut " + t.Elem.String()
	case TokTypeParameter:
		return fmt.Sprintf("T%d", t.Param)
	case TokStruct, TokStructInstantiation:
		if t.Struct == nil {
			return "struct<?>"
		}
		if len(t.TypeArgs) == 0 {
			return t.Struct.String()
		}
		args := make([]string, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			args[i] = a.String()
		}
		return t.Struct.String() + "<" + strings.Join(args, ", ") + ">"
	default:
		return t.Kind.String()
	}
}

// Visibility 函数可见性
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
	VisibilityFriend  Visibility = "friend"
)

// ModuleID 模块标识：地址 + 模块名
type ModuleID struct {
	Address Address `json:"address"`
	Name    string  `json:"name"`
}

// String addr::module
func (m ModuleID) String() string {
	return fmt.Sprintf("%s::%s", m.Address, m.Name)
}

// FunctionIdent 函数标识：模块 + 函数名
type FunctionIdent struct {
	Module   ModuleID `json:"module"`
	Function string   `json:"function"`
}

// String addr::module::function
func (f FunctionIdent) String() string {
	return fmt.Sprintf("%s::%s", f.Module, f.Function)
}

// ParseFunctionIdent 解析 addr::module::function
func ParseFunctionIdent(s string) (FunctionIdent, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return FunctionIdent{}, fmt.Errorf("invalid function ident %q", s)
	}
	addr, err := HexToAddress(parts[0])
	if err != nil {
		return FunctionIdent{}, err
	}
	return FunctionIdent{Module: ModuleID{Address: addr, Name: parts[1]}, Function: parts[2]}, nil
}

// FunctionAbi 函数签名
type FunctionAbi struct {
	Name           string           `json:"name"`
	Visibility     Visibility       `json:"visibility"`
	IsEntry        bool             `json:"is_entry"`
	TypeParameters []Ability        `json:"type_parameters,omitempty"` // 每个类型参数的能力约束
	Parameters     []SignatureToken `json:"parameters,omitempty"`
	Returns        []SignatureToken `json:"returns,omitempty"`
}

// Callable 能否作为序列中的顶层调用
func (f *FunctionAbi) Callable() bool {
	return f.Visibility == VisibilityPublic || f.IsEntry
}

// StructTypeParameter 结构体类型参数
type StructTypeParameter struct {
	Constraints Ability `json:"constraints"`
	IsPhantom   bool    `json:"is_phantom,omitempty"`
}

// FieldAbi 字段
type FieldAbi struct {
	Name string         `json:"name"`
	Type SignatureToken `json:"type"`
}

// StructAbi 结构体声明
type StructAbi struct {
	Name           string                `json:"name"`
	Abilities      Ability               `json:"abilities"`
	TypeParameters []StructTypeParameter `json:"type_parameters,omitempty"`
	Fields         []FieldAbi            `json:"fields,omitempty"`
}

// IsGeneric 是否带类型参数
func (s *StructAbi) IsGeneric() bool {
	return len(s.TypeParameters) > 0
}

// EnumAbi 枚举声明
type EnumAbi struct {
	Name      string   `json:"name"`
	Abilities Ability  `json:"abilities"`
	Variants  []string `json:"variants,omitempty"`
}

// ConstantAbi 模块常量池条目
type ConstantAbi struct {
	Type  TypeTag       `json:"type"`
	Value hexutil.Bytes `json:"value"` // BCS编码后的原始字节
}

// ModuleAbi 模块ABI
type ModuleAbi struct {
	Address   Address       `json:"address"`
	Name      string        `json:"name"`
	Friends   []ModuleID    `json:"friends,omitempty"`
	Structs   []StructAbi   `json:"structs,omitempty"`
	Enums     []EnumAbi     `json:"enums,omitempty"`
	Functions []FunctionAbi `json:"functions,omitempty"`
	Constants []ConstantAbi `json:"constants,omitempty"`
}

// ID 模块标识
func (m *ModuleAbi) ID() ModuleID {
	return ModuleID{Address: m.Address, Name: m.Name}
}

// Function 按名字查找函数
func (m *ModuleAbi) Function(name string) (*FunctionAbi, bool) {
	for i := range m.Functions {
		if m.Functions[i].Name == name {
			return &m.Functions[i], true
		}
	}
	return nil, false
}

// Struct 按名字查找结构体
func (m *ModuleAbi) Struct(name string) (*StructAbi, bool) {
	for i := range m.Structs {
		if m.Structs[i].Name == name {
			return &m.Structs[i], true
		}
	}
	return nil, false
}

// PackageAbi 包ABI
type PackageAbi struct {
	ID      Address     `json:"id"`
	Version Version     `json:"version"`
	Modules []ModuleAbi `json:"modules"`
}
