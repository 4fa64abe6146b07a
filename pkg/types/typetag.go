package types

import (
	"fmt"
	"strings"
)

// TagKind 具体类型的种类
type TagKind uint8

const (
	TagBool TagKind = iota
	TagU8
	TagU16
	TagU32
	TagU64
	TagU128
	TagU256
	TagAddress
	TagSigner
	TagVector
	TagStruct
)

var tagKindNames = map[TagKind]string{
	TagBool:    "bool",
	TagU8:      "u8",
	TagU16:     "u16",
	TagU32:     "u32",
	TagU64:     "u64",
	TagU128:    "u128",
	TagU256:    "u256",
	TagAddress: "address",
	TagSigner:  "signer",
	TagVector:  "vector",
	TagStruct:  "struct",
}

// String 返回种类名称
func (k TagKind) String() string {
	if name, ok := tagKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TagKind(%d)", uint8(k))
}

// ByteWidth 定宽整数的字节宽度，非整数返回0
func (k TagKind) ByteWidth() int {
	switch k {
	case TagU8:
		return 1
	case TagU16:
		return 2
	case TagU32:
		return 4
	case TagU64:
		return 8
	case TagU128:
		return 16
	case TagU256:
		return 32
	default:
		return 0
	}
}

// IsInteger 是否为定宽无符号整数
func (k TagKind) IsInteger() bool {
	return k.ByteWidth() > 0
}

// TypeTag 具体（已实例化）的Move类型
type TypeTag struct {
	Kind   TagKind
	Elem   *TypeTag   // Kind == TagVector 时有效
	Struct *StructTag // Kind == TagStruct 时有效
}

// StructTag 结构体类型：地址 + 模块 + 名称 + 类型实参
type StructTag struct {
	Address  Address
	Module   string
	Name     string
	TypeArgs []TypeTag
}

var (
	BoolTag    = TypeTag{Kind: TagBool}
	U8Tag      = TypeTag{Kind: TagU8}
	U16Tag     = TypeTag{Kind: TagU16}
	U32Tag     = TypeTag{Kind: TagU32}
	U64Tag     = TypeTag{Kind: TagU64}
	U128Tag    = TypeTag{Kind: TagU128}
	U256Tag    = TypeTag{Kind: TagU256}
	AddressTag = TypeTag{Kind: TagAddress}
	SignerTag  = TypeTag{Kind: TagSigner}
)

// VectorOf 构造 vector<elem>
func VectorOf(elem TypeTag) TypeTag {
	e := elem.Clone()
	return TypeTag{Kind: TagVector, Elem: &e}
}

// StructOf 构造结构体类型
func StructOf(s StructTag) TypeTag {
	c := s.Clone()
	return TypeTag{Kind: TagStruct, Struct: &c}
}

// NewStructTag 便捷构造函数
func NewStructTag(addr Address, module, name string, typeArgs ...TypeTag) StructTag {
	return StructTag{Address: addr, Module: module, Name: name, TypeArgs: typeArgs}
}

// ByteWidth 定宽整数的字节宽度
func (t TypeTag) ByteWidth() int {
	return t.Kind.ByteWidth()
}

// IsPrimitive bool/整数/address
func (t TypeTag) IsPrimitive() bool {
	return t.Kind == TagBool || t.Kind == TagAddress || t.Kind.IsInteger()
}

// IsPure 可以作为纯值输入（不需要对象）的类型
func (t TypeTag) IsPure() bool {
	switch t.Kind {
	case TagVector:
		return t.Elem != nil && t.Elem.IsPure()
	case TagStruct:
		return false
	case TagSigner:
		return false
	default:
		return true
	}
}

// Clone 深拷贝
func (t TypeTag) Clone() TypeTag {
	out := TypeTag{Kind: t.Kind}
	if t.Elem != nil {
		e := t.Elem.Clone()
		out.Elem = &e
	}
	if t.Struct != nil {
		s := t.Struct.Clone()
		out.Struct = &s
	}
	return out
}

// Equal 结构相等
func (t TypeTag) Equal(o TypeTag) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TagVector:
		if t.Elem == nil || o.Elem == nil {
			return t.Elem == o.Elem
		}
		return t.Elem.Equal(*o.Elem)
	case TagStruct:
		if t.Struct == nil || o.Struct == nil {
			return t.Struct == o.Struct
		}
		return t.Struct.Equal(*o.Struct)
	default:
		return true
	}
}

// String 规范字符串表示，同时用作map键
func (t TypeTag) String() string {
	switch t.Kind {
	case TagVector:
		if t.Elem == nil {
			return "vector<?>"
		}
		return "vector<" + t.Elem.String() + ">"
	case TagStruct:
		if t.Struct == nil {
			return "struct<?>"
		}
		return t.Struct.String()
	default:
		return t.Kind.String()
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (t TypeTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (t *TypeTag) UnmarshalText(text []byte) error {
	parsed, err := ParseTypeTag(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Clone 深拷贝
func (s StructTag) Clone() StructTag {
	out := StructTag{Address: s.Address, Module: s.Module, Name: s.Name}
	if len(s.TypeArgs) > 0 {
		out.TypeArgs = make([]TypeTag, len(s.TypeArgs))
		for i, a := range s.TypeArgs {
			out.TypeArgs[i] = a.Clone()
		}
	}
	return out
}

// Equal 结构相等
func (s StructTag) Equal(o StructTag) bool {
	if s.Address != o.Address || s.Module != o.Module || s.Name != o.Name {
		return false
	}
	if len(s.TypeArgs) != len(o.TypeArgs) {
		return false
	}
	for i := range s.TypeArgs {
		if !s.TypeArgs[i].Equal(o.TypeArgs[i]) {
			return false
		}
	}
	return true
}

// Identity 不含类型实参的结构体标识 addr::module::name
func (s StructTag) Identity() string {
	return fmt.Sprintf("%s::%s::%s", s.Address, s.Module, s.Name)
}

// String 规范字符串表示
func (s StructTag) String() string {
	if len(s.TypeArgs) == 0 {
		return s.Identity()
	}
	args := make([]string, len(s.TypeArgs))
	for i, a := range s.TypeArgs {
		args[i] = a.String()
	}
	return s.Identity() + "<" + strings.Join(args, ", ") + ">"
}

// ParseTypeTag 解析形如 0x2::coin::Coin<0x2::sui::SUI> 的类型字符串
func ParseTypeTag(s string) (TypeTag, error) {
	p := &tagParser{toks: tokenizeTypeTag(s)}
	t, err := p.parse()
	if err != nil {
		return TypeTag{}, fmt.Errorf("parse type tag %q: %w", s, err)
	}
	if p.pos != len(p.toks) {
		return TypeTag{}, fmt.Errorf("parse type tag %q: trailing tokens", s)
	}
	return t, nil
}

// MustParseTypeTag 解析失败时panic，仅用于常量与测试
func MustParseTypeTag(s string) TypeTag {
	t, err := ParseTypeTag(s)
	if err != nil {
		panic(err)
	}
	return t
}

func tokenizeTypeTag(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			flush()
		case c == '<' || c == '>' || c == ',':
			flush()
			toks = append(toks, string(c))
		case c == ':' && i+1 < len(s) && s[i+1] == ':':
			flush()
			toks = append(toks, "::")
			i++
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return toks
}

type tagParser struct {
	toks []string
	pos  int
}

func (p *tagParser) next() (string, bool) {
	if p.pos >= len(p.toks) {
		return "", false
	}
	tok := p.toks[p.pos]
	p.pos++
	return tok, true
}

func (p *tagParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *tagParser) expect(tok string) error {
	got, ok := p.next()
	if !ok || got != tok {
		return fmt.Errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *tagParser) parse() (TypeTag, error) {
	tok, ok := p.next()
	if !ok {
		return TypeTag{}, fmt.Errorf("unexpected end of input")
	}
	for kind, name := range tagKindNames {
		if tok == name && kind != TagVector && kind != TagStruct {
			return TypeTag{Kind: kind}, nil
		}
	}
	if tok == "vector" {
		if err := p.expect("<"); err != nil {
			return TypeTag{}, err
		}
		elem, err := p.parse()
		if err != nil {
			return TypeTag{}, err
		}
		if err := p.expect(">"); err != nil {
			return TypeTag{}, err
		}
		return VectorOf(elem), nil
	}

	addr, err := HexToAddress(tok)
	if err != nil {
		return TypeTag{}, err
	}
	if err := p.expect("::"); err != nil {
		return TypeTag{}, err
	}
	module, ok := p.next()
	if !ok {
		return TypeTag{}, fmt.Errorf("missing module name")
	}
	if err := p.expect("::"); err != nil {
		return TypeTag{}, err
	}
	name, ok := p.next()
	if !ok {
		return TypeTag{}, fmt.Errorf("missing struct name")
	}
	st := StructTag{Address: addr, Module: module, Name: name}
	if p.peek() == "<" {
		p.pos++
		for {
			arg, err := p.parse()
			if err != nil {
				return TypeTag{}, err
			}
			st.TypeArgs = append(st.TypeArgs, arg)
			sep, ok := p.next()
			if !ok {
				return TypeTag{}, fmt.Errorf("unterminated type arguments")
			}
			if sep == ">" {
				break
			}
			if sep != "," {
				return TypeTag{}, fmt.Errorf("unexpected token %q in type arguments", sep)
			}
		}
	}
	return TypeTag{Kind: TagStruct, Struct: &st}, nil
}
