package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// ArgKind 输入参数种类
type ArgKind uint8

const (
	ArgBool ArgKind = iota
	ArgU8
	ArgU16
	ArgU32
	ArgU64
	ArgU128
	ArgU256
	ArgAddress
	ArgVector
	ArgObject
)

var argKindNames = map[ArgKind]string{
	ArgBool:    "bool",
	ArgU8:      "u8",
	ArgU16:     "u16",
	ArgU32:     "u32",
	ArgU64:     "u64",
	ArgU128:    "u128",
	ArgU256:    "u256",
	ArgAddress: "address",
	ArgVector:  "vector",
	ArgObject:  "object",
}

var tagToArgKind = map[TagKind]ArgKind{
	TagBool:    ArgBool,
	TagU8:      ArgU8,
	TagU16:     ArgU16,
	TagU32:     ArgU32,
	TagU64:     ArgU64,
	TagU128:    ArgU128,
	TagU256:    ArgU256,
	TagAddress: ArgAddress,
	TagVector:  ArgVector,
}

// String 返回种类名称
func (k ArgKind) String() string {
	if name, ok := argKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ArgKind(%d)", uint8(k))
}

// ByteWidth 定宽整数的字节宽度；bool为1，address为32，其余为0
func (k ArgKind) ByteWidth() int {
	switch k {
	case ArgBool, ArgU8:
		return 1
	case ArgU16:
		return 2
	case ArgU32:
		return 4
	case ArgU64:
		return 8
	case ArgU128:
		return 16
	case ArgU256:
		return 32
	case ArgAddress:
		return AddressLength
	default:
		return 0
	}
}

// IsInteger 是否为定宽无符号整数
func (k ArgKind) IsInteger() bool {
	return k >= ArgU8 && k <= ArgU256
}

// ObjectArg 从types pool取出的链上对象引用
type ObjectArg struct {
	ID      Address `json:"id"`
	Type    TypeTag `json:"type"`
	Version Version `json:"version"`
	Shared  bool    `json:"shared,omitempty"`
	Mutable bool    `json:"mutable,omitempty"`
}

// InputArgument 序列输入槽中的值（带标签的联合体）
//
// 整数统一存放在Num中，宽度由Kind固定；Vector的元素标签在ElemTag中。
type InputArgument struct {
	Kind    ArgKind
	Bool    bool
	Num     uint256.Int
	Address Address
	ElemTag *TypeTag
	Elems   []InputArgument
	Object  *ObjectArg
}

// NewBool bool输入
func NewBool(v bool) InputArgument { return InputArgument{Kind: ArgBool, Bool: v} }

// NewU8 u8输入
func NewU8(v uint8) InputArgument { return NewUint(ArgU8, uint256.NewInt(uint64(v))) }

// NewU16 u16输入
func NewU16(v uint16) InputArgument { return NewUint(ArgU16, uint256.NewInt(uint64(v))) }

// NewU32 u32输入
func NewU32(v uint32) InputArgument { return NewUint(ArgU32, uint256.NewInt(uint64(v))) }

// NewU64 u64输入
func NewU64(v uint64) InputArgument { return NewUint(ArgU64, uint256.NewInt(v)) }

// NewUint 指定宽度的整数输入，超出宽度的高位被截断
func NewUint(kind ArgKind, v *uint256.Int) InputArgument {
	arg := InputArgument{Kind: kind}
	arg.Num.Set(v)
	arg.truncate()
	return arg
}

// NewAddress address输入
func NewAddress(a Address) InputArgument { return InputArgument{Kind: ArgAddress, Address: a} }

// NewVector vector输入，元素形状需与elem一致
func NewVector(elem TypeTag, elems []InputArgument) (InputArgument, error) {
	want, ok := tagToArgKind[elem.Kind]
	if !ok {
		return InputArgument{}, fmt.Errorf("%w: vector<%s>", ErrNotPure, elem)
	}
	for i := range elems {
		if elems[i].Kind != want {
			return InputArgument{}, fmt.Errorf("%w: element %d is %s, want %s", ErrShapeMismatch, i, elems[i].Kind, want)
		}
	}
	e := elem.Clone()
	return InputArgument{Kind: ArgVector, ElemTag: &e, Elems: elems}, nil
}

// NewBytes vector<u8>输入
func NewBytes(b []byte) InputArgument {
	elems := make([]InputArgument, len(b))
	for i, v := range b {
		elems[i] = NewU8(v)
	}
	e := U8Tag
	return InputArgument{Kind: ArgVector, ElemTag: &e, Elems: elems}
}

// NewObject 对象输入
func NewObject(obj ObjectArg) InputArgument {
	return InputArgument{Kind: ArgObject, Object: &obj}
}

// ZeroValue 类型的默认纯值（整数0、false、0x0、空vector）
func ZeroValue(tag TypeTag) (InputArgument, error) {
	kind, ok := tagToArgKind[tag.Kind]
	if !ok || !tag.IsPure() {
		return InputArgument{}, fmt.Errorf("%w: %s", ErrNotPure, tag)
	}
	if kind == ArgVector {
		return NewVector(*tag.Elem, nil)
	}
	return InputArgument{Kind: kind}, nil
}

// truncate 按宽度截断整数高位
func (a *InputArgument) truncate() {
	w := a.Kind.ByteWidth()
	if !a.Kind.IsInteger() || w >= 32 {
		return
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(w*8))
	mask.Sub(mask, uint256.NewInt(1))
	a.Num.And(&a.Num, mask)
}

// Uint64 整数值的低64位
func (a *InputArgument) Uint64() uint64 {
	return a.Num.Uint64()
}

// ByteWidth 标量的定宽字节数
func (a *InputArgument) ByteWidth() int {
	return a.Kind.ByteWidth()
}

// IsScalar bool/整数/address
func (a *InputArgument) IsScalar() bool {
	return a.Kind != ArgVector && a.Kind != ArgObject
}

// Tag 值对应的具体类型
func (a *InputArgument) Tag() TypeTag {
	switch a.Kind {
	case ArgVector:
		if a.ElemTag == nil {
			return VectorOf(U8Tag)
		}
		return VectorOf(*a.ElemTag)
	case ArgObject:
		if a.Object == nil {
			return TypeTag{Kind: TagStruct}
		}
		return a.Object.Type.Clone()
	}
	for tk, ak := range tagToArgKind {
		if ak == a.Kind {
			return TypeTag{Kind: tk}
		}
	}
	return TypeTag{}
}

// Clone 深拷贝
func (a InputArgument) Clone() InputArgument {
	out := a
	if a.ElemTag != nil {
		e := a.ElemTag.Clone()
		out.ElemTag = &e
	}
	if a.Elems != nil {
		out.Elems = make([]InputArgument, len(a.Elems))
		for i := range a.Elems {
			out.Elems[i] = a.Elems[i].Clone()
		}
	}
	if a.Object != nil {
		obj := *a.Object
		obj.Type = a.Object.Type.Clone()
		out.Object = &obj
	}
	return out
}

// Equal 可观察值相等
func (a *InputArgument) Equal(o *InputArgument) bool {
	if a.Kind != o.Kind {
		return false
	}
	switch a.Kind {
	case ArgBool:
		return a.Bool == o.Bool
	case ArgAddress:
		return a.Address == o.Address
	case ArgVector:
		if (a.ElemTag == nil) != (o.ElemTag == nil) {
			return false
		}
		if a.ElemTag != nil && !a.ElemTag.Equal(*o.ElemTag) {
			return false
		}
		if len(a.Elems) != len(o.Elems) {
			return false
		}
		for i := range a.Elems {
			if !a.Elems[i].Equal(&o.Elems[i]) {
				return false
			}
		}
		return true
	case ArgObject:
		if a.Object == nil || o.Object == nil {
			return a.Object == o.Object
		}
		return a.Object.ID == o.Object.ID && a.Object.Type.Equal(o.Object.Type) &&
			a.Object.Version == o.Object.Version && a.Object.Shared == o.Object.Shared &&
			a.Object.Mutable == o.Object.Mutable
	default:
		return a.Num.Eq(&o.Num)
	}
}

// String 人类可读形式
func (a *InputArgument) String() string {
	switch a.Kind {
	case ArgBool:
		return fmt.Sprintf("%t", a.Bool)
	case ArgAddress:
		return a.Address.String()
	case ArgVector:
		parts := make([]string, len(a.Elems))
		for i := range a.Elems {
			parts[i] = a.Elems[i].String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ArgObject:
		if a.Object == nil {
			return "object(?)"
		}
		return fmt.Sprintf("object(%s: %s)", a.Object.ID, a.Object.Type)
	default:
		return a.Num.Dec() + a.Kind.String()
	}
}

type inputJSON struct {
	Kind   string            `json:"kind"`
	Value  json.RawMessage   `json:"value,omitempty"`
	Elem   *TypeTag          `json:"elem,omitempty"`
	Elems  []json.RawMessage `json:"elems,omitempty"`
	Object *ObjectArg        `json:"object,omitempty"`
}

// MarshalJSON 整数以十进制字符串编码，保证u128/u256无损
func (a InputArgument) MarshalJSON() ([]byte, error) {
	out := inputJSON{Kind: a.Kind.String()}
	var err error
	switch a.Kind {
	case ArgBool:
		out.Value, err = json.Marshal(a.Bool)
	case ArgAddress:
		out.Value, err = json.Marshal(a.Address)
	case ArgVector:
		out.Elem = a.ElemTag
		out.Elems = make([]json.RawMessage, len(a.Elems))
		for i := range a.Elems {
			if out.Elems[i], err = json.Marshal(a.Elems[i]); err != nil {
				return nil, err
			}
		}
	case ArgObject:
		out.Object = a.Object
	default:
		out.Value, err = json.Marshal(a.Num.Dec())
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UnmarshalJSON 见 MarshalJSON
func (a *InputArgument) UnmarshalJSON(data []byte) error {
	var in inputJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	kind := ArgKind(255)
	for k, name := range argKindNames {
		if name == in.Kind {
			kind = k
		}
	}
	res := InputArgument{Kind: kind}
	switch kind {
	case ArgBool:
		if err := json.Unmarshal(in.Value, &res.Bool); err != nil {
			return err
		}
	case ArgAddress:
		if err := json.Unmarshal(in.Value, &res.Address); err != nil {
			return err
		}
	case ArgVector:
		if in.Elem == nil {
			return fmt.Errorf("%w: vector without element type", ErrShapeMismatch)
		}
		res.ElemTag = in.Elem
		res.Elems = make([]InputArgument, len(in.Elems))
		for i, raw := range in.Elems {
			if err := json.Unmarshal(raw, &res.Elems[i]); err != nil {
				return err
			}
		}
	case ArgObject:
		if in.Object == nil {
			return fmt.Errorf("%w: object input without reference", ErrShapeMismatch)
		}
		res.Object = in.Object
	case ArgU8, ArgU16, ArgU32, ArgU64, ArgU128, ArgU256:
		var dec string
		if err := json.Unmarshal(in.Value, &dec); err != nil {
			return err
		}
		if err := res.Num.SetFromDecimal(dec); err != nil {
			return fmt.Errorf("invalid %s value %q: %w", in.Kind, dec, err)
		}
		res.truncate()
	default:
		return fmt.Errorf("%w: unknown input kind %q", ErrShapeMismatch, in.Kind)
	}
	*a = res
	return nil
}
