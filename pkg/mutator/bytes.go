package mutator

import (
	"errors"
	"fmt"

	"movefuzz/pkg/types"
)

// ErrNotFixedWidth 值没有定宽字节表示（对象、嵌套vector）
var ErrNotFixedWidth = errors.New("value has no fixed-width byte form")

// elemWidth vector元素的定宽字节数
func elemWidth(arg *types.InputArgument) (int, error) {
	if arg.ElemTag == nil {
		return 0, fmt.Errorf("%w: vector without element type", ErrNotFixedWidth)
	}
	switch arg.ElemTag.Kind {
	case types.TagBool:
		return 1, nil
	case types.TagAddress:
		return types.AddressLength, nil
	}
	if w := arg.ElemTag.ByteWidth(); w > 0 {
		return w, nil
	}
	return 0, fmt.Errorf("%w: vector<%s>", ErrNotFixedWidth, arg.ElemTag)
}

// Sync 将值序列化为小端定宽字节；vector按元素拼接
func Sync(arg *types.InputArgument) ([]byte, error) {
	switch arg.Kind {
	case types.ArgBool:
		if arg.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case types.ArgAddress:
		return append([]byte(nil), arg.Address[:]...), nil
	case types.ArgVector:
		if _, err := elemWidth(arg); err != nil {
			return nil, err
		}
		var out []byte
		for i := range arg.Elems {
			b, err := Sync(&arg.Elems[i])
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	case types.ArgObject:
		return nil, fmt.Errorf("%w: object", ErrNotFixedWidth)
	}
	w := arg.ByteWidth()
	be := arg.Num.Bytes32()
	out := make([]byte, w)
	for i := 0; i < w; i++ {
		out[i] = be[31-i]
	}
	return out, nil
}

// Commit 将字节按原值的形状写回，得到新值；标签与宽度不变
func Commit(b []byte, arg *types.InputArgument) (types.InputArgument, error) {
	switch arg.Kind {
	case types.ArgBool:
		if len(b) != 1 {
			return types.InputArgument{}, fmt.Errorf("%w: bool needs 1 byte, got %d", types.ErrShapeMismatch, len(b))
		}
		return types.NewBool(b[0]&1 == 1), nil
	case types.ArgAddress:
		if len(b) != types.AddressLength {
			return types.InputArgument{}, fmt.Errorf("%w: address needs %d bytes, got %d", types.ErrShapeMismatch, types.AddressLength, len(b))
		}
		var a types.Address
		copy(a[:], b)
		return types.NewAddress(a), nil
	case types.ArgVector:
		w, err := elemWidth(arg)
		if err != nil {
			return types.InputArgument{}, err
		}
		if len(b) != w*len(arg.Elems) {
			return types.InputArgument{}, fmt.Errorf("%w: vector of %d needs %d bytes, got %d",
				types.ErrShapeMismatch, len(arg.Elems), w*len(arg.Elems), len(b))
		}
		out := arg.Clone()
		for i := range arg.Elems {
			elem, err := Commit(b[i*w:(i+1)*w], &arg.Elems[i])
			if err != nil {
				return types.InputArgument{}, err
			}
			out.Elems[i] = elem
		}
		return out, nil
	case types.ArgObject:
		return types.InputArgument{}, fmt.Errorf("%w: object", ErrNotFixedWidth)
	}
	w := arg.ByteWidth()
	if len(b) != w {
		return types.InputArgument{}, fmt.Errorf("%w: %s needs %d bytes, got %d", types.ErrShapeMismatch, arg.Kind, w, len(b))
	}
	be := make([]byte, w)
	for i := 0; i < w; i++ {
		be[i] = b[w-1-i]
	}
	out := types.InputArgument{Kind: arg.Kind}
	out.Num.SetBytes(be)
	return out, nil
}
