package types

import "errors"

var (
	// ErrTypeParamOutOfRange 类型参数下标超出调用的类型实参列表
	ErrTypeParamOutOfRange = errors.New("type parameter index out of range")
	// ErrMalformedToken 签名令牌缺少必要字段
	ErrMalformedToken = errors.New("malformed signature token")
	// ErrNotPure 类型无法作为纯值输入
	ErrNotPure = errors.New("type cannot be a pure input")
	// ErrShapeMismatch 输入值形状与类型标签不一致
	ErrShapeMismatch = errors.New("input argument shape mismatch")
)
