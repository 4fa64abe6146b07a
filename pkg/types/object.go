package types

import (
	"encoding/json"
	"fmt"
)

// OwnerKind 对象所有权种类
type OwnerKind string

const (
	OwnerAddress   OwnerKind = "address"
	OwnerObject    OwnerKind = "object"
	OwnerShared    OwnerKind = "shared"
	OwnerImmutable OwnerKind = "immutable"
)

// Owner 对象所有者
type Owner struct {
	Kind    OwnerKind `json:"kind"`
	Address Address   `json:"address,omitempty"`
	// InitialSharedVersion 共享对象首次共享时的版本
	InitialSharedVersion Version `json:"initial_shared_version,omitempty"`
}

// ObjectInfo 状态提供者返回的对象信息
type ObjectInfo struct {
	ID      Address `json:"id"`
	Type    TypeTag `json:"type"`
	Owner   Owner   `json:"owner"`
	Version Version `json:"version"`
}

// AsArg 转换为序列输入；共享对象以可变方式传入
func (o *ObjectInfo) AsArg() ObjectArg {
	arg := ObjectArg{ID: o.ID, Type: o.Type.Clone(), Version: o.Version}
	if o.Owner.Kind == OwnerShared {
		arg.Shared = true
		arg.Mutable = true
		arg.Version = o.Owner.InitialSharedVersion
	}
	return arg
}

// String 简要描述
func (o ObjectInfo) String() string {
	return fmt.Sprintf("%s (%s, v%d, %s)", o.ID, o.Type, o.Version, o.Owner.Kind)
}

// Snapshot 链上状态快照：对象列表 + 包ABI，用作离线状态提供者输入
type Snapshot struct {
	Objects  []ObjectInfo    `json:"objects"`
	Packages []PackageAbi    `json:"packages"`
	Extra    json.RawMessage `json:"extra,omitempty"`
}
