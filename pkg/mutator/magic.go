package mutator

import (
	"movefuzz/pkg/types"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"
)

// MagicPool 去重的"有趣"定宽字节串（合约常量、比较提示）
//
// 每个worker持有独立的池，不做并发保护。
type MagicPool struct {
	seen    mapset.Set[string]
	entries [][]byte
}

// NewMagicPool 创建空池
func NewMagicPool() *MagicPool {
	return &MagicPool{seen: mapset.NewThreadUnsafeSet[string]()}
}

// Add 加入字节串，已存在时返回false
func (p *MagicPool) Add(b []byte) bool {
	if len(b) == 0 || !p.seen.Add(string(b)) {
		return false
	}
	p.entries = append(p.entries, append([]byte(nil), b...))
	return true
}

// AddUint 以指定宽度的小端形式加入整数
func (p *MagicPool) AddUint(width int, v *uint256.Int) bool {
	arg := types.InputArgument{Kind: kindForWidth(width)}
	arg.Num.Set(v)
	b, err := Sync(&arg)
	if err != nil {
		return false
	}
	return p.Add(b)
}

// Len 池大小
func (p *MagicPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Fit 长度恰好为n的条目
func (p *MagicPool) Fit(n int) [][]byte {
	if p == nil {
		return nil
	}
	var out [][]byte
	for _, e := range p.entries {
		if len(e) == n {
			out = append(out, e)
		}
	}
	return out
}

// Clone 拷贝，用于从共享的常量池派生worker私有池
func (p *MagicPool) Clone() *MagicPool {
	out := NewMagicPool()
	if p == nil {
		return out
	}
	for _, e := range p.entries {
		out.Add(e)
	}
	return out
}

// HarvestConstants 从模块常量池收集魔数：整数常量按其宽度（及±1邻值），vector<u8>常量取原始字节
func (p *MagicPool) HarvestConstants(modules []*types.ModuleAbi) int {
	added := 0
	for _, mod := range modules {
		for _, c := range mod.Constants {
			switch {
			case c.Type.Kind.IsInteger():
				w := c.Type.ByteWidth()
				if len(c.Value) != w {
					continue
				}
				arg := types.InputArgument{Kind: kindForWidth(w)}
				committed, err := Commit(c.Value, &arg)
				if err != nil {
					continue
				}
				v := committed.Num
				if p.AddUint(w, &v) {
					added++
				}
				one := uint256.NewInt(1)
				if !v.IsZero() && p.AddUint(w, new(uint256.Int).Sub(&v, one)) {
					added++
				}
				if p.AddUint(w, new(uint256.Int).Add(&v, one)) {
					added++
				}
			case c.Type.Kind == types.TagVector && c.Type.Elem != nil && c.Type.Elem.Kind == types.TagU8:
				if raw, ok := stripULEB(c.Value); ok && p.Add(raw) {
					added++
				}
			}
		}
	}
	return added
}

// stripULEB 去掉BCS向量的ULEB128长度前缀
func stripULEB(b []byte) ([]byte, bool) {
	var n uint64
	for i := 0; i < len(b) && i < 10; i++ {
		n |= uint64(b[i]&0x7f) << (7 * uint(i))
		if b[i]&0x80 == 0 {
			rest := b[i+1:]
			if uint64(len(rest)) != n {
				return nil, false
			}
			return rest, true
		}
	}
	return nil, false
}

func kindForWidth(w int) types.ArgKind {
	switch w {
	case 1:
		return types.ArgU8
	case 2:
		return types.ArgU16
	case 4:
		return types.ArgU32
	case 8:
		return types.ArgU64
	case 16:
		return types.ArgU128
	default:
		return types.ArgU256
	}
}
