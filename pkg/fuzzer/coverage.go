package fuzzer

import (
	"sort"
	"sync"

	"movefuzz/pkg/types"

	"github.com/bits-and-blooms/bitset"
)

// Coverage 覆盖率累加器
//
// observer 在每次执行前清零、执行后读取一次；不做并发保护。
type Coverage struct {
	size     uint
	max      *bitset.BitSet
	observer *bitset.BitSet
}

// NewCoverage 创建指定槽位数的累加器，size<=0 使用 types.CoverageMapSize
func NewCoverage(size int) *Coverage {
	if size <= 0 {
		size = types.CoverageMapSize
	}
	n := uint(size)
	return &Coverage{size: n, max: bitset.New(n), observer: bitset.New(n)}
}

// Observe 记录一次执行的覆盖，返回新增槽位数
func (c *Coverage) Observe(slots []uint32) int {
	c.observer.ClearAll()
	for _, s := range slots {
		c.observer.Set(uint(s) % c.size)
	}
	fresh := c.observer.DifferenceCardinality(c.max)
	if fresh > 0 {
		c.max.InPlaceUnion(c.observer)
	}
	return int(fresh)
}

// Count 累计覆盖的槽位数
func (c *Coverage) Count() int {
	return int(c.max.Count())
}

// Has 槽位是否已覆盖
func (c *Coverage) Has(slot uint32) bool {
	return c.max.Test(uint(slot) % c.size)
}

// Signature 去重排序后的覆盖签名
func Signature(slots []uint32) []uint32 {
	out := append([]uint32(nil), slots...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, s := range out {
		if i == 0 || s != out[n-1] {
			out[n] = s
			n++
		}
	}
	return out[:n]
}

// sharedCoverage 所有worker覆盖的并集，仅用于统计
type sharedCoverage struct {
	mu  sync.Mutex
	cov *Coverage
}

func (s *sharedCoverage) merge(slots []uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cov.Observe(slots)
	return s.cov.Count()
}
