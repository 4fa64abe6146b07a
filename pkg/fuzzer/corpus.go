package fuzzer

import (
	"math/rand"

	"movefuzz/pkg/types"
)

// Corpus 单个worker的语料切片
type Corpus struct {
	cap     int
	entries []*Entry
	total   float64
}

// NewCorpus 创建语料，capacity<=0 不限大小
func NewCorpus(capacity int) *Corpus {
	return &Corpus{cap: capacity}
}

// Len 条目数
func (c *Corpus) Len() int {
	return len(c.entries)
}

// Entries 全部条目
func (c *Corpus) Entries() []*Entry {
	return c.entries
}

// Add 加入已接受的条目；超出容量时淘汰得分最低的条目并返回它
func (c *Corpus) Add(e *Entry) *Entry {
	c.entries = append(c.entries, e)
	c.total += e.Score
	if c.cap <= 0 || len(c.entries) <= c.cap {
		return nil
	}
	low := 0
	for i, x := range c.entries {
		if x.Score < c.entries[low].Score {
			low = i
		}
	}
	evicted := c.entries[low]
	c.entries = append(c.entries[:low], c.entries[low+1:]...)
	c.total -= evicted.Score
	return evicted
}

// Select 按得分加权选择条目
func (c *Corpus) Select(r *rand.Rand) *Entry {
	if len(c.entries) == 0 {
		return nil
	}
	if c.total <= 0 {
		return c.entries[r.Intn(len(c.entries))]
	}
	x := r.Float64() * c.total
	for _, e := range c.entries {
		x -= e.Score
		if x < 0 {
			return e
		}
	}
	return c.entries[len(c.entries)-1]
}

// Donor 随机选一个不同于self的序列供splice使用
func (c *Corpus) Donor(r *rand.Rand, self *Entry) *types.MoveSequence {
	if len(c.entries) < 2 {
		return nil
	}
	for {
		e := c.entries[r.Intn(len(c.entries))]
		if e != self {
			return e.Seq
		}
	}
}

// score 条目得分：新覆盖与发现越多越高
func score(fresh int, findings []types.OracleFinding) float64 {
	s := 1 + float64(fresh)
	for _, f := range findings {
		s += float64(f.Severity) * 2
	}
	return s
}
