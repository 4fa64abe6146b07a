package fuzzer

import (
	"sync/atomic"
	"time"
)

// Stats 全局计数器，worker并发累加
type Stats struct {
	Cycles      atomic.Int64
	Generated   atomic.Int64
	Mutated     atomic.Int64
	Accepted    atomic.Int64
	Rejected    atomic.Int64
	ExecErrors  atomic.Int64
	Unbuildable atomic.Int64
	Findings    atomic.Int64
	Hints       atomic.Int64
	CorpusSize  atomic.Int64
	Coverage    atomic.Int64
}

// StatsSnapshot 某一时刻的统计
type StatsSnapshot struct {
	Elapsed     time.Duration
	Cycles      int64
	Generated   int64
	Mutated     int64
	Accepted    int64
	Rejected    int64
	ExecErrors  int64
	Unbuildable int64
	Findings    int64
	Hints       int64
	CorpusSize  int64
	Coverage    int64
}

func (s *Stats) snapshot(start time.Time) StatsSnapshot {
	return StatsSnapshot{
		Elapsed:     time.Since(start),
		Cycles:      s.Cycles.Load(),
		Generated:   s.Generated.Load(),
		Mutated:     s.Mutated.Load(),
		Accepted:    s.Accepted.Load(),
		Rejected:    s.Rejected.Load(),
		ExecErrors:  s.ExecErrors.Load(),
		Unbuildable: s.Unbuildable.Load(),
		Findings:    s.Findings.Load(),
		Hints:       s.Hints.Load(),
		CorpusSize:  s.CorpusSize.Load(),
		Coverage:    s.Coverage.Load(),
	}
}

// ExecsPerSec 执行速率
func (s StatsSnapshot) ExecsPerSec() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Cycles-s.Unbuildable) / secs
}
