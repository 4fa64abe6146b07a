package oracle

import (
	"movefuzz/pkg/types"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/log"
)

// Bank 依次运行启用的oracle，并按(oracle, location)跨执行去重
//
// 可被多个worker共享。
type Bank struct {
	oracles []Oracle
	seen    mapset.Set[string]
}

// NewBank 创建oracle组
func NewBank(oracles ...Oracle) *Bank {
	return &Bank{oracles: oracles, seen: mapset.NewSet[string]()}
}

// Oracles 启用的oracle
func (b *Bank) Oracles() []Oracle {
	return b.oracles
}

// Evaluate 返回本次执行中首次出现的发现
func (b *Bank) Evaluate(obs *Observation) []types.OracleFinding {
	if obs == nil || obs.Result == nil {
		return nil
	}
	var out []types.OracleFinding
	for _, o := range b.oracles {
		for _, f := range o.Evaluate(obs) {
			if !b.seen.Add(f.Key()) {
				continue
			}
			log.Debug("Oracle finding", "oracle", f.Oracle, "severity", f.Severity, "location", f.Location)
			out = append(out, f)
		}
	}
	return out
}

// Seen 已报告的不同发现个数
func (b *Bank) Seen() int {
	return b.seen.Cardinality()
}
