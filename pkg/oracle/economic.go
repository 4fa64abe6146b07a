package oracle

import (
	"math/big"
	"sort"

	"movefuzz/pkg/types"

	mapset "github.com/deckarep/golang-set/v2"
)

// ProceedsOracle 成功执行后攻击者在某币种上净获利
type ProceedsOracle struct{}

func (ProceedsOracle) Name() string { return "Proceeds" }

func (ProceedsOracle) Evaluate(obs *Observation) []types.OracleFinding {
	if !obs.Result.Succeeded() {
		return nil
	}
	net := make(map[string]*big.Int)
	for _, bc := range obs.Result.Trace.BalanceChanges {
		if bc.Owner != obs.Attacker || bc.Amount == nil {
			continue
		}
		key := bc.CoinType.String()
		if net[key] == nil {
			net[key] = new(big.Int)
		}
		net[key].Add(net[key], bc.Amount)
	}
	coins := make([]string, 0, len(net))
	for coin := range net {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	var out []types.OracleFinding
	for _, coin := range coins {
		if net[coin].Sign() <= 0 {
			continue
		}
		detail := map[string]interface{}{
			"coin_type": coin,
			"profit":    net[coin].String(),
			"attacker":  obs.Attacker.Hex(),
			"message":   "Attacker sequence nets a profit",
		}
		if obs.Sequence != nil {
			detail["digest"] = obs.Sequence.Digest()
		}
		out = append(out, types.NewFinding("Proceeds", types.SeverityCritical, coin, detail))
	}
	return out
}

// TypedBugOracle 执行中发出了配置的bug事件
type TypedBugOracle struct {
	events mapset.Set[string]
}

// NewTypedBugOracle events可为完整类型（0x..::m::BugEvent）或结构体名（BugEvent）
func NewTypedBugOracle(events []string) *TypedBugOracle {
	return &TypedBugOracle{events: mapset.NewThreadUnsafeSet[string](events...)}
}

func (o *TypedBugOracle) Name() string { return "TypedBug" }

func (o *TypedBugOracle) matches(tag types.TypeTag) bool {
	if o.events.Contains(tag.String()) {
		return true
	}
	if tag.Kind != types.TagStruct || tag.Struct == nil {
		return false
	}
	return o.events.Contains(tag.Struct.Identity()) || o.events.Contains(tag.Struct.Name)
}

func (o *TypedBugOracle) Evaluate(obs *Observation) []types.OracleFinding {
	if o.events.Cardinality() == 0 {
		return nil
	}
	var out []types.OracleFinding
	for _, ev := range obs.Result.Trace.Events {
		if !o.matches(ev.Type) {
			continue
		}
		detail := map[string]interface{}{
			"event":   ev.Type.String(),
			"sender":  ev.Sender.Hex(),
			"message": "Bug event emitted",
		}
		for k, v := range ev.Contents {
			detail["field."+k] = v
		}
		out = append(out, types.NewFinding("TypedBug", types.SeverityCritical, ev.Type.String(), detail))
	}
	return out
}
