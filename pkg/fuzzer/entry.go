package fuzzer

import (
	"errors"
	"fmt"

	"movefuzz/pkg/types"
)

var (
	// ErrIllegalTransition 语料条目的非法状态迁移
	ErrIllegalTransition = errors.New("illegal entry transition")
	// ErrNoCallable 元数据中没有可调用的目标函数
	ErrNoCallable = errors.New("no callable target functions")
)

// State 语料条目状态
type State uint8

const (
	Queued State = iota
	Executing
	Accepted
	Rejected
)

var stateNames = [...]string{"queued", "executing", "accepted", "rejected"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// legal 允许的迁移
var legal = map[State][]State{
	Queued:    {Executing},
	Executing: {Accepted, Rejected},
}

// Entry 一个语料条目：序列、覆盖签名与已确认的发现
//
// 条目只属于持有它的worker。
type Entry struct {
	Seq      *types.MoveSequence
	Coverage []uint32
	Findings []types.OracleFinding
	Score    float64
	Mutated  bool // 由已有条目变异得到
	Op       string
	state    State
}

// NewEntry 新建处于 Queued 的条目
func NewEntry(seq *types.MoveSequence, mutated bool) *Entry {
	return &Entry{Seq: seq, Mutated: mutated}
}

// State 当前状态
func (e *Entry) State() State {
	return e.state
}

// Transition 迁移到to，非法迁移返回 ErrIllegalTransition
func (e *Entry) Transition(to State) error {
	for _, s := range legal[e.state] {
		if s == to {
			e.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, e.state, to)
}
