package sequence

import (
	"fmt"

	"movefuzz/pkg/mutator"
	"movefuzz/pkg/types"
)

// Op 变异算子
type Op int

const (
	OpValue Op = iota
	OpMagic
	OpInsert
	OpRemove
	OpSwap
	OpSplice
	NumOps
)

var opNames = [...]string{"value", "magic", "insert", "remove", "swap", "splice"}

func (o Op) String() string {
	if o < 0 || o >= NumOps {
		return fmt.Sprintf("op(%d)", int(o))
	}
	return opNames[o]
}

// ParseOp 按名称解析算子
func ParseOp(name string) (Op, error) {
	for i, n := range opNames {
		if n == name {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mutation op %q", name)
}

// Mutator 对剥离了后处理的序列应用值/结构变异
//
// 所有结构编辑在副本上完成并重新类型检查，失败时返回错误且原序列不变。
type Mutator struct {
	asm *Assembler
}

// NewMutator 创建结构变异器
func NewMutator(asm *Assembler) *Mutator {
	return &Mutator{asm: asm}
}

// Apply 应用一次op；donor仅供splice使用
func (m *Mutator) Apply(mctx *mutator.Context, seq *types.MoveSequence, op Op, donor *types.MoveSequence) error {
	x := m.asm.Index()
	r := mctx.Rand
	switch op {
	case OpValue:
		_, err := MutateValues(mctx, seq)
		return err
	case OpMagic:
		return SampleMagicInput(mctx, seq)
	case OpInsert:
		callable := m.asm.callable()
		if len(callable) == 0 {
			return fmt.Errorf("%w: no callable functions", ErrNotApplicable)
		}
		rf := m.asm.pickFunction(mctx, seq, callable)
		return m.asm.InsertCall(mctx, seq, r.Intn(len(seq.Commands)+1), rf)
	case OpRemove:
		cands := Removable(seq)
		if len(cands) == 0 || len(seq.Commands) < 2 {
			return fmt.Errorf("%w: nothing removable", ErrNotApplicable)
		}
		return RemoveCall(seq, cands[r.Intn(len(cands))], x)
	case OpSwap:
		if len(seq.Commands) < 2 {
			return fmt.Errorf("%w: fewer than two commands", ErrNotApplicable)
		}
		i := r.Intn(len(seq.Commands) - 1)
		j := i + 1 + r.Intn(len(seq.Commands)-i-1)
		return SwapCalls(seq, i, j, x)
	case OpSplice:
		if donor == nil || len(donor.Commands) == 0 {
			return fmt.Errorf("%w: no donor", ErrNotApplicable)
		}
		if len(seq.Commands)+len(donor.Commands) > m.asm.cfg.MaxCommands {
			return fmt.Errorf("%w: splice exceeds command limit", ErrNotApplicable)
		}
		return Splice(seq, donor, x)
	}
	return fmt.Errorf("%w: %s", ErrNotApplicable, op)
}

// splitAmounts 作为0x2::coin::split数量参数的输入
func splitAmounts(seq *types.MoveSequence) map[int]bool {
	out := make(map[int]bool)
	for i := range seq.Commands {
		call := seq.Commands[i].Call
		if seq.Commands[i].Kind != types.CmdMoveCall || !call.Is(types.FrameworkAddress, types.CoinModule, "split") {
			continue
		}
		if len(call.Arguments) > 1 && call.Arguments[1].Kind == types.RefInput {
			out[call.Arguments[1].Index] = true
		}
	}
	return out
}

func pureInputs(seq *types.MoveSequence, accept func(*types.InputArgument) bool) []int {
	var out []int
	for i := range seq.Inputs {
		if seq.Inputs[i].Kind != types.ArgObject && accept(&seq.Inputs[i]) {
			out = append(out, i)
		}
	}
	return out
}

// MutateValues 对随机选取的若干纯值输入做值变异，返回实际变异的个数
func MutateValues(mctx *mutator.Context, seq *types.MoveSequence) (int, error) {
	cands := pureInputs(seq, func(*types.InputArgument) bool { return true })
	if len(cands) == 0 {
		return 0, fmt.Errorf("%w: no pure inputs", ErrNotApplicable)
	}
	r := mctx.Rand
	split := splitAmounts(seq)
	want := 1 + r.Intn(min(len(cands), 3))
	mutated := 0
	for _, k := range r.Perm(len(cands)) {
		idx := cands[k]
		if mutator.Mutate(mctx, &seq.Inputs[idx], split[idx]) == mutator.Mutated {
			mutated++
		}
		if mutated >= want {
			break
		}
	}
	if mutated == 0 {
		return 0, fmt.Errorf("%w: every value mutation skipped", ErrNotApplicable)
	}
	return mutated, nil
}

// SampleMagicInput 以魔数覆盖一个整数或整数向量输入
func SampleMagicInput(mctx *mutator.Context, seq *types.MoveSequence) error {
	cands := pureInputs(seq, func(a *types.InputArgument) bool {
		return a.Kind.IsInteger() || a.Kind == types.ArgVector && a.ElemTag != nil && a.ElemTag.Kind.IsInteger()
	})
	for _, k := range mctx.Rand.Perm(len(cands)) {
		if mutator.SampleMagic(mctx, &seq.Inputs[cands[k]]) == mutator.Mutated {
			return nil
		}
	}
	return fmt.Errorf("%w: no magic number fits", ErrNotApplicable)
}

// Removable 结果未被后续命令引用的命令下标
func Removable(seq *types.MoveSequence) []int {
	referenced := make(map[int]bool)
	for i := range seq.Commands {
		for _, arg := range seq.Commands[i].Arguments() {
			if cmd, ok := arg.CommandIndex(); ok {
				referenced[cmd] = true
			}
		}
	}
	var out []int
	for i := range seq.Commands {
		if !referenced[i] {
			out = append(out, i)
		}
	}
	return out
}

// RemoveCall 删除命令i，后续结果引用前移；其结果仍被引用时拒绝
func RemoveCall(seq *types.MoveSequence, i int, x *Index) error {
	if i < 0 || i >= len(seq.Commands) {
		return fmt.Errorf("%w: remove %d of %d", ErrNotApplicable, i, len(seq.Commands))
	}
	work := seq.Clone()
	commands := append(work.Commands[:i:i], work.Commands[i+1:]...)
	for k := range commands {
		var dangling bool
		commands[k].MapArguments(func(arg types.SequenceArgument) types.SequenceArgument {
			cmd, ok := arg.CommandIndex()
			switch {
			case !ok || cmd < i:
			case cmd == i:
				dangling = true
			default:
				arg.Index = cmd - 1
			}
			return arg
		})
		if dangling {
			return fmt.Errorf("%w: result of command %d still referenced", ErrDanglingReference, i)
		}
	}
	work.Commands = commands
	CompactInputs(work)
	if err := TypeCheck(work, x); err != nil {
		return err
	}
	*seq = *work
	return nil
}

// SwapCalls 交换命令i与j的位置并重映射引用，产生前向引用或类型错误时拒绝
func SwapCalls(seq *types.MoveSequence, i, j int, x *Index) error {
	if i == j || i < 0 || j < 0 || i >= len(seq.Commands) || j >= len(seq.Commands) {
		return fmt.Errorf("%w: swap %d and %d of %d", ErrNotApplicable, i, j, len(seq.Commands))
	}
	work := seq.Clone()
	work.Commands[i], work.Commands[j] = work.Commands[j], work.Commands[i]
	for k := range work.Commands {
		work.Commands[k].MapArguments(func(arg types.SequenceArgument) types.SequenceArgument {
			switch cmd, ok := arg.CommandIndex(); {
			case ok && cmd == i:
				arg.Index = j
			case ok && cmd == j:
				arg.Index = i
			}
			return arg
		})
	}
	if err := TypeCheck(work, x); err != nil {
		return err
	}
	*seq = *work
	return nil
}

// Splice 将donor的命令追加到seq末尾：纯值输入整体追加，同一对象复用已有输入，结果引用按偏移重映射
//
// donor的后处理命令先被剥离，只拼接其主体。
func Splice(seq *types.MoveSequence, donor *types.MoveSequence, x *Index) error {
	donor = donor.Clone()
	Strip(donor)
	if len(donor.Commands) == 0 {
		return fmt.Errorf("%w: empty donor", ErrNotApplicable)
	}
	work := seq.Clone()
	objects := make(map[types.Address]int)
	for i := range work.Inputs {
		if obj := work.Inputs[i].Object; obj != nil {
			objects[obj.ID] = i
		}
	}
	inputMap := make([]int, len(donor.Inputs))
	for i := range donor.Inputs {
		in := donor.Inputs[i].Clone()
		if in.Object != nil {
			if idx, ok := objects[in.Object.ID]; ok {
				inputMap[i] = idx
				if in.Object.Mutable {
					work.Inputs[idx].Object.Mutable = true
				}
				continue
			}
		}
		work.AddInput(in)
		inputMap[i] = len(work.Inputs) - 1
		if in.Object != nil {
			objects[in.Object.ID] = inputMap[i]
		}
	}
	offset := len(work.Commands)
	for i := range donor.Commands {
		cmd := donor.Commands[i].Clone()
		cmd.MapArguments(func(arg types.SequenceArgument) types.SequenceArgument {
			if arg.Kind == types.RefInput {
				arg.Index = inputMap[arg.Index]
			} else {
				arg.Index += offset
			}
			return arg
		})
		work.Commands = append(work.Commands, cmd)
	}
	CompactInputs(work)
	if err := TypeCheck(work, x); err != nil {
		return err
	}
	*seq = *work
	return nil
}

// CompactInputs 删除未被任何命令引用的输入并重排下标，返回删除个数
func CompactInputs(seq *types.MoveSequence) int {
	used := make([]bool, len(seq.Inputs))
	for i := range seq.Commands {
		for _, arg := range seq.Commands[i].Arguments() {
			if arg.Kind == types.RefInput && arg.Index >= 0 && arg.Index < len(used) {
				used[arg.Index] = true
			}
		}
	}
	remap := make([]int, len(seq.Inputs))
	kept := seq.Inputs[:0]
	for i := range seq.Inputs {
		if used[i] {
			remap[i] = len(kept)
			kept = append(kept, seq.Inputs[i])
		}
	}
	removed := len(seq.Inputs) - len(kept)
	if removed == 0 {
		return 0
	}
	seq.Inputs = kept
	for i := range seq.Commands {
		seq.Commands[i].MapArguments(func(arg types.SequenceArgument) types.SequenceArgument {
			if arg.Kind == types.RefInput && arg.Index < len(remap) {
				arg.Index = remap[arg.Index]
			}
			return arg
		})
	}
	return removed
}
