package sequence

import (
	"fmt"

	"movefuzz/pkg/types"
)

// slotKey 命令结果的位置 (命令下标, 子结果下标)
type slotKey struct {
	cmd int
	sub int
}

// ResultSlot 一个命令结果及其使用情况
type ResultSlot struct {
	Arg        types.SequenceArgument // 引用该结果时使用的参数形式
	Command    int
	Sub        int
	Type       types.TypeTag        // 替换后的具体类型
	Token      types.SignatureToken // 声明的返回令牌
	ConsumedBy int                  // 按值消费它的命令，-1表示未被消费
}

// Analysis 序列的结果类型与消费分析
type Analysis struct {
	Results   []ResultSlot
	index     map[slotKey]int
	counts    []int       // 每个命令的返回值个数
	movedIn   map[int]int // 被按值消费的对象输入 -> 消费命令
	inputTags []types.TypeTag
}

// Unconsumed 未被按值消费的结果
func (a *Analysis) Unconsumed() []ResultSlot {
	var out []ResultSlot
	for _, s := range a.Results {
		if s.ConsumedBy < 0 {
			out = append(out, s)
		}
	}
	return out
}

// Slot 按参数形式查找结果
func (a *Analysis) Slot(arg types.SequenceArgument) (*ResultSlot, bool) {
	cmd, ok := arg.CommandIndex()
	if !ok || cmd >= len(a.counts) {
		return nil, false
	}
	if arg.Kind == types.RefResult && a.counts[cmd] != 1 {
		return nil, false
	}
	i, ok := a.index[slotKey{cmd, arg.ResultIndex()}]
	if !ok {
		return nil, false
	}
	return &a.Results[i], true
}

// argForm 单返回值用Result(i)，多返回值用NestedResult(i, j)
func argForm(cmd, sub, count int) types.SequenceArgument {
	if count == 1 {
		return types.Result(cmd)
	}
	return types.NestedResult(cmd, sub)
}

// Validate 检查引用顺序：命令结果引用必须指向严格更早的命令，输入引用必须在范围内
func Validate(seq *types.MoveSequence) error {
	for i := range seq.Commands {
		for _, arg := range seq.Commands[i].Arguments() {
			if cmd, ok := arg.CommandIndex(); ok {
				if cmd < 0 || cmd >= i {
					return fmt.Errorf("%w: command %d references %s", ErrDanglingReference, i, arg)
				}
				continue
			}
			if arg.Index < 0 || arg.Index >= len(seq.Inputs) {
				return fmt.Errorf("%w: command %d references %s of %d inputs", ErrDanglingReference, i, arg, len(seq.Inputs))
			}
		}
	}
	return nil
}

// TypeCheck 校验引用顺序、参数类型、能力约束与按值使用
func TypeCheck(seq *types.MoveSequence, x *Index) error {
	_, err := Analyze(seq, x)
	return err
}

// Analyze 逐条推导结果类型并记录消费关系，发现任何不一致即返回错误
func Analyze(seq *types.MoveSequence, x *Index) (*Analysis, error) {
	if err := Validate(seq); err != nil {
		return nil, err
	}
	an := &Analysis{
		index:     make(map[slotKey]int),
		counts:    make([]int, len(seq.Commands)),
		movedIn:   make(map[int]int),
		inputTags: make([]types.TypeTag, len(seq.Inputs)),
	}
	for i := range seq.Inputs {
		an.inputTags[i] = seq.Inputs[i].Tag()
	}

	for i := range seq.Commands {
		cmd := &seq.Commands[i]
		switch cmd.Kind {
		case types.CmdMoveCall:
			if err := an.checkCall(i, cmd.Call, seq, x); err != nil {
				return nil, err
			}
		case types.CmdTransferObjects:
			if err := an.checkTransfer(i, cmd, seq, x); err != nil {
				return nil, err
			}
		}
	}
	return an, nil
}

func (an *Analysis) typeOf(arg types.SequenceArgument) (types.TypeTag, *ResultSlot, error) {
	if arg.Kind == types.RefInput {
		return an.inputTags[arg.Index], nil, nil
	}
	slot, ok := an.Slot(arg)
	if !ok {
		return types.TypeTag{}, nil, fmt.Errorf("%w: %s has no such result", ErrDanglingReference, arg)
	}
	return slot.Type, slot, nil
}

// use 记录一次使用；byValue且类型不可copy时为消费
func (an *Analysis) use(cmd int, arg types.SequenceArgument, tag types.TypeTag, slot *ResultSlot, byValue bool, seq *types.MoveSequence, x *Index) error {
	if slot != nil && slot.ConsumedBy >= 0 {
		return fmt.Errorf("%w: %s used by command %d after command %d", ErrConsumed, arg, cmd, slot.ConsumedBy)
	}
	isObject := arg.Kind == types.RefInput && seq.Inputs[arg.Index].Kind == types.ArgObject
	if arg.Kind == types.RefInput {
		if by, moved := an.movedIn[arg.Index]; moved {
			return fmt.Errorf("%w: %s used by command %d after command %d", ErrConsumed, arg, cmd, by)
		}
	}
	if !byValue {
		return nil
	}
	if abilities, known := x.Abilities(tag); known && abilities.Has(types.AbilityCopy) {
		return nil
	}
	if slot != nil {
		slot.ConsumedBy = cmd
	} else if isObject {
		an.movedIn[arg.Index] = cmd
	}
	return nil
}

func (an *Analysis) checkCall(i int, call *types.MoveCall, seq *types.MoveSequence, x *Index) error {
	if call == nil {
		return fmt.Errorf("%w: command %d has no call", ErrUnknownFunction, i)
	}
	fn, ok := x.Function(call.Ident())
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFunction, call.Ident())
	}
	if len(call.TypeArguments) != len(fn.TypeParameters) {
		return fmt.Errorf("%w: %s expects %d type arguments, got %d",
			ErrTypeMismatch, call.Ident(), len(fn.TypeParameters), len(call.TypeArguments))
	}
	for j, constraint := range fn.TypeParameters {
		if a, known := x.Abilities(call.TypeArguments[j]); known && !a.Has(constraint) {
			return fmt.Errorf("%w: %s lacks %s required by %s", ErrTypeMismatch, call.TypeArguments[j], constraint, call.Ident())
		}
	}
	params := ExplicitParams(fn)
	if len(params) != len(call.Arguments) {
		return fmt.Errorf("%w: %s expects %d arguments, got %d", ErrTypeMismatch, call.Ident(), len(params), len(call.Arguments))
	}
	for j, p := range params {
		want, err := p.Subst(call.TypeArguments)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrTypeMismatch, call.Ident(), err)
		}
		arg := call.Arguments[j]
		got, slot, err := an.typeOf(arg)
		if err != nil {
			return err
		}
		if !got.Equal(want) {
			return fmt.Errorf("%w: %s argument %d is %s, want %s", ErrTypeMismatch, call.Ident(), j, got, want)
		}
		if err := an.use(i, arg, want, slot, !p.IsReference(), seq, x); err != nil {
			return err
		}
	}

	an.counts[i] = len(fn.Returns)
	for j, ret := range fn.Returns {
		tag, err := ret.Subst(call.TypeArguments)
		if err != nil {
			return fmt.Errorf("%w: %s return %d: %v", ErrTypeMismatch, call.Ident(), j, err)
		}
		an.index[slotKey{i, j}] = len(an.Results)
		an.Results = append(an.Results, ResultSlot{
			Arg:        argForm(i, j, len(fn.Returns)),
			Command:    i,
			Sub:        j,
			Type:       tag,
			Token:      ret,
			ConsumedBy: -1,
		})
	}
	return nil
}

func (an *Analysis) checkTransfer(i int, cmd *types.Command, seq *types.MoveSequence, x *Index) error {
	if len(cmd.Objects) == 0 {
		return fmt.Errorf("%w: command %d transfers nothing", ErrTypeMismatch, i)
	}
	for _, obj := range cmd.Objects {
		tag, slot, err := an.typeOf(obj)
		if err != nil {
			return err
		}
		if a, known := x.Abilities(tag); known && !a.Has(types.AbilityKey|types.AbilityStore) {
			return fmt.Errorf("%w: %s (%s) cannot be transferred", ErrTypeMismatch, obj, tag)
		}
		if err := an.use(i, obj, tag, slot, true, seq, x); err != nil {
			return err
		}
	}
	recipient, _, err := an.typeOf(cmd.Recipient)
	if err != nil {
		return err
	}
	if recipient.Kind != types.TagAddress {
		return fmt.Errorf("%w: recipient %s is %s", ErrTypeMismatch, cmd.Recipient, recipient)
	}
	return nil
}
