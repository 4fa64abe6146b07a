package sequence

import (
	"fmt"

	"movefuzz/pkg/types"
)

// ProcessBalance 为每个未被消费的Balance<T>结果追加 0x2::coin::from_balance<T>
//
// T取自生产调用的类型实参（返回类型引用了类型参数时）或返回结构体的第一个具体泛型实参。
// 返回追加的命令数。
func ProcessBalance(seq *types.MoveSequence, x *Index) (int, error) {
	an, err := Analyze(seq, x)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, slot := range an.Unconsumed() {
		if !types.IsBalanceToken(slot.Token) || len(slot.Token.TypeArgs) == 0 {
			continue
		}
		call := seq.Commands[slot.Command].Call
		inner := slot.Token.TypeArgs[0]
		var coinType types.TypeTag
		if inner.Kind == types.TokTypeParameter {
			if inner.Param >= len(call.TypeArguments) {
				return added, fmt.Errorf("%w: balance type parameter T%d of %s", ErrTypeMismatch, inner.Param, call.Ident())
			}
			coinType = call.TypeArguments[inner.Param].Clone()
		} else {
			coinType, err = inner.Subst(call.TypeArguments)
			if err != nil {
				return added, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
			}
		}
		seq.AddCommand(types.CallCommand(types.FromBalanceCall(coinType, slot.Arg)))
		added++
	}
	return added, nil
}

// RemoveProcessBalance 从末尾向前弹出连续的from_balance命令，遇到第一个不匹配的命令即停止
func RemoveProcessBalance(seq *types.MoveSequence) int {
	removed := 0
	for len(seq.Commands) > 0 {
		last := &seq.Commands[len(seq.Commands)-1]
		if last.Kind != types.CmdMoveCall || !types.IsFromBalance(last.Call) {
			break
		}
		seq.Commands = seq.Commands[:len(seq.Commands)-1]
		removed++
	}
	return removed
}

// ProcessKeyStore 把所有未被消费、具备key+store的结果转移给攻击者：追加一个地址输入和一条TransferObjects
func ProcessKeyStore(seq *types.MoveSequence, x *Index, attacker types.Address) (bool, error) {
	an, err := Analyze(seq, x)
	if err != nil {
		return false, err
	}
	var objects []types.SequenceArgument
	for _, slot := range an.Unconsumed() {
		if a, known := x.Abilities(slot.Type); known && a.Has(types.AbilityKey|types.AbilityStore) {
			objects = append(objects, slot.Arg)
		}
	}
	if len(objects) == 0 {
		return false, nil
	}
	recipient := seq.AddInput(types.NewAddress(attacker))
	seq.AddCommand(types.TransferCommand(objects, recipient))
	return true, nil
}

// RemoveProcessKeyStore 仅当最后一条命令恰好是"转移给最后一个地址输入"时，删除该命令及其输入
func RemoveProcessKeyStore(seq *types.MoveSequence) bool {
	if len(seq.Commands) == 0 || len(seq.Inputs) == 0 {
		return false
	}
	last := &seq.Commands[len(seq.Commands)-1]
	lastInput := len(seq.Inputs) - 1
	if last.Kind != types.CmdTransferObjects ||
		last.Recipient.Kind != types.RefInput ||
		last.Recipient.Index != lastInput ||
		seq.Inputs[lastInput].Kind != types.ArgAddress {
		return false
	}
	seq.Commands = seq.Commands[:len(seq.Commands)-1]
	seq.Inputs = seq.Inputs[:lastInput]
	return true
}

// Finalize 执行前的后处理：先转换余额，再把可存储对象转给攻击者
func Finalize(seq *types.MoveSequence, x *Index, attacker types.Address) error {
	if _, err := ProcessBalance(seq, x); err != nil {
		return err
	}
	_, err := ProcessKeyStore(seq, x, attacker)
	return err
}

// Strip Finalize的逆操作，按相反顺序撤销
func Strip(seq *types.MoveSequence) {
	RemoveProcessKeyStore(seq)
	RemoveProcessBalance(seq)
}
