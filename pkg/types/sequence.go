package types

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ArgRefKind 序列参数引用种类
type ArgRefKind uint8

const (
	RefInput ArgRefKind = iota
	RefResult
	RefNestedResult
)

// SequenceArgument 对输入槽或前序命令结果的引用
type SequenceArgument struct {
	Kind  ArgRefKind
	Index int // 输入槽下标或命令下标
	Sub   int // NestedResult 的子结果下标
}

// Input 引用第i个输入槽
func Input(i int) SequenceArgument { return SequenceArgument{Kind: RefInput, Index: i} }

// Result 引用第i个命令的（唯一）结果
func Result(i int) SequenceArgument { return SequenceArgument{Kind: RefResult, Index: i} }

// NestedResult 引用第i个命令的第j个结果
func NestedResult(i, j int) SequenceArgument {
	return SequenceArgument{Kind: RefNestedResult, Index: i, Sub: j}
}

// CommandIndex 若引用命令结果，返回命令下标
func (a SequenceArgument) CommandIndex() (int, bool) {
	if a.Kind == RefResult || a.Kind == RefNestedResult {
		return a.Index, true
	}
	return 0, false
}

// ResultIndex 引用的结果序号（Result视为0）
func (a SequenceArgument) ResultIndex() int {
	if a.Kind == RefNestedResult {
		return a.Sub
	}
	return 0
}

// String Input(0) / Result(1) / NestedResult(1,0)
func (a SequenceArgument) String() string {
	switch a.Kind {
	case RefInput:
		return fmt.Sprintf("Input(%d)", a.Index)
	case RefResult:
		return fmt.Sprintf("Result(%d)", a.Index)
	default:
		return fmt.Sprintf("NestedResult(%d,%d)", a.Index, a.Sub)
	}
}

// MarshalJSON {"Input":0} / {"Result":1} / {"NestedResult":[1,0]}
func (a SequenceArgument) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case RefInput:
		return json.Marshal(map[string]int{"Input": a.Index})
	case RefResult:
		return json.Marshal(map[string]int{"Result": a.Index})
	default:
		return json.Marshal(map[string][2]int{"NestedResult": {a.Index, a.Sub}})
	}
}

// UnmarshalJSON 见 MarshalJSON
func (a *SequenceArgument) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["Input"]; ok {
		*a = SequenceArgument{Kind: RefInput}
		return json.Unmarshal(v, &a.Index)
	}
	if v, ok := raw["Result"]; ok {
		*a = SequenceArgument{Kind: RefResult}
		return json.Unmarshal(v, &a.Index)
	}
	if v, ok := raw["NestedResult"]; ok {
		var pair [2]int
		if err := json.Unmarshal(v, &pair); err != nil {
			return err
		}
		*a = NestedResult(pair[0], pair[1])
		return nil
	}
	return fmt.Errorf("unknown sequence argument %s", string(data))
}

// MoveCall 具体的已解析调用
type MoveCall struct {
	Package       Address            `json:"package"`
	Module        string             `json:"module"`
	Function      string             `json:"function"`
	TypeArguments []TypeTag          `json:"type_arguments,omitempty"`
	Arguments     []SequenceArgument `json:"arguments,omitempty"`
}

// Ident 被调函数标识
func (c *MoveCall) Ident() FunctionIdent {
	return FunctionIdent{Module: ModuleID{Address: c.Package, Name: c.Module}, Function: c.Function}
}

// Is 是否调用了指定函数
func (c *MoveCall) Is(addr Address, module, function string) bool {
	return c.Package == addr && c.Module == module && c.Function == function
}

// Clone 深拷贝
func (c *MoveCall) Clone() *MoveCall {
	out := &MoveCall{Package: c.Package, Module: c.Module, Function: c.Function}
	for _, t := range c.TypeArguments {
		out.TypeArguments = append(out.TypeArguments, t.Clone())
	}
	out.Arguments = append([]SequenceArgument(nil), c.Arguments...)
	return out
}

// CommandKind 命令种类
type CommandKind uint8

const (
	CmdMoveCall CommandKind = iota
	CmdTransferObjects
)

// Command 序列中的一条命令：函数调用或结构性命令
type Command struct {
	Kind      CommandKind
	Call      *MoveCall          // CmdMoveCall
	Objects   []SequenceArgument // CmdTransferObjects
	Recipient SequenceArgument   // CmdTransferObjects
}

// CallCommand 构造调用命令
func CallCommand(call *MoveCall) Command {
	return Command{Kind: CmdMoveCall, Call: call}
}

// TransferCommand 构造转移命令
func TransferCommand(objects []SequenceArgument, recipient SequenceArgument) Command {
	return Command{Kind: CmdTransferObjects, Objects: objects, Recipient: recipient}
}

// Arguments 命令读取的全部参数引用
func (c *Command) Arguments() []SequenceArgument {
	if c.Kind == CmdMoveCall {
		if c.Call == nil {
			return nil
		}
		return c.Call.Arguments
	}
	out := make([]SequenceArgument, 0, len(c.Objects)+1)
	out = append(out, c.Objects...)
	return append(out, c.Recipient)
}

// MapArguments 原地改写全部参数引用
func (c *Command) MapArguments(fn func(SequenceArgument) SequenceArgument) {
	if c.Kind == CmdMoveCall {
		if c.Call != nil {
			for i := range c.Call.Arguments {
				c.Call.Arguments[i] = fn(c.Call.Arguments[i])
			}
		}
		return
	}
	for i := range c.Objects {
		c.Objects[i] = fn(c.Objects[i])
	}
	c.Recipient = fn(c.Recipient)
}

// Clone 深拷贝
func (c Command) Clone() Command {
	out := Command{Kind: c.Kind, Recipient: c.Recipient}
	if c.Call != nil {
		out.Call = c.Call.Clone()
	}
	if c.Objects != nil {
		out.Objects = append([]SequenceArgument(nil), c.Objects...)
	}
	return out
}

// String 人类可读形式
func (c Command) String() string {
	if c.Kind == CmdMoveCall && c.Call != nil {
		return fmt.Sprintf("%s%v(%v)", c.Call.Ident(), c.Call.TypeArguments, c.Call.Arguments)
	}
	return fmt.Sprintf("TransferObjects(%v, %s)", c.Objects, c.Recipient)
}

type transferJSON struct {
	Objects   []SequenceArgument `json:"objects,omitempty"`
	Recipient SequenceArgument   `json:"recipient"`
}

// MarshalJSON {"MoveCall":{...}} / {"TransferObjects":{...}}
func (c Command) MarshalJSON() ([]byte, error) {
	if c.Kind == CmdMoveCall {
		return json.Marshal(map[string]*MoveCall{"MoveCall": c.Call})
	}
	return json.Marshal(map[string]transferJSON{"TransferObjects": {Objects: c.Objects, Recipient: c.Recipient}})
}

// UnmarshalJSON 见 MarshalJSON
func (c *Command) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["MoveCall"]; ok {
		call := new(MoveCall)
		if err := json.Unmarshal(v, call); err != nil {
			return err
		}
		*c = CallCommand(call)
		return nil
	}
	if v, ok := raw["TransferObjects"]; ok {
		var t transferJSON
		if err := json.Unmarshal(v, &t); err != nil {
			return err
		}
		*c = TransferCommand(t.Objects, t.Recipient)
		return nil
	}
	return fmt.Errorf("unknown command %s", string(data))
}

// MoveSequence 一笔模拟交易：输入槽 + 有序命令
type MoveSequence struct {
	Inputs   []InputArgument `json:"inputs"`
	Commands []Command       `json:"commands"`
}

// Clone 深拷贝
func (s *MoveSequence) Clone() *MoveSequence {
	out := &MoveSequence{
		Inputs:   make([]InputArgument, len(s.Inputs)),
		Commands: make([]Command, len(s.Commands)),
	}
	for i := range s.Inputs {
		out.Inputs[i] = s.Inputs[i].Clone()
	}
	for i := range s.Commands {
		out.Commands[i] = s.Commands[i].Clone()
	}
	return out
}

// AddInput 追加输入槽，返回其引用
func (s *MoveSequence) AddInput(arg InputArgument) SequenceArgument {
	s.Inputs = append(s.Inputs, arg)
	return Input(len(s.Inputs) - 1)
}

// AddCommand 追加命令，返回其结果引用
func (s *MoveSequence) AddCommand(cmd Command) SequenceArgument {
	s.Commands = append(s.Commands, cmd)
	return Result(len(s.Commands) - 1)
}

// ReferenceGraph 每条命令读取的参数引用（深拷贝），用于比较结构是否改变
func (s *MoveSequence) ReferenceGraph() [][]SequenceArgument {
	out := make([][]SequenceArgument, len(s.Commands))
	for i := range s.Commands {
		out[i] = append([]SequenceArgument(nil), s.Commands[i].Arguments()...)
	}
	return out
}

// Calls 序列中的函数调用数
func (s *MoveSequence) Calls() int {
	n := 0
	for i := range s.Commands {
		if s.Commands[i].Kind == CmdMoveCall {
			n++
		}
	}
	return n
}

// Equal 结构与取值都相等
func (s *MoveSequence) Equal(o *MoveSequence) bool {
	if len(s.Inputs) != len(o.Inputs) || len(s.Commands) != len(o.Commands) {
		return false
	}
	for i := range s.Inputs {
		if !s.Inputs[i].Equal(&o.Inputs[i]) {
			return false
		}
	}
	a, err1 := json.Marshal(s.Commands)
	b, err2 := json.Marshal(o.Commands)
	return err1 == nil && err2 == nil && string(a) == string(b)
}

// Digest 序列内容的keccak256摘要
func (s *MoveSequence) Digest() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return hexutil.Encode(crypto.Keccak256(data))
}
