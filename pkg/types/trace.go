package types

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// CoverageMapSize 覆盖率位图大小（槽位数）
const CoverageMapSize = 16384

// Word 256位无符号整数，JSON中以十进制字符串表示
type Word uint256.Int

// NewWord 从uint256构造
func NewWord(v *uint256.Int) Word {
	return Word(*v)
}

// WordFromUint64 从uint64构造
func WordFromUint64(v uint64) Word {
	return Word(*uint256.NewInt(v))
}

// Int 转换为 *uint256.Int（拷贝）
func (w Word) Int() *uint256.Int {
	v := uint256.Int(w)
	return &v
}

// MarshalText 十进制编码
func (w Word) MarshalText() ([]byte, error) {
	return []byte(w.Int().Dec()), nil
}

// UnmarshalText 接受十进制或0x前缀十六进制
func (w *Word) UnmarshalText(text []byte) error {
	var v uint256.Int
	s := string(text)
	var err error
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		err = v.SetFromHex(s)
	} else {
		err = v.SetFromDecimal(s)
	}
	if err != nil {
		return fmt.Errorf("invalid word %q: %w", s, err)
	}
	*w = Word(v)
	return nil
}

// ExecStatus 执行状态
type ExecStatus string

const (
	StatusSuccess ExecStatus = "success"
	StatusAborted ExecStatus = "aborted" // Move abort，带abort code
	StatusFailed  ExecStatus = "failed"  // 其他VM错误（类型错误、gas耗尽等）
)

// CodeLocation 字节码位置
type CodeLocation struct {
	Module   ModuleID `json:"module"`
	Function string   `json:"function"`
	PC       int      `json:"pc"`
}

// Ident 所在函数
func (l CodeLocation) Ident() FunctionIdent {
	return FunctionIdent{Module: l.Module, Function: l.Function}
}

// String addr::module::function@pc
func (l CodeLocation) String() string {
	return Location(l.Ident(), l.PC)
}

// InstructionEvent 执行跟踪中的一条指令
type InstructionEvent struct {
	CodeLocation
	Op       string `json:"op"`                 // 小写助记符，如 shl / cast_u8 / lt
	Operands []Word `json:"operands,omitempty"` // 栈上操作数，按入栈顺序
	Width    int    `json:"width,omitempty"`    // 操作数类型的位宽
	Result   *Word  `json:"result,omitempty"`
}

// Comparison 执行中观察到的整数比较，用于生成比较提示
type Comparison struct {
	CodeLocation
	Op    string `json:"op"` // eq / neq / lt / le / gt / ge
	Width int    `json:"width"`
	Left  Word   `json:"left"`
	Right Word   `json:"right"`
	Taken bool   `json:"taken"`
}

// MoveEvent 执行中发出的事件
type MoveEvent struct {
	Type     TypeTag                `json:"type"`
	Sender   Address                `json:"sender"`
	Contents map[string]interface{} `json:"contents,omitempty"`
}

// BalanceChange 地址在某币种上的余额变化（可为负）
type BalanceChange struct {
	Owner    Address  `json:"owner"`
	CoinType TypeTag  `json:"coin_type"`
	Amount   *big.Int `json:"amount"`
}

// Trace 一次执行的跟踪
type Trace struct {
	Instructions   []InstructionEvent `json:"instructions,omitempty"`
	Comparisons    []Comparison       `json:"comparisons,omitempty"`
	Events         []MoveEvent        `json:"events,omitempty"`
	BalanceChanges []BalanceChange    `json:"balance_changes,omitempty"`
}

// ExecutionResult 执行器返回的结果
type ExecutionResult struct {
	Status    ExecStatus    `json:"status"`
	AbortCode uint64        `json:"abort_code,omitempty"`
	AbortAt   *CodeLocation `json:"abort_at,omitempty"`
	Error     string        `json:"error,omitempty"`
	GasUsed   uint64        `json:"gas_used"`
	Coverage  []uint32      `json:"coverage,omitempty"` // 命中的覆盖率槽位
	Trace     Trace         `json:"trace"`
}

// Succeeded 执行是否成功
func (r *ExecutionResult) Succeeded() bool {
	return r.Status == StatusSuccess
}
