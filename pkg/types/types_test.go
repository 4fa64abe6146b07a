package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseTypeTag 测试类型字符串解析与规范化输出
func TestParseTypeTag(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"u64", "u64"},
		{"vector<u8>", "vector<u8>"},
		{"vector<vector<address>>", "vector<vector<address>>"},
		{"0x2::coin::Coin<0x2::sui::SUI>", "0x2::coin::Coin<0x2::sui::SUI>"},
		{"0x0002::pool::Pool<0x2::sui::SUI,0xabc::usdc::USDC>", "0x2::pool::Pool<0x2::sui::SUI, 0xabc::usdc::USDC>"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			tag, err := ParseTypeTag(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, tag.String())

			again, err := ParseTypeTag(tag.String())
			require.NoError(t, err)
			assert.True(t, tag.Equal(again))
		})
	}

	for _, bad := range []string{"", "vector<u8", "0x2::coin", "0x2::coin::Coin<u8,", "u8 u8"} {
		_, err := ParseTypeTag(bad)
		assert.Error(t, err, bad)
	}
}

// TestTypeTagJSON 测试类型标签作为JSON字符串及map键
func TestTypeTagJSON(t *testing.T) {
	coin := CoinOf(MustParseTypeTag("0x2::sui::SUI"))
	data, err := json.Marshal(map[string]TypeTag{"t": coin})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"0x2::coin::Coin<0x2::sui::SUI>"}`, string(data))

	var back map[string]TypeTag
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back["t"].Equal(coin))
	assert.True(t, IsCoin(back["t"]))
}

// TestSignatureTokenSubst 测试类型参数替换
func TestSignatureTokenSubst(t *testing.T) {
	pool := StructRef{Address: MustHexToAddress("0xabc"), Module: "pool", Name: "Pool"}
	sui := MustParseTypeTag("0x2::sui::SUI")

	tok := MutRefToken(StructToken(pool, TypeParamToken(1), VectorToken(TypeParamToken(0))))
	tag, err := tok.Subst([]TypeTag{U64Tag, sui})
	require.NoError(t, err)
	assert.Equal(t, "0xabc::pool::Pool<0x2::sui::SUI, vector<u64>>", tag.String())
	assert.True(t, tok.ContainsTypeParameter())
	assert.Equal(t, 1, tok.MaxTypeParameter())

	_, err = TypeParamToken(2).Subst([]TypeTag{U8Tag})
	assert.True(t, errors.Is(err, ErrTypeParamOutOfRange))

	plain, err := PrimitiveToken(TokU128).Subst(nil)
	require.NoError(t, err)
	assert.Equal(t, U128Tag, plain)
}

// TestAbilityJSON 测试能力集合编解码
func TestAbilityJSON(t *testing.T) {
	a := AbilityKey | AbilityStore
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `["store","key"]`, string(data))

	var back Ability
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, a, back)

	require.NoError(t, json.Unmarshal([]byte(`"copy+drop"`), &back))
	assert.True(t, back.Has(AbilityCopy|AbilityDrop))
	assert.False(t, back.Has(AbilityKey))
}

// TestInputArgumentJSON 测试输入值编解码（含u256大数）
func TestInputArgumentJSON(t *testing.T) {
	big := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	vec, err := NewVector(U16Tag, []InputArgument{NewU16(7), NewU16(65535)})
	require.NoError(t, err)

	inputs := []InputArgument{
		NewBool(true),
		NewU8(255),
		NewUint(ArgU256, big),
		NewAddress(MustHexToAddress("0xdead")),
		vec,
		NewBytes([]byte("hi")),
		NewObject(ObjectArg{ID: MustHexToAddress("0x77"), Type: CoinOf(MustParseTypeTag("0x2::sui::SUI")), Version: 3}),
	}
	for _, in := range inputs {
		data, err := json.Marshal(in)
		require.NoError(t, err)
		var back InputArgument
		require.NoError(t, json.Unmarshal(data, &back), string(data))
		assert.True(t, in.Equal(&back), string(data))
	}
}

// TestNewUintTruncates 测试整数按宽度截断
func TestNewUintTruncates(t *testing.T) {
	arg := NewUint(ArgU16, uint256.NewInt(0x12345))
	assert.Equal(t, uint64(0x2345), arg.Uint64())

	_, err := NewVector(U8Tag, []InputArgument{NewU64(1)})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

// TestSequenceJSON 测试序列编解码与克隆
func TestSequenceJSON(t *testing.T) {
	seq := &MoveSequence{}
	amount := seq.AddInput(NewU64(100))
	bal := seq.AddCommand(CallCommand(&MoveCall{
		Package:   MustHexToAddress("0xabc"),
		Module:    "vault",
		Function:  "withdraw",
		Arguments: []SequenceArgument{amount},
	}))
	seq.AddCommand(CallCommand(FromBalanceCall(MustParseTypeTag("0x2::sui::SUI"), bal)))
	actor := seq.AddInput(NewAddress(MustHexToAddress("0x1234")))
	seq.AddCommand(TransferCommand([]SequenceArgument{NestedResult(1, 0)}, actor))

	data, err := json.Marshal(seq)
	require.NoError(t, err)
	var back MoveSequence
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, seq.Equal(&back))
	assert.Equal(t, seq.Digest(), back.Digest())

	clone := seq.Clone()
	clone.Commands[0].Call.Arguments[0] = Input(1)
	assert.Equal(t, amount, seq.Commands[0].Call.Arguments[0])
	assert.False(t, seq.Equal(clone))
	assert.Equal(t, 2, seq.Calls())
}

// TestVersionJSON 测试版本号的多种输入格式
func TestVersionJSON(t *testing.T) {
	for in, want := range map[string]Version{`42`: 42, `"0x2a"`: 42, `"42"`: 42, `""`: 0} {
		var v Version
		require.NoError(t, json.Unmarshal([]byte(in), &v), in)
		assert.Equal(t, want, v, in)
	}
	var v Version
	assert.Error(t, json.Unmarshal([]byte(`"zz"`), &v))
}

// TestSeverityOrder 测试严重等级顺序
func TestSeverityOrder(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityMajor))
	assert.True(t, SeverityInformational > SeverityDiscussion)
	s, err := ParseSeverity("major")
	require.NoError(t, err)
	assert.Equal(t, SeverityMajor, s)
}

func TestAddressHex(t *testing.T) {
	a, err := HexToAddress("0x2")
	require.NoError(t, err)
	assert.Equal(t, FrameworkAddress, a)
	assert.Equal(t, "0x2", a.String())
	assert.Equal(t, "0x"+strings.Repeat("0", 63)+"2", a.Hex())

	b, err := HexToAddress(" 0XABC ")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", b.String())
	back, err := HexToAddress(b.Hex())
	require.NoError(t, err)
	assert.Equal(t, b, back)
	assert.Equal(t, "0x0", ZeroAddress.String())

	for _, bad := range []string{"", "0x", "0xzz", "0x" + strings.Repeat("1", 65)} {
		_, err := HexToAddress(bad)
		assert.Error(t, err, bad)
	}
}
