package mutator

import (
	"math/rand"
	"testing"

	"movefuzz/internal/fixture"
	"movefuzz/pkg/types"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randUint(r *rand.Rand, kind types.ArgKind) types.InputArgument {
	var b [32]byte
	r.Read(b[:])
	v := new(uint256.Int).SetBytes(b[:])
	return types.NewUint(kind, v)
}

func mustVector(t *testing.T, elem types.TypeTag, elems ...types.InputArgument) types.InputArgument {
	t.Helper()
	v, err := types.NewVector(elem, elems)
	require.NoError(t, err)
	return v
}

// TestSyncCommitRoundTrip 测试定宽值的字节往返无损
func TestSyncCommitRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	kinds := []types.ArgKind{types.ArgU8, types.ArgU16, types.ArgU32, types.ArgU64, types.ArgU128, types.ArgU256}
	for i := 0; i < 200; i++ {
		for _, k := range kinds {
			v := randUint(r, k)
			b, err := Sync(&v)
			require.NoError(t, err)
			assert.Len(t, b, k.ByteWidth())
			back, err := Commit(b, &v)
			require.NoError(t, err)
			assert.True(t, v.Equal(&back), "%s %s", k, v.String())
		}
	}

	others := []types.InputArgument{
		types.NewBool(true),
		types.NewBool(false),
		types.NewAddress(types.MustHexToAddress("0xdeadbeef")),
		mustVector(t, types.U64Tag, types.NewU64(1), types.NewU64(1<<63)),
		mustVector(t, types.U256Tag, randUint(r, types.ArgU256), randUint(r, types.ArgU256)),
		mustVector(t, types.U8Tag),
		types.NewBytes([]byte("magic")),
	}
	for _, v := range others {
		b, err := Sync(&v)
		require.NoError(t, err)
		back, err := Commit(b, &v)
		require.NoError(t, err)
		assert.True(t, v.Equal(&back), v.String())
	}

	nested := mustVector(t, types.VectorOf(types.U8Tag), types.NewBytes([]byte{1}))
	_, err := Sync(&nested)
	assert.ErrorIs(t, err, ErrNotFixedWidth)

	u64 := types.NewU64(5)
	_, err = Commit([]byte{1, 2}, &u64)
	assert.ErrorIs(t, err, types.ErrShapeMismatch)
}

// TestMutatePreservesShape 测试变异不改变标签与宽度
func TestMutatePreservesShape(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	pool := NewMagicPool()
	pool.AddUint(8, uint256.NewInt(1000))
	pool.AddUint(32, uint256.NewInt(7))
	ctx := NewContext(r, pool, []types.Address{fixture.Attacker})

	values := []types.InputArgument{
		types.NewBool(false),
		types.NewU8(3),
		types.NewU16(3),
		types.NewU32(3),
		types.NewU64(3),
		types.NewUint(types.ArgU128, uint256.NewInt(3)),
		types.NewUint(types.ArgU256, uint256.NewInt(3)),
		types.NewAddress(types.ZeroAddress),
		mustVector(t, types.U32Tag, types.NewU32(1), types.NewU32(2)),
	}
	for _, orig := range values {
		v := orig.Clone()
		for i := 0; i < 500; i++ {
			Mutate(ctx, &v, i%2 == 0)
			require.Equal(t, orig.Kind, v.Kind)
			if v.Kind.IsInteger() {
				assert.LessOrEqual(t, v.Num.BitLen(), v.Kind.ByteWidth()*8)
			}
			if v.Kind == types.ArgVector {
				require.NotNil(t, v.ElemTag)
				assert.True(t, v.ElemTag.Equal(types.U32Tag))
				for _, e := range v.Elems {
					assert.Equal(t, types.ArgU32, e.Kind)
				}
			}
		}
	}
}

// TestMutateU8AlwaysChanges 测试u8变异总是产生不同的值
func TestMutateU8AlwaysChanges(t *testing.T) {
	ctx := NewContext(rand.New(rand.NewSource(3)), nil, nil)
	v := types.NewU8(42)
	for i := 0; i < 300; i++ {
		before := v.Uint64()
		assert.Equal(t, Mutated, Mutate(ctx, &v, false))
		assert.NotEqual(t, before, v.Uint64())
	}
}

// TestMutateAddressUsesCallers 测试地址变异会选中已知调用者
func TestMutateAddressUsesCallers(t *testing.T) {
	ctx := NewContext(rand.New(rand.NewSource(5)), nil, []types.Address{fixture.Attacker})
	hit := false
	for i := 0; i < 100 && !hit; i++ {
		v := types.NewAddress(types.ZeroAddress)
		Mutate(ctx, &v, false)
		hit = v.Address == fixture.Attacker
	}
	assert.True(t, hit)
}

// TestStructuredPaths 测试结构化重采样路径可达
func TestStructuredPaths(t *testing.T) {
	ctx := NewContext(rand.New(rand.NewSource(11)), nil, nil)
	ctx.Policy.MagicProb = 0
	ctx.Policy.Pow2Tenths128 = 10
	v := types.NewUint(types.ArgU128, uint256.NewInt(12345))
	for i := 0; i < 50; i++ {
		if Mutate(ctx, &v, false) == Mutated {
			n := v.Num
			assert.Equal(t, 1, popcount(&n), v.String())
		}
	}

	ctx.Policy.SmallIntTenths = 10
	small := types.NewU32(0xffffffff)
	require.Equal(t, Mutated, Mutate(ctx, &small, false))
	assert.Less(t, small.Uint64(), ctx.Policy.SmallIntBound)

	big := types.NewUint(types.ArgU256, uint256.NewInt(99))
	require.Equal(t, Mutated, Mutate(ctx, &big, true))
	assert.True(t, big.Num.IsZero())
}

func popcount(v *uint256.Int) int {
	n := 0
	for i := 0; i < 256; i++ {
		if new(uint256.Int).Rsh(v, uint(i)).Uint64()&1 == 1 {
			n++
		}
	}
	return n
}

// TestSampleMagicSkipped 测试池为空或无匹配长度时跳过
func TestSampleMagicSkipped(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	v := types.NewU64(77)

	empty := NewContext(r, NewMagicPool(), nil)
	assert.Equal(t, Skipped, SampleMagic(empty, &v))
	assert.Equal(t, uint64(77), v.Uint64())

	pool := NewMagicPool()
	pool.AddUint(4, uint256.NewInt(9))
	pool.Add([]byte("abc"))
	mismatched := NewContext(r, pool, nil)
	assert.Equal(t, Skipped, SampleMagic(mismatched, &v))
	assert.Equal(t, uint64(77), v.Uint64())

	flag := types.NewBool(true)
	assert.Equal(t, Skipped, SampleMagic(mismatched, &flag))

	pool.AddUint(8, uint256.NewInt(1000))
	assert.Equal(t, Mutated, SampleMagic(mismatched, &v))
	assert.Equal(t, uint64(1000), v.Uint64())

	bytesArg := types.NewBytes([]byte("xyz"))
	assert.Equal(t, Mutated, SampleMagic(mismatched, &bytesArg))
	b, err := Sync(&bytesArg)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)
}

// TestHarvestConstants 测试从模块常量收集魔数
func TestHarvestConstants(t *testing.T) {
	mod := fixture.VaultModuleAbi()
	pool := NewMagicPool()
	added := pool.HarvestConstants([]*types.ModuleAbi{&mod})
	assert.Greater(t, added, 0)

	thousand := types.NewU64(1000)
	b, _ := Sync(&thousand)
	assert.Contains(t, pool.Fit(8), b)
	assert.Contains(t, pool.Fit(3), []byte("fee"))
	assert.Len(t, pool.Fit(16), 3)

	assert.False(t, pool.Add(b), "duplicates are ignored")
	clone := pool.Clone()
	assert.Equal(t, pool.Len(), clone.Len())
}
