package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *types.Snapshot {
	pkgID := types.MustHexToAddress("0xabc")
	return &types.Snapshot{
		Objects: []types.ObjectInfo{
			{ID: types.MustHexToAddress("0x10"), Type: types.MustParseTypeTag("0xabc::vault::Vault"), Version: 5,
				Owner: types.Owner{Kind: types.OwnerShared, InitialSharedVersion: 2}},
			{ID: types.MustHexToAddress("0x11"), Type: types.CoinOf(types.MustParseTypeTag("0x2::sui::SUI")), Version: 1,
				Owner: types.Owner{Kind: types.OwnerAddress, Address: types.MustHexToAddress("0x1234")}},
		},
		Packages: []types.PackageAbi{{
			ID:      pkgID,
			Version: 1,
			Modules: []types.ModuleAbi{{
				Address: pkgID,
				Name:    "vault",
				Functions: []types.FunctionAbi{{
					Name:       "deposit",
					Visibility: types.VisibilityPublic,
					Parameters: []types.SignatureToken{types.PrimitiveToken(types.TokU64)},
				}},
			}},
		}},
	}
}

// TestSnapshotProvider 测试快照提供者
func TestSnapshotProvider(t *testing.T) {
	ctx := context.Background()
	p := NewSnapshotProvider(testSnapshot())

	ids, err := p.ListObjects(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	info, err := p.GetObjectInfo(ctx, types.MustHexToAddress("0x10"))
	require.NoError(t, err)
	assert.Equal(t, "0xabc::vault::Vault", info.Type.String())
	arg := info.AsArg()
	assert.True(t, arg.Shared)
	assert.Equal(t, types.Version(2), arg.Version)

	_, err = p.GetObjectInfo(ctx, types.MustHexToAddress("0x99"))
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	pkgInfo, err := p.GetObjectInfo(ctx, types.MustHexToAddress("0xabc"))
	require.NoError(t, err)
	assert.Equal(t, types.Version(1), pkgInfo.Version)

	fn, err := p.GetFunctionSignature(ctx, types.ModuleID{Address: types.MustHexToAddress("0xabc"), Name: "vault"}, "deposit")
	require.NoError(t, err)
	assert.Equal(t, "deposit", fn.Name)

	_, err = p.GetFunctionSignature(ctx, types.ModuleID{Address: types.MustHexToAddress("0xabc"), Name: "vault"}, "nope")
	assert.True(t, errors.Is(err, ErrFunctionNotFound))
}

// TestLoadSnapshot 测试从文件加载快照
func TestLoadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"objects": [{"id": "0x10", "type": "0xabc::vault::Vault", "owner": {"kind": "shared"}, "version": "0x5"}],
		"packages": []
	}`), 0o644))

	p, err := LoadSnapshot(path)
	require.NoError(t, err)
	info, err := p.GetObjectInfo(context.Background(), types.MustHexToAddress("0x10"))
	require.NoError(t, err)
	assert.Equal(t, types.Version(5), info.Version)

	_, err = LoadSnapshot(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

// countingProvider 统计下层调用次数
type countingProvider struct {
	Provider
	objectCalls int
}

func (c *countingProvider) GetObjectInfo(ctx context.Context, id types.Address) (*types.ObjectInfo, error) {
	c.objectCalls++
	return c.Provider.GetObjectInfo(ctx, id)
}

// TestCachedProvider 测试LRU缓存只回源一次
func TestCachedProvider(t *testing.T) {
	inner := &countingProvider{Provider: NewSnapshotProvider(testSnapshot())}
	cached, err := NewCachedProvider(inner, 8)
	require.NoError(t, err)

	id := types.MustHexToAddress("0x11")
	for i := 0; i < 3; i++ {
		info, err := cached.GetObjectInfo(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, types.IsCoin(info.Type))
	}
	assert.Equal(t, 1, inner.objectCalls)

	cached.Purge()
	_, err = cached.GetObjectInfo(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.objectCalls)
}

// movyService 进程内RPC服务，包装快照提供者
type movyService struct {
	snap *SnapshotProvider
}

func (s *movyService) ListObjects(ctx context.Context) ([]types.Address, error) {
	return s.snap.ListObjects(ctx)
}

func (s *movyService) GetObjectInfo(ctx context.Context, id types.Address) (*types.ObjectInfo, error) {
	return s.snap.GetObjectInfo(ctx, id)
}

func (s *movyService) GetPackage(ctx context.Context, id types.Address) (*types.PackageAbi, error) {
	return s.snap.GetPackage(ctx, id)
}

func (s *movyService) GetFunction(ctx context.Context, module types.ModuleID, name string) (*types.FunctionAbi, error) {
	return s.snap.GetFunctionSignature(ctx, module, name)
}

// TestRPCProvider 测试通过进程内RPC读取状态
func TestRPCProvider(t *testing.T) {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("movy", &movyService{snap: NewSnapshotProvider(testSnapshot())}))
	defer server.Stop()

	p := NewRPCProvider(rpc.DialInProc(server), 0)
	defer p.Close()
	ctx := context.Background()

	ids, err := p.ListObjects(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	info, err := p.GetObjectInfo(ctx, types.MustHexToAddress("0x11"))
	require.NoError(t, err)
	assert.True(t, types.IsCoin(info.Type))

	pkg, err := p.GetPackage(ctx, types.MustHexToAddress("0xabc"))
	require.NoError(t, err)
	require.Len(t, pkg.Modules, 1)

	fn, err := p.GetFunctionSignature(ctx, pkg.Modules[0].ID(), "deposit")
	require.NoError(t, err)
	assert.Equal(t, types.VisibilityPublic, fn.Visibility)

	_, err = p.GetObjectInfo(ctx, types.MustHexToAddress("0x99"))
	assert.Error(t, err)
}
