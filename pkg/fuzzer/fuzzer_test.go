package fuzzer

import (
	"context"
	"math/big"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"movefuzz/internal/fixture"
	"movefuzz/pkg/executor"
	"movefuzz/pkg/metadata"
	"movefuzz/pkg/oracle"
	"movefuzz/pkg/report"
	"movefuzz/pkg/sequence"
	"movefuzz/pkg/state"
	"movefuzz/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMeta(t *testing.T) *metadata.Metadata {
	t.Helper()
	p := state.NewSnapshotProvider(fixture.Snapshot())
	m, err := metadata.Build(context.Background(), p, []types.Address{fixture.VaultPackage}, metadata.Options{})
	require.NoError(t, err)
	return m
}

// vaultVM 确定性的模拟执行：每个被调函数一个覆盖槽位，
// deposit 数量达到1000时多一个槽位，withdraw 给攻击者记一笔收益
func vaultVM(ctx context.Context, seq *types.MoveSequence, snapshot executor.Snapshot) (*types.ExecutionResult, error) {
	res := &types.ExecutionResult{Status: types.StatusSuccess, GasUsed: 1000}
	for i, cmd := range seq.Commands {
		if cmd.Kind != types.CmdMoveCall {
			res.Coverage = append(res.Coverage, 1)
			continue
		}
		call := cmd.Call
		res.Coverage = append(res.Coverage, uint32(len(call.Module)*64+len(call.Function)))
		loc := types.CodeLocation{Module: call.Ident().Module, Function: call.Function, PC: i}
		switch {
		case call.Is(fixture.VaultPackage, "vault", "deposit") && call.Arguments[1].Kind == types.RefInput:
			amount := seq.Inputs[call.Arguments[1].Index].Uint64()
			res.Trace.Comparisons = append(res.Trace.Comparisons, types.Comparison{
				CodeLocation: loc, Op: "lt", Width: 64,
				Left: types.WordFromUint64(amount), Right: types.WordFromUint64(1000),
				Taken: amount < 1000,
			})
			if amount >= 1000 {
				res.Coverage = append(res.Coverage, 999)
			}
		case call.Is(fixture.VaultPackage, "vault", "withdraw"):
			res.Trace.BalanceChanges = append(res.Trace.BalanceChanges, types.BalanceChange{
				Owner: fixture.Attacker, CoinType: fixture.SUI, Amount: big.NewInt(100),
			})
		}
	}
	return res, nil
}

// memSink 内存输出端
type memSink struct {
	mu       sync.Mutex
	findings []types.OracleFinding
	corpus   []*types.MoveSequence
}

func (s *memSink) ReportFinding(f types.OracleFinding, seq *types.MoveSequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, f)
	return nil
}

func (s *memSink) SaveCorpus(seq *types.MoveSequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpus = append(s.corpus, seq)
	return nil
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Fuzzing.Workers = 2
	cfg.Fuzzing.MaxCycles = 60
	cfg.Fuzzing.Seed = 7
	cfg.Fuzzing.SequenceLength = 3
	cfg.Fuzzing.StatsInterval = 0
	cfg.Target.Attacker = fixture.Attacker.Hex()
	return cfg
}

func newTestFuzzer(t *testing.T, cfg *Config, ex executor.Executor, sink Sink) *Fuzzer {
	t.Helper()
	oracles, err := oracle.New(oracle.Config{Enabled: []string{"Proceeds"}})
	require.NoError(t, err)
	f, err := New(cfg, Deps{Meta: buildMeta(t), Executor: ex, Bank: oracle.NewBank(oracles...), Sink: sink})
	require.NoError(t, err)
	return f
}

func TestFuzzerRun(t *testing.T) {
	sink := &memSink{}
	f := newTestFuzzer(t, testConfig(), executor.Func(vaultVM), sink)
	require.NoError(t, f.Run(context.Background()))

	st := f.Stats()
	assert.Equal(t, int64(120), st.Cycles)
	assert.Positive(t, st.Accepted)
	assert.Positive(t, st.Coverage)
	assert.Equal(t, st.Cycles, st.Accepted+st.Rejected+st.Unbuildable)
	assert.Zero(t, st.ExecErrors)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.corpus, int(st.Accepted))
	for _, seq := range sink.corpus {
		assert.NoError(t, sequence.TypeCheck(seq, f.Index()))
	}

	// Proceeds 跨worker去重后只报告一次
	var proceeds int
	for _, fd := range sink.findings {
		if fd.Oracle == "Proceeds" {
			proceeds++
			assert.Equal(t, types.SeverityCritical, fd.Severity)
		}
	}
	assert.Equal(t, 1, proceeds)
}

// TestFindingPersistedOnReject 无新覆盖的生成序列被拒绝，但其Critical发现仍连同序列写出
func TestFindingPersistedOnReject(t *testing.T) {
	profit := executor.Func(func(ctx context.Context, seq *types.MoveSequence, snapshot executor.Snapshot) (*types.ExecutionResult, error) {
		res := &types.ExecutionResult{Status: types.StatusSuccess}
		res.Trace.BalanceChanges = []types.BalanceChange{
			{Owner: fixture.Attacker, CoinType: fixture.SUI, Amount: big.NewInt(500)},
		}
		return res, nil
	})

	dir := t.TempDir()
	writer, err := report.Open(report.Config{
		FindingsPath: filepath.Join(dir, "findings.jsonl"),
		CorpusDir:    filepath.Join(dir, "corpus"),
		SolutionsDir: filepath.Join(dir, "solutions"),
	})
	require.NoError(t, err)

	f := newTestFuzzer(t, testConfig(), profit, writer)
	w := f.newWorker(0)
	var cand *candidate
	for i := 0; i < 20 && cand == nil; i++ {
		cand, err = w.next()
	}
	require.NotNil(t, cand, "no buildable sequence: %v", err)
	require.False(t, cand.entry.Mutated)
	require.NoError(t, w.run(context.Background(), cand))
	require.NoError(t, writer.Close())

	assert.Equal(t, Rejected, cand.entry.State())
	assert.Zero(t, w.corpus.Len())
	require.Len(t, cand.entry.Findings, 1)
	assert.Equal(t, types.SeverityCritical, cand.entry.Findings[0].Severity)

	records, err := report.ReadFindings(filepath.Join(dir, "findings.jsonl"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Proceeds", records[0].Oracle)
	assert.Equal(t, cand.entry.Seq.Digest(), records[0].Digest)

	sol, err := report.LoadSolution(filepath.Join(dir, "solutions", "Proceeds-"+records[0].Digest+".json"))
	require.NoError(t, err)
	assert.Equal(t, cand.entry.Seq.Digest(), sol.Sequence.Digest())

	corpus, err := report.LoadCorpus(filepath.Join(dir, "corpus"))
	require.NoError(t, err)
	assert.Empty(t, corpus)
}

func TestFuzzerExecErrors(t *testing.T) {
	reject := executor.Func(func(ctx context.Context, seq *types.MoveSequence, snapshot executor.Snapshot) (*types.ExecutionResult, error) {
		return nil, executor.ErrVMRejected
	})
	f := newTestFuzzer(t, testConfig(), reject, nil)
	require.NoError(t, f.Run(context.Background()))

	st := f.Stats()
	assert.Zero(t, st.Accepted)
	assert.Equal(t, st.ExecErrors, st.Rejected)
	assert.Equal(t, st.Cycles, st.Rejected+st.Unbuildable)
}

func TestFuzzerCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Fuzzing.MaxCycles = 0
	slow := executor.Func(func(ctx context.Context, seq *types.MoveSequence, snapshot executor.Snapshot) (*types.ExecutionResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
		return vaultVM(ctx, seq, snapshot)
	})
	f := newTestFuzzer(t, cfg, slow, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := f.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, f.Stats().Cycles)
}

func TestFuzzerDuration(t *testing.T) {
	cfg := testConfig()
	cfg.Fuzzing.MaxCycles = 0
	cfg.Fuzzing.Duration = 50 * time.Millisecond
	f := newTestFuzzer(t, cfg, executor.Func(vaultVM), nil)
	assert.NoError(t, f.Run(context.Background()))
}

func TestFuzzerSeeds(t *testing.T) {
	seq := &types.MoveSequence{}
	vault := seq.AddInput(types.NewObject(types.ObjectArg{
		ID: fixture.VaultObject, Type: fixture.Tag("Vault"), Version: 2, Shared: true, Mutable: true,
	}))
	amount := seq.AddInput(types.NewU64(5000))
	seq.AddCommand(types.CallCommand(&types.MoveCall{
		Package: fixture.VaultPackage, Module: "vault", Function: "deposit",
		Arguments: []types.SequenceArgument{vault, amount},
	}))

	var mu sync.Mutex
	var first *types.MoveSequence
	rec := executor.Func(func(ctx context.Context, s *types.MoveSequence, snapshot executor.Snapshot) (*types.ExecutionResult, error) {
		mu.Lock()
		if first == nil {
			first = s.Clone()
		}
		mu.Unlock()
		return vaultVM(ctx, s, snapshot)
	})

	cfg := testConfig()
	cfg.Fuzzing.Workers = 1
	cfg.Fuzzing.MaxCycles = 1
	bank := oracle.NewBank()
	f, err := New(cfg, Deps{Meta: buildMeta(t), Executor: rec, Bank: bank, Seeds: []*types.MoveSequence{seq}})
	require.NoError(t, err)
	require.NoError(t, f.Run(context.Background()))

	require.NotNil(t, first)
	assert.Equal(t, seq.Digest(), first.Digest())
	assert.Equal(t, int64(1), f.Stats().Accepted)
}

func TestNewValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Mutation.Ops = []string{"explode"}
	_, err := New(cfg, Deps{Meta: buildMeta(t), Executor: executor.Func(vaultVM)})
	assert.Error(t, err)

	_, err = New(testConfig(), Deps{Executor: executor.Func(vaultVM)})
	assert.Error(t, err)
}

func TestEntryTransitions(t *testing.T) {
	cases := []struct {
		name  string
		path  []State
		legal bool
	}{
		{name: "accept", path: []State{Executing, Accepted}, legal: true},
		{name: "reject", path: []State{Executing, Rejected}, legal: true},
		{name: "skip executing", path: []State{Accepted}},
		{name: "reexecute accepted", path: []State{Executing, Accepted, Executing}},
		{name: "revive rejected", path: []State{Executing, Rejected, Accepted}},
		{name: "back to queued", path: []State{Executing, Queued}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEntry(&types.MoveSequence{}, false)
			assert.Equal(t, Queued, e.State())
			var err error
			for _, s := range tc.path {
				if err = e.Transition(s); err != nil {
					break
				}
			}
			if tc.legal {
				assert.NoError(t, err)
				assert.Equal(t, tc.path[len(tc.path)-1], e.State())
			} else {
				assert.ErrorIs(t, err, ErrIllegalTransition)
			}
		})
	}
}

func TestCorpus(t *testing.T) {
	c := NewCorpus(2)
	a := &Entry{Score: 5}
	b := &Entry{Score: 1}
	d := &Entry{Score: 3}
	assert.Nil(t, c.Add(a))
	assert.Nil(t, c.Add(b))
	assert.Same(t, b, c.Add(d))
	assert.Equal(t, 2, c.Len())
	assert.ElementsMatch(t, []*Entry{a, d}, c.Entries())

	r := rand.New(rand.NewSource(1))
	counts := map[*Entry]int{}
	for i := 0; i < 800; i++ {
		counts[c.Select(r)]++
	}
	assert.Greater(t, counts[a], counts[d])
	assert.Zero(t, counts[b])

	assert.Nil(t, NewCorpus(0).Donor(r, nil))
}

func TestCoverage(t *testing.T) {
	c := NewCoverage(64)
	assert.Equal(t, 3, c.Observe([]uint32{1, 2, 3}))
	assert.Equal(t, 0, c.Observe([]uint32{3, 2}))
	assert.Equal(t, 1, c.Observe([]uint32{2, 64 + 5}))
	assert.True(t, c.Has(5))
	assert.Equal(t, 4, c.Count())

	assert.Equal(t, []uint32{1, 4, 9}, Signature([]uint32{9, 1, 4, 1, 9}))
}

func TestOpScheduler(t *testing.T) {
	ops := []sequence.Op{sequence.OpValue, sequence.OpInsert, sequence.OpRemove}
	s := NewOpScheduler(ops)
	for i := 0; i < 300; i++ {
		s.Update(1, 1)
		s.Update(0, 0)
		s.Update(2, 0)
	}
	r := rand.New(rand.NewSource(3))
	hits := 0
	for i := 0; i < 100; i++ {
		if arm, op := s.Select(r); arm == 1 {
			assert.Equal(t, sequence.OpInsert, op)
			hits++
		}
	}
	assert.Greater(t, hits, 90)

	probs := s.Probs()
	assert.Greater(t, probs[sequence.OpInsert.String()], probs[sequence.OpValue.String()])
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fuzz.yaml")
	yml := `
target:
  snapshot_path: snap.json
  packages: ["0xabc"]
  exclude_types: ["0x2::coin::Coin<0x2::sui::SUI>"]
  attacker: "0xbeef"
executor:
  rpc_url: http://vm:9545
  timeout: 2s
fuzzing:
  workers: 8
  seed: 42
mutation:
  magic_prob: 0.5
  ops: [value, splice]
oracles:
  enabled: [Proceeds, TypedBug]
  bug_events: [BugEvent]
output:
  webhook_url: http://hooks.local/alert
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Fuzzing.Workers)
	assert.Equal(t, int64(42), cfg.Fuzzing.Seed)
	assert.Equal(t, 4, cfg.Fuzzing.SequenceLength)
	assert.Equal(t, 2*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, 0.5, cfg.Mutation.MagicProb)
	assert.Equal(t, 9, cfg.Mutation.SmallIntTenths)
	assert.Equal(t, "http://hooks.local/alert", cfg.Output.WebhookURL)

	ops, err := cfg.Ops()
	require.NoError(t, err)
	assert.Equal(t, []sequence.Op{sequence.OpValue, sequence.OpSplice}, ops)

	ids, err := cfg.PackageIDs()
	require.NoError(t, err)
	assert.Equal(t, []types.Address{fixture.VaultPackage}, ids)

	opts, err := cfg.MetadataOptions()
	require.NoError(t, err)
	require.Len(t, opts.ExcludeTypes, 1)
	assert.True(t, types.IsCoin(opts.ExcludeTypes[0]))

	require.NoError(t, os.WriteFile(path, []byte("fuzzing:\n  workers: 0\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
