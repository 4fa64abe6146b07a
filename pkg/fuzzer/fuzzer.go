package fuzzer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"movefuzz/pkg/analysis"
	"movefuzz/pkg/executor"
	"movefuzz/pkg/metadata"
	"movefuzz/pkg/mutator"
	"movefuzz/pkg/oracle"
	"movefuzz/pkg/sequence"
	"movefuzz/pkg/symbolic"
	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// Sink 发现与语料的输出端，需线程安全
type Sink interface {
	ReportFinding(f types.OracleFinding, seq *types.MoveSequence) error
	SaveCorpus(seq *types.MoveSequence) error
}

// Deps 构造 Fuzzer 所需的外部组件
type Deps struct {
	Meta     *metadata.Metadata
	Executor executor.Executor
	Bank     *oracle.Bank
	Sink     Sink                                // 可为nil
	Modules  map[types.ModuleID]*analysis.Module // 可为nil，字节码类oracle需要
	Seeds    []*types.MoveSequence               // 启动时先执行的种子序列
}

// Fuzzer 多worker模糊测试实例
//
// Metadata 只读共享；每个worker持有独立的语料、覆盖与随机数流。
type Fuzzer struct {
	cfg      *Config
	deps     Deps
	index    *sequence.Index
	asm      *sequence.Assembler
	mut      *sequence.Mutator
	sched    *OpScheduler
	magic    *mutator.MagicPool
	attacker types.Address
	snapshot executor.Snapshot
	cover    *sharedCoverage
	stats    Stats
	start    time.Time
}

// New 创建实例，配置错误或没有可调用函数时失败
func New(cfg *Config, deps Deps) (*Fuzzer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Meta == nil || deps.Executor == nil {
		return nil, errors.New("fuzzer needs metadata and an executor")
	}
	if len(deps.Meta.Callable()) == 0 {
		return nil, ErrNoCallable
	}
	if deps.Bank == nil {
		deps.Bank = oracle.NewBank()
	}
	attacker, err := cfg.AttackerAddress()
	if err != nil {
		return nil, err
	}
	ops, err := cfg.Ops()
	if err != nil {
		return nil, err
	}

	index := sequence.NewIndex(deps.Meta)
	asm := sequence.NewAssembler(index, cfg.Sequence, attacker)
	magic := mutator.NewMagicPool()
	harvested := magic.HarvestConstants(deps.Meta.Modules())
	log.Info("Fuzzer initialized",
		"workers", cfg.Fuzzing.Workers,
		"callable", len(deps.Meta.Callable()),
		"oracles", len(deps.Bank.Oracles()),
		"magic", harvested,
		"seeds", len(deps.Seeds))

	return &Fuzzer{
		cfg:      cfg,
		deps:     deps,
		index:    index,
		asm:      asm,
		mut:      sequence.NewMutator(asm),
		sched:    NewOpScheduler(ops),
		magic:    magic,
		attacker: attacker,
		snapshot: executor.Snapshot(cfg.Executor.Snapshot),
		cover:    &sharedCoverage{cov: NewCoverage(0)},
	}, nil
}

// Run 启动全部worker，直到ctx取消、到达时长或周期上限
//
// 到达上限正常返回nil；ctx取消返回ctx.Err()。
func (f *Fuzzer) Run(ctx context.Context) error {
	f.start = time.Now()
	runCtx := ctx
	if d := f.cfg.Fuzzing.Duration; d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(runCtx)
	for id := 0; id < f.cfg.Fuzzing.Workers; id++ {
		w := f.newWorker(id)
		g.Go(func() error {
			return w.loop(gctx)
		})
	}

	done := make(chan struct{})
	go f.reportLoop(done)
	err := g.Wait()
	close(done)

	st := f.Stats()
	log.Info("Fuzzing finished",
		"elapsed", st.Elapsed.Round(time.Millisecond),
		"cycles", st.Cycles,
		"accepted", st.Accepted,
		"rejected", st.Rejected,
		"coverage", st.Coverage,
		"findings", st.Findings)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (f *Fuzzer) newWorker(id int) *worker {
	r := rand.New(rand.NewSource(f.cfg.Fuzzing.Seed + int64(id)))
	mctx := mutator.NewContext(r, f.magic.Clone(), []types.Address{f.attacker})
	mctx.Policy = f.cfg.Mutation.Policy

	solver, err := symbolic.NewConstraintSolver(f.cfg.Symbolic)
	if err != nil {
		log.Warn("Comparison hints disabled", "worker", id, "err", err)
		solver = nil
	}
	var seeds []*types.MoveSequence
	for i, s := range f.deps.Seeds {
		if i%f.cfg.Fuzzing.Workers == id {
			seeds = append(seeds, s.Clone())
		}
	}
	return &worker{
		id:     id,
		f:      f,
		rand:   r,
		mctx:   mctx,
		corpus: NewCorpus(f.cfg.Fuzzing.CorpusCap),
		cover:  NewCoverage(0),
		solver: solver,
		seeds:  seeds,
		logger: log.New("worker", id),
	}
}

func (f *Fuzzer) reportLoop(done <-chan struct{}) {
	interval := f.cfg.Fuzzing.StatsInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			st := f.Stats()
			log.Info("Fuzzing progress",
				"cycles", st.Cycles,
				"execs/s", fmt.Sprintf("%.1f", st.ExecsPerSec()),
				"corpus", st.CorpusSize,
				"coverage", st.Coverage,
				"findings", st.Findings,
				"ops", f.sched.Probs())
		}
	}
}

// Stats 当前统计
func (f *Fuzzer) Stats() StatsSnapshot {
	return f.stats.snapshot(f.start)
}

// Scheduler 变异操作调度器
func (f *Fuzzer) Scheduler() *OpScheduler {
	return f.sched
}

// Index 共享的类型/调用索引
func (f *Fuzzer) Index() *sequence.Index {
	return f.index
}
