package fuzzer

import (
	"context"
	"errors"
	"math/rand"

	"movefuzz/pkg/executor"
	"movefuzz/pkg/mutator"
	"movefuzz/pkg/oracle"
	"movefuzz/pkg/sequence"
	"movefuzz/pkg/symbolic"
	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/log"
)

// worker 单线程的 生成/变异 → 执行 → 评分 循环
type worker struct {
	id     int
	f      *Fuzzer
	rand   *rand.Rand
	mctx   *mutator.Context
	corpus *Corpus
	cover  *Coverage
	solver *symbolic.ConstraintSolver
	seeds  []*types.MoveSequence
	logger log.Logger
	cycles int64
}

// candidate 本周期待执行的序列及其来源
type candidate struct {
	entry *Entry
	arm   int // 调度臂，生成或种子时为-1
}

func (w *worker) loop(ctx context.Context) error {
	if w.solver != nil {
		defer w.solver.Close()
	}
	limit := w.f.cfg.Fuzzing.MaxCycles
	for limit <= 0 || w.cycles < limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.cycle(ctx); err != nil {
			return err
		}
	}
	w.logger.Debug("Worker reached cycle limit", "cycles", w.cycles, "corpus", w.corpus.Len())
	return nil
}

// cycle 一个完整周期；只有ctx取消会返回错误
func (w *worker) cycle(ctx context.Context) error {
	w.cycles++
	w.f.stats.Cycles.Add(1)

	cand, err := w.next()
	if err != nil {
		w.f.stats.Unbuildable.Add(1)
		w.logger.Trace("Cycle abandoned", "err", err)
		return nil
	}
	return w.run(ctx, cand)
}

// next 取种子、重新生成或变异已有条目
func (w *worker) next() (*candidate, error) {
	if len(w.seeds) > 0 {
		seq := w.seeds[0]
		w.seeds = w.seeds[1:]
		sequence.Strip(seq)
		if err := w.finalize(seq); err != nil {
			return nil, err
		}
		return &candidate{entry: NewEntry(seq, false), arm: -1}, nil
	}

	if w.corpus.Len() == 0 || w.rand.Float64() < w.genProb() {
		seq, err := w.f.asm.Generate(w.mctx, w.f.cfg.Fuzzing.SequenceLength)
		if err != nil {
			return nil, err
		}
		if err := w.finalize(seq); err != nil {
			return nil, err
		}
		w.f.stats.Generated.Add(1)
		return &candidate{entry: NewEntry(seq, false), arm: -1}, nil
	}

	parent := w.corpus.Select(w.rand)
	seq := parent.Seq.Clone()
	sequence.Strip(seq)
	arm, op := w.f.sched.Select(w.rand)
	if err := w.f.mut.Apply(w.mctx, seq, op, w.corpus.Donor(w.rand, parent)); err != nil {
		// 不可用的编辑不计入调度奖励
		if !errors.Is(err, sequence.ErrNotApplicable) {
			w.f.sched.Update(arm, 0)
		}
		return nil, err
	}
	if err := w.finalize(seq); err != nil {
		w.f.sched.Update(arm, 0)
		return nil, err
	}
	w.f.stats.Mutated.Add(1)
	e := NewEntry(seq, true)
	e.Op = op.String()
	return &candidate{entry: e, arm: arm}, nil
}

// genProb 重新生成的概率随语料增长衰减
func (w *worker) genProb() float64 {
	cfg := w.f.cfg.Fuzzing
	if cfg.NewGenDecay <= 0 {
		return cfg.NewGenBias
	}
	return cfg.NewGenBias / (1 + float64(w.corpus.Len())/float64(cfg.NewGenDecay))
}

func (w *worker) finalize(seq *types.MoveSequence) error {
	if err := sequence.Finalize(seq, w.f.index, w.f.attacker); err != nil {
		return err
	}
	return sequence.TypeCheck(seq, w.f.index)
}

func (w *worker) run(ctx context.Context, cand *candidate) error {
	e := cand.entry
	if err := e.Transition(Executing); err != nil {
		return err
	}
	res, err := w.f.deps.Executor.Execute(ctx, e.Seq, w.f.snapshot)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.f.stats.ExecErrors.Add(1)
		w.reject(cand)
		if executor.IsCycleLocal(err) {
			w.logger.Debug("Execution rejected", "err", err)
		} else {
			w.logger.Warn("Execution failed", "err", err)
		}
		return nil
	}

	fresh := w.cover.Observe(res.Coverage)
	if fresh > 0 {
		w.f.stats.Coverage.Store(int64(w.f.cover.merge(res.Coverage)))
	}

	findings := w.f.deps.Bank.Evaluate(&oracle.Observation{
		Sequence: e.Seq,
		Result:   res,
		Attacker: w.f.attacker,
		Modules:  w.f.deps.Modules,
	})
	e.Findings = findings
	w.report(e.Seq, findings)
	w.hints(ctx, res)

	if fresh > 0 || (e.Mutated && res.Succeeded()) {
		if err := e.Transition(Accepted); err != nil {
			return err
		}
		e.Coverage = Signature(res.Coverage)
		e.Score = score(fresh, findings)
		if evicted := w.corpus.Add(e); evicted == nil {
			w.f.stats.CorpusSize.Add(1)
		}
		w.f.stats.Accepted.Add(1)
		if sink := w.f.deps.Sink; sink != nil {
			if err := sink.SaveCorpus(e.Seq); err != nil {
				w.logger.Warn("Failed to save corpus entry", "err", err)
			}
		}
		w.logger.Debug("Accepted", "op", e.Op, "fresh", fresh, "status", res.Status, "calls", e.Seq.Calls())
	} else {
		w.reject(cand)
	}
	if cand.arm >= 0 {
		reward := 0.0
		if fresh > 0 {
			reward = 1
		}
		w.f.sched.Update(cand.arm, reward)
	}
	return nil
}

func (w *worker) reject(cand *candidate) {
	if err := cand.entry.Transition(Rejected); err != nil {
		w.logger.Error("Entry state", "err", err)
	}
	w.f.stats.Rejected.Add(1)
}

func (w *worker) report(seq *types.MoveSequence, findings []types.OracleFinding) {
	for _, fd := range findings {
		w.f.stats.Findings.Add(1)
		w.logger.Info("Oracle finding", "oracle", fd.Oracle, "severity", fd.Severity, "location", fd.Location)
		if sink := w.f.deps.Sink; sink != nil {
			if err := sink.ReportFinding(fd, seq.Clone()); err != nil {
				w.logger.Warn("Failed to report finding", "oracle", fd.Oracle, "err", err)
			}
		}
	}
}

// hints 把比较提示加入本worker的魔数池
func (w *worker) hints(ctx context.Context, res *types.ExecutionResult) {
	if w.solver == nil || len(res.Trace.Comparisons) == 0 {
		return
	}
	hs, err := w.solver.Hints(ctx, &res.Trace)
	if err != nil && ctx.Err() == nil {
		w.logger.Trace("Comparison hints incomplete", "err", err)
	}
	if n := symbolic.Feed(w.mctx.Magic, hs); n > 0 {
		w.f.stats.Hints.Add(int64(n))
	}
}
