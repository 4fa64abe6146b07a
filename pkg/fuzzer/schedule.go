package fuzzer

import (
	"math"
	"math/rand"
	"sync"

	"movefuzz/pkg/sequence"
)

// decayEvery 每累计这么多次观测对后验做一次衰减
const decayEvery = 500

// OpScheduler 变异操作的全局 Thompson Sampling
//
// 每个操作是一个 Beta 臂，奖励为本次变异是否带来新覆盖。所有worker共享。
type OpScheduler struct {
	mu    sync.Mutex
	ops   []sequence.Op
	alpha []float64
	beta  []float64
	total int64
}

// NewOpScheduler 以 Beta(1,1) 为先验
func NewOpScheduler(ops []sequence.Op) *OpScheduler {
	s := &OpScheduler{
		ops:   append([]sequence.Op(nil), ops...),
		alpha: make([]float64, len(ops)),
		beta:  make([]float64, len(ops)),
	}
	for i := range ops {
		s.alpha[i], s.beta[i] = 1, 1
	}
	return s
}

// Select 从各臂后验采样，返回样本最大的臂
func (s *OpScheduler) Select(rnd *rand.Rand) (int, sequence.Op) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best, bestSample := 0, -1.0
	for a := range s.ops {
		sample := betaSample(rnd, s.alpha[a], s.beta[a])
		if sample > bestSample {
			best, bestSample = a, sample
		}
	}
	return best, s.ops[best]
}

// Update 记录奖励，reward 取值 [0,1]
func (s *OpScheduler) Update(arm int, reward float64) {
	if arm < 0 || arm >= len(s.ops) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if reward > 0 {
		s.alpha[arm] += reward
	} else {
		s.beta[arm]++
	}
	if s.total%decayEvery == 0 {
		for a := range s.ops {
			s.alpha[a] = math.Max(1, s.alpha[a]*0.95)
			s.beta[a] = math.Max(1, s.beta[a]*0.95)
		}
	}
}

// Probs 各操作的后验均值
func (s *OpScheduler) Probs() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.ops))
	for a, op := range s.ops {
		out[op.String()] = s.alpha[a] / (s.alpha[a] + s.beta[a])
	}
	return out
}

// betaSample 用两个Gamma样本构造Beta样本
func betaSample(rnd *rand.Rand, alpha, beta float64) float64 {
	x := gammaSample(rnd, alpha)
	y := gammaSample(rnd, beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// gammaSample Marsaglia-Tsang
func gammaSample(rnd *rand.Rand, alpha float64) float64 {
	if alpha < 1 {
		return gammaSample(rnd, alpha+1) * math.Pow(rnd.Float64(), 1.0/alpha)
	}
	d := alpha - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		var x, v float64
		for {
			x = rnd.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rnd.Float64()
		if u < 1.0-0.0331*(x*x)*(x*x) {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}
