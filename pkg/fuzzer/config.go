package fuzzer

import (
	"fmt"
	"os"
	"time"

	"movefuzz/pkg/executor"
	"movefuzz/pkg/metadata"
	"movefuzz/pkg/mutator"
	"movefuzz/pkg/oracle"
	"movefuzz/pkg/report"
	"movefuzz/pkg/sequence"
	"movefuzz/pkg/symbolic"
	"movefuzz/pkg/types"

	"gopkg.in/yaml.v2"
)

// Config 模糊测试配置，对应YAML顶层结构
type Config struct {
	Target   TargetConfig    `yaml:"target"`
	Executor executor.Config `yaml:"executor"`
	Fuzzing  FuzzingConfig   `yaml:"fuzzing"`
	Sequence sequence.Config `yaml:"sequence"`
	Mutation MutationConfig  `yaml:"mutation"`
	Symbolic symbolic.Config `yaml:"symbolic"`
	Oracles  oracle.Config   `yaml:"oracles"`
	Output   report.Config   `yaml:"output"`
}

// TargetConfig 被测对象
type TargetConfig struct {
	SnapshotPath   string   `yaml:"snapshot_path"`   // JSON快照，与StateRPC二选一
	StateRPC       string   `yaml:"state_rpc"`       // 状态服务地址
	Packages       []string `yaml:"packages"`        // 需要加载的包
	TargetPackages []string `yaml:"target_packages"` // 只调用这些包的函数；为空时全部
	IncludeTypes   []string `yaml:"include_types"`
	ExcludeTypes   []string `yaml:"exclude_types"`
	Attacker       string   `yaml:"attacker"`
	ModuleIR       []string `yaml:"module_ir"` // 反汇编IR，字节码类oracle使用
}

// FuzzingConfig 调度参数
type FuzzingConfig struct {
	Workers        int           `yaml:"workers"`
	Seed           int64         `yaml:"seed"`
	MaxCycles      int64         `yaml:"max_cycles"` // 每个worker的周期上限，0为不限
	Duration       time.Duration `yaml:"duration"`   // 0为不限
	SequenceLength int           `yaml:"sequence_length"`
	CorpusCap      int           `yaml:"corpus_cap"`    // 每个worker的语料上限
	NewGenBias     float64       `yaml:"new_gen_bias"`  // 空语料时重新生成的概率
	NewGenDecay    int           `yaml:"new_gen_decay"` // 语料达到该大小时生成概率减半
	StatsInterval  time.Duration `yaml:"stats_interval"`
}

// MutationConfig 变异参数
type MutationConfig struct {
	mutator.Policy `yaml:",inline"`
	Ops            []string `yaml:"ops"` // 启用的变异操作；为空时全部
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Attacker: "0xa11ce",
		},
		Executor: executor.DefaultConfig(),
		Fuzzing: FuzzingConfig{
			Workers:        4,
			Seed:           1,
			SequenceLength: 4,
			CorpusCap:      512,
			NewGenBias:     0.9,
			NewGenDecay:    32,
			StatsInterval:  30 * time.Second,
		},
		Sequence: sequence.DefaultConfig(),
		Mutation: MutationConfig{Policy: mutator.DefaultPolicy()},
		Symbolic: symbolic.DefaultConfig(),
		Output:   report.DefaultConfig(),
	}
}

// LoadConfig 读取YAML，未出现的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate 检查配置一致性
func (c *Config) Validate() error {
	if c.Fuzzing.Workers <= 0 {
		return fmt.Errorf("fuzzing.workers must be positive, got %d", c.Fuzzing.Workers)
	}
	if c.Fuzzing.SequenceLength <= 0 {
		return fmt.Errorf("fuzzing.sequence_length must be positive, got %d", c.Fuzzing.SequenceLength)
	}
	if c.Fuzzing.NewGenBias < 0 || c.Fuzzing.NewGenBias > 1 {
		return fmt.Errorf("fuzzing.new_gen_bias out of range: %v", c.Fuzzing.NewGenBias)
	}
	if _, err := c.Ops(); err != nil {
		return err
	}
	if _, err := c.AttackerAddress(); err != nil {
		return err
	}
	if _, err := c.PackageIDs(); err != nil {
		return err
	}
	_, err := c.MetadataOptions()
	return err
}

// Ops 启用的变异操作
func (c *Config) Ops() ([]sequence.Op, error) {
	if len(c.Mutation.Ops) == 0 {
		ops := make([]sequence.Op, sequence.NumOps)
		for i := range ops {
			ops[i] = sequence.Op(i)
		}
		return ops, nil
	}
	var ops []sequence.Op
	for _, name := range c.Mutation.Ops {
		op, err := sequence.ParseOp(name)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// AttackerAddress 模拟攻击者地址
func (c *Config) AttackerAddress() (types.Address, error) {
	a, err := types.HexToAddress(c.Target.Attacker)
	if err != nil {
		return types.Address{}, fmt.Errorf("target.attacker: %w", err)
	}
	return a, nil
}

// PackageIDs 需要加载的包
func (c *Config) PackageIDs() ([]types.Address, error) {
	return parseAddresses(c.Target.Packages)
}

// MetadataOptions 元数据构建选项
func (c *Config) MetadataOptions() (metadata.Options, error) {
	var opts metadata.Options
	var err error
	if opts.TargetPackages, err = parseAddresses(c.Target.TargetPackages); err != nil {
		return opts, err
	}
	if opts.IncludeTypes, err = parseTags(c.Target.IncludeTypes); err != nil {
		return opts, err
	}
	if opts.ExcludeTypes, err = parseTags(c.Target.ExcludeTypes); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseAddresses(in []string) ([]types.Address, error) {
	var out []types.Address
	for _, s := range in {
		a, err := types.HexToAddress(s)
		if err != nil {
			return nil, fmt.Errorf("address %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func parseTags(in []string) ([]types.TypeTag, error) {
	var out []types.TypeTag
	for _, s := range in {
		t, err := types.ParseTypeTag(s)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", s, err)
		}
		out = append(out, t)
	}
	return out, nil
}
