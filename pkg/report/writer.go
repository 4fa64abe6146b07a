package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/log"
)

// Record JSONL中的一行
type Record struct {
	Oracle   string                 `json:"oracle"`
	Severity types.Severity         `json:"severity"`
	Location string                 `json:"location,omitempty"`
	Detail   map[string]interface{} `json:"detail,omitempty"`
	Digest   string                 `json:"digest,omitempty"`
	Time     time.Time              `json:"time"`
}

// Solution 复现文件内容
type Solution struct {
	Finding  types.OracleFinding `json:"finding"`
	Sequence *types.MoveSequence `json:"sequence"`
}

// Writer 线程安全的输出端，可被所有worker共享
type Writer struct {
	mu        sync.Mutex
	cfg       Config
	findings  *os.File
	enc       *json.Encoder
	alerts    *AlertManager
	minAlert  types.Severity
	written   int
	solutions int
	corpus    int
}

// Open 创建输出目录并以追加方式打开发现流
func Open(cfg Config) (*Writer, error) {
	w := &Writer{cfg: cfg, minAlert: types.SeverityMajor}
	if cfg.AlertSeverity != "" {
		s, err := types.ParseSeverity(cfg.AlertSeverity)
		if err != nil {
			return nil, err
		}
		w.minAlert = s
	}
	for _, dir := range []string{cfg.CorpusDir, cfg.SolutionsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if cfg.FindingsPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FindingsPath), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.FindingsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open findings %s: %w", cfg.FindingsPath, err)
		}
		w.findings = f
		w.enc = json.NewEncoder(f)
	}
	if cfg.WebhookURL != "" {
		w.alerts = NewAlertManager(cfg.WebhookURL, cfg.AlertThrottle)
	}
	return w, nil
}

// ReportFinding 追加发现；Critical/Major 同时写入复现序列
func (w *Writer) ReportFinding(f types.OracleFinding, seq *types.MoveSequence) error {
	rec := Record{
		Oracle:   f.Oracle,
		Severity: f.Severity,
		Location: f.Location,
		Detail:   f.Detail,
		Time:     f.Time,
	}
	if seq != nil {
		rec.Digest = seq.Digest()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc != nil {
		if err := w.enc.Encode(rec); err != nil {
			return fmt.Errorf("write finding: %w", err)
		}
	}
	w.written++

	if Persistent(f.Severity) && seq != nil && w.cfg.SolutionsDir != "" {
		name := fmt.Sprintf("%s-%s.json", f.Oracle, rec.Digest)
		if err := writeJSON(filepath.Join(w.cfg.SolutionsDir, name), Solution{Finding: f, Sequence: seq}); err != nil {
			return err
		}
		w.solutions++
		log.Info("Saved solution", "oracle", f.Oracle, "severity", f.Severity, "file", name)
	}
	if w.alerts != nil && f.Severity.AtLeast(w.minAlert) {
		w.alerts.SendAlert(f, rec.Digest)
	}
	return nil
}

// SaveCorpus 保存被接受的序列，同一摘要只写一次
func (w *Writer) SaveCorpus(seq *types.MoveSequence) error {
	if w.cfg.CorpusDir == "" || seq == nil {
		return nil
	}
	path := filepath.Join(w.cfg.CorpusDir, seq.Digest()+".json")

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := writeJSON(path, seq); err != nil {
		return err
	}
	w.corpus++
	return nil
}

// Counts 已写入的发现、复现与语料数
func (w *Writer) Counts() (findings, solutions, corpus int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written, w.solutions, w.corpus
}

// Alerts 告警管理器，未配置webhook时为nil
func (w *Writer) Alerts() *AlertManager {
	return w.alerts
}

// Close 等待未完成的告警并关闭发现流
func (w *Writer) Close() error {
	if w.alerts != nil {
		w.alerts.Wait()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.findings == nil {
		return nil
	}
	err := w.findings.Close()
	w.findings, w.enc = nil, nil
	return err
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// ReadFindings 读取JSONL发现流
func ReadFindings(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

// LoadSolution 读取复现文件
func LoadSolution(path string) (*Solution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Solution
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if s.Sequence == nil {
		return nil, errors.New("solution without sequence")
	}
	return &s, nil
}

// LoadCorpus 读取语料目录中的全部序列
func LoadCorpus(dir string) ([]*types.MoveSequence, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	var out []*types.MoveSequence
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var seq types.MoveSequence
		if err := json.Unmarshal(data, &seq); err != nil {
			log.Warn("Skipping unreadable corpus entry", "file", p, "err", err)
			continue
		}
		out = append(out, &seq)
	}
	return out, nil
}
