package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/log"
)

const maxAlertHistory = 10000

// AlertManager webhook告警，按oracle限流
type AlertManager struct {
	webhookURL string
	throttle   time.Duration
	client     *http.Client

	mu        sync.Mutex
	history   []AlertRecord
	lastAlert map[string]time.Time
	pending   sync.WaitGroup
}

// AlertRecord 告警记录
type AlertRecord struct {
	Timestamp time.Time
	Finding   types.OracleFinding
	Success   bool
	Throttled bool
}

// WebhookPayload Webhook负载
type WebhookPayload struct {
	Type      string                 `json:"type"`
	Oracle    string                 `json:"oracle"`
	Severity  string                 `json:"severity"`
	Timestamp int64                  `json:"timestamp"`
	Location  string                 `json:"location,omitempty"`
	Digest    string                 `json:"digest,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AlertStatistics 告警统计
type AlertStatistics struct {
	TotalAlerts      int
	SuccessfulAlerts int
	FailedAlerts     int
	ThrottledAlerts  int
	AlertsByOracle   map[string]int
	LastAlertTime    time.Time
}

// NewAlertManager 创建告警管理器；throttle<=0 时不限流
func NewAlertManager(webhookURL string, throttle time.Duration) *AlertManager {
	return &AlertManager{
		webhookURL: webhookURL,
		throttle:   throttle,
		client:     &http.Client{Timeout: 10 * time.Second},
		lastAlert:  make(map[string]time.Time),
	}
}

// SendAlert 异步发送告警，同一oracle在限流窗口内只发一次
func (a *AlertManager) SendAlert(f types.OracleFinding, digest string) bool {
	a.mu.Lock()
	if last, ok := a.lastAlert[f.Oracle]; ok && a.throttle > 0 && time.Since(last) < a.throttle {
		a.recordLocked(AlertRecord{Timestamp: time.Now(), Finding: f, Throttled: true})
		a.mu.Unlock()
		log.Debug("Alert throttled", "oracle", f.Oracle)
		return false
	}
	a.lastAlert[f.Oracle] = time.Now()
	a.mu.Unlock()

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		err := a.sendWebhookAlert(f, digest)
		if err != nil {
			log.Warn("Failed to send webhook alert", "oracle", f.Oracle, "err", err)
		}
		a.mu.Lock()
		a.recordLocked(AlertRecord{Timestamp: time.Now(), Finding: f, Success: err == nil})
		a.mu.Unlock()
	}()
	return true
}

func (a *AlertManager) sendWebhookAlert(f types.OracleFinding, digest string) error {
	payload := WebhookPayload{
		Type:      "ORACLE_FINDING",
		Oracle:    f.Oracle,
		Severity:  f.Severity.String(),
		Timestamp: f.Time.Unix(),
		Location:  f.Location,
		Digest:    digest,
		Details:   f.Detail,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := a.client.Post(a.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	log.Info("Webhook alert sent", "oracle", f.Oracle, "severity", f.Severity)
	return nil
}

func (a *AlertManager) recordLocked(rec AlertRecord) {
	a.history = append(a.history, rec)
	if len(a.history) > maxAlertHistory {
		a.history = a.history[maxAlertHistory/2:]
	}
}

// Wait 等待所有在途告警
func (a *AlertManager) Wait() {
	a.pending.Wait()
}

// History 最近limit条记录，limit<=0 返回全部
func (a *AlertManager) History(limit int) []AlertRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	start := 0
	if limit > 0 && limit < len(a.history) {
		start = len(a.history) - limit
	}
	return append([]AlertRecord(nil), a.history[start:]...)
}

// Statistics 告警统计
func (a *AlertManager) Statistics() *AlertStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := &AlertStatistics{AlertsByOracle: make(map[string]int)}
	for _, rec := range a.history {
		if rec.Throttled {
			stats.ThrottledAlerts++
			continue
		}
		stats.TotalAlerts++
		if rec.Success {
			stats.SuccessfulAlerts++
		} else {
			stats.FailedAlerts++
		}
		stats.AlertsByOracle[rec.Finding.Oracle]++
		if rec.Timestamp.After(stats.LastAlertTime) {
			stats.LastAlertTime = rec.Timestamp
		}
	}
	return stats
}
