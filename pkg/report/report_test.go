package report

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"movefuzz/internal/fixture"
	"movefuzz/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeq(amount uint64) *types.MoveSequence {
	seq := &types.MoveSequence{}
	arg := seq.AddInput(types.NewU64(amount))
	seq.AddCommand(types.CallCommand(&types.MoveCall{
		Package:   fixture.VaultPackage,
		Module:    "vault",
		Function:  "deposit",
		Arguments: []types.SequenceArgument{arg},
	}))
	return seq
}

func testConfig(t *testing.T) Config {
	dir := t.TempDir()
	return Config{
		FindingsPath: filepath.Join(dir, "out", "findings.jsonl"),
		CorpusDir:    filepath.Join(dir, "corpus"),
		SolutionsDir: filepath.Join(dir, "solutions"),
	}
}

func TestWriterFindings(t *testing.T) {
	cfg := testConfig(t)
	w, err := Open(cfg)
	require.NoError(t, err)

	seq := testSeq(7)
	minor := types.NewFinding("TypeConversion", types.SeverityMinor, "0xabc::vault::deposit@3", nil)
	critical := types.NewFinding("Proceeds", types.SeverityCritical, "0x2::sui::SUI",
		map[string]interface{}{"profit": "100"})
	require.NoError(t, w.ReportFinding(minor, seq))
	require.NoError(t, w.ReportFinding(critical, seq))
	require.NoError(t, w.Close())

	recs, err := ReadFindings(cfg.FindingsPath)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "TypeConversion", recs[0].Oracle)
	assert.Equal(t, types.SeverityMinor, recs[0].Severity)
	assert.Equal(t, seq.Digest(), recs[1].Digest)
	assert.Equal(t, "100", recs[1].Detail["profit"])

	// 只有Critical写入复现
	entries, err := os.ReadDir(cfg.SolutionsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	sol, err := LoadSolution(filepath.Join(cfg.SolutionsDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "Proceeds", sol.Finding.Oracle)
	assert.True(t, sol.Sequence.Equal(seq))

	findings, solutions, _ := w.Counts()
	assert.Equal(t, 2, findings)
	assert.Equal(t, 1, solutions)
}

func TestWriterAppends(t *testing.T) {
	cfg := testConfig(t)
	for i := 0; i < 2; i++ {
		w, err := Open(cfg)
		require.NoError(t, err)
		f := types.NewFinding("Overflow", types.SeverityMajor, "", nil)
		require.NoError(t, w.ReportFinding(f, nil))
		require.NoError(t, w.Close())
	}
	recs, err := ReadFindings(cfg.FindingsPath)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestWriterCorpus(t *testing.T) {
	cfg := testConfig(t)
	w, err := Open(cfg)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.SaveCorpus(testSeq(1)))
	require.NoError(t, w.SaveCorpus(testSeq(1)))
	require.NoError(t, w.SaveCorpus(testSeq(2)))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CorpusDir, "junk.json"), []byte("{"), 0o644))

	_, _, corpus := w.Counts()
	assert.Equal(t, 2, corpus)

	seqs, err := LoadCorpus(cfg.CorpusDir)
	require.NoError(t, err)
	assert.Len(t, seqs, 2)
}

func TestOpenBadSeverity(t *testing.T) {
	cfg := testConfig(t)
	cfg.AlertSeverity = "catastrophic"
	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestAlertManager(t *testing.T) {
	var mu sync.Mutex
	var got []WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	am := NewAlertManager(srv.URL, time.Hour)
	f := types.NewFinding("Proceeds", types.SeverityCritical, "0x2::sui::SUI", nil)
	assert.True(t, am.SendAlert(f, "abcd"))
	assert.False(t, am.SendAlert(f, "abcd"))

	other := types.NewFinding("Overflow", types.SeverityMajor, "0xabc::vault::deposit@1", nil)
	assert.True(t, am.SendAlert(other, ""))
	am.Wait()

	mu.Lock()
	assert.Len(t, got, 2)
	mu.Unlock()

	stats := am.Statistics()
	assert.Equal(t, 2, stats.TotalAlerts)
	assert.Equal(t, 2, stats.SuccessfulAlerts)
	assert.Equal(t, 1, stats.ThrottledAlerts)
	assert.Equal(t, 1, stats.AlertsByOracle["Proceeds"])
	assert.Len(t, am.History(1), 1)
}

func TestAlertManagerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	am := NewAlertManager(srv.URL, 0)
	f := types.NewFinding("Proceeds", types.SeverityCritical, "", nil)
	am.SendAlert(f, "")
	am.SendAlert(f, "")
	am.Wait()

	stats := am.Statistics()
	assert.Equal(t, 2, stats.FailedAlerts)
	assert.Zero(t, stats.ThrottledAlerts)
}

func TestWriterAlertsOnSeverity(t *testing.T) {
	hits := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		hits <- p.Oracle
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.WebhookURL = srv.URL
	cfg.AlertSeverity = "Major"
	w, err := Open(cfg)
	require.NoError(t, err)

	require.NoError(t, w.ReportFinding(types.NewFinding("TypeConversion", types.SeverityMinor, "", nil), nil))
	require.NoError(t, w.ReportFinding(types.NewFinding("Overflow", types.SeverityMajor, "", nil), nil))
	require.NoError(t, w.Close())

	close(hits)
	var oracles []string
	for o := range hits {
		oracles = append(oracles, o)
	}
	assert.Equal(t, []string{"Overflow"}, oracles)
}
