package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"movefuzz/internal/fixture"
	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rejectError 带错误码的服务端错误
type rejectError struct{ msg string }

func (e *rejectError) Error() string  { return e.msg }
func (e *rejectError) ErrorCode() int { return CodeVMRejected }

// movyService 进程内执行服务
type movyService struct {
	last  ExecuteRequest
	delay time.Duration
}

func (s *movyService) Execute(ctx context.Context, req ExecuteRequest) (*types.ExecutionResult, error) {
	s.last = req
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if req.Sequence.Commands[0].Call.Function == "bogus" {
		return nil, &rejectError{msg: "function not found"}
	}
	return &types.ExecutionResult{
		Status:   types.StatusSuccess,
		GasUsed:  1000,
		Coverage: []uint32{1, 2, 3},
	}, nil
}

func testSeq(function string) *types.MoveSequence {
	seq := &types.MoveSequence{}
	amount := seq.AddInput(types.NewU64(7))
	seq.AddCommand(types.CallCommand(&types.MoveCall{
		Package:   fixture.VaultPackage,
		Module:    "vault",
		Function:  function,
		Arguments: []types.SequenceArgument{amount},
	}))
	return seq
}

func newTestExecutor(t *testing.T, svc *movyService, timeout time.Duration) *RPCExecutor {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("movy", svc))
	t.Cleanup(server.Stop)

	cfg := DefaultConfig()
	cfg.Timeout = timeout
	e := NewRPCExecutor(rpc.DialInProc(server), fixture.Attacker, cfg)
	t.Cleanup(e.Close)
	return e
}

func TestRPCExecutor(t *testing.T) {
	svc := &movyService{}
	e := newTestExecutor(t, svc, time.Second)

	res, err := e.Execute(context.Background(), testSeq("deposit"), "checkpoint-42")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, []uint32{1, 2, 3}, res.Coverage)

	assert.Equal(t, fixture.Attacker, svc.last.Sender)
	assert.Equal(t, Snapshot("checkpoint-42"), svc.last.Snapshot)
	require.Len(t, svc.last.Sequence.Commands, 1)
	assert.Equal(t, "deposit", svc.last.Sequence.Commands[0].Call.Function)
	assert.Equal(t, uint64(7), svc.last.Sequence.Inputs[0].Uint64())
}

func TestRPCExecutorErrors(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		e := newTestExecutor(t, &movyService{}, time.Second)
		_, err := e.Execute(context.Background(), testSeq("bogus"), "")
		assert.ErrorIs(t, err, ErrVMRejected)
		assert.True(t, IsCycleLocal(err))
	})

	t.Run("timeout", func(t *testing.T) {
		e := newTestExecutor(t, &movyService{delay: 2 * time.Second}, 50*time.Millisecond)
		_, err := e.Execute(context.Background(), testSeq("deposit"), "")
		assert.ErrorIs(t, err, ErrExecutionTimeout)
		assert.True(t, IsCycleLocal(err))
	})

	t.Run("empty sequence", func(t *testing.T) {
		e := newTestExecutor(t, &movyService{}, time.Second)
		_, err := e.Execute(context.Background(), &types.MoveSequence{}, "")
		assert.ErrorIs(t, err, ErrVMRejected)
	})
}

func TestFunc(t *testing.T) {
	boom := errors.New("boom")
	var ex Executor = Func(func(ctx context.Context, seq *types.MoveSequence, snapshot Snapshot) (*types.ExecutionResult, error) {
		return nil, boom
	})
	_, err := ex.Execute(context.Background(), testSeq("deposit"), "")
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsCycleLocal(err))
}
