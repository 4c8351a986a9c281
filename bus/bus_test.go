package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roost-social/roost/domain"
)

// blockingExecutor completes commands only when released, so tests control
// exactly when work starts and finishes.
type blockingExecutor struct {
	mu      sync.Mutex
	started map[domain.Token]bool
	release chan struct{}
	panicOn domain.CommandKind
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{
		started: make(map[domain.Token]bool),
		release: make(chan struct{}),
	}
}

func (e *blockingExecutor) Execute(ctx context.Context, cmd domain.Command) []domain.Result {
	e.mu.Lock()
	e.started[cmd.Token] = true
	e.mu.Unlock()

	if cmd.Kind == e.panicOn {
		panic("executor exploded")
	}

	<-e.release

	return []domain.Result{{Token: cmd.Token, Kind: domain.ResAck}}
}

func (e *blockingExecutor) hasStarted(token domain.Token) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started[token]
}

// drain polls until n results arrive or the deadline passes.
func drain(t *testing.T, b *Bus, n int) []domain.Result {
	t.Helper()

	var results []domain.Result
	deadline := time.Now().Add(5 * time.Second)
	for len(results) < n && time.Now().Before(deadline) {
		results = append(results, b.PollResults()...)
		time.Sleep(5 * time.Millisecond)
	}

	if len(results) < n {
		t.Fatalf("expected %d results, got %d", n, len(results))
	}

	return results
}

func TestSubmitNeverBlocks(t *testing.T) {
	exec := newBlockingExecutor()
	b := New(exec, 1)
	defer func() { close(exec.release); b.Close() }()

	// Far more commands than workers; every Submit must return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			if _, err := b.Submit(domain.Command{Kind: domain.CmdLike}); err != nil {
				t.Errorf("Submit: %v", err)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked with a saturated worker pool")
	}
}

func TestEveryCommandYieldsOneResult(t *testing.T) {
	exec := newBlockingExecutor()
	close(exec.release)

	b := New(exec, 4)
	defer b.Close()

	tokens := make(map[domain.Token]bool)
	for i := 0; i < 20; i++ {
		token, err := b.Submit(domain.Command{Kind: domain.CmdLike})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		tokens[token] = true
	}

	results := drain(t, b, 20)
	if len(results) != 20 {
		t.Fatalf("expected exactly 20 results, got %d", len(results))
	}

	for _, r := range results {
		if !tokens[r.Token] {
			t.Errorf("result carries unknown token %s", r.Token)
		}
		delete(tokens, r.Token)
	}
	if len(tokens) != 0 {
		t.Errorf("%d commands never produced a result", len(tokens))
	}
}

func TestCancelBeforeStartSuppresses(t *testing.T) {
	exec := newBlockingExecutor()
	b := New(exec, 1)
	defer func() { close(exec.release); b.Close() }()

	// First command occupies the only worker.
	first, _ := b.Submit(domain.Command{Kind: domain.CmdLike})

	// Wait until the worker holds it.
	deadline := time.Now().Add(2 * time.Second)
	for !exec.hasStarted(first) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	queued, _ := b.Submit(domain.Command{Kind: domain.CmdBoost})

	if !b.Cancel(queued) {
		t.Fatal("expected Cancel to suppress the queued command")
	}

	exec.release <- struct{}{} // let the first command finish

	results := drain(t, b, 1)
	if len(b.PollResults()) != 0 {
		t.Error("cancelled command still produced a result")
	}
	if results[0].Token != first {
		t.Errorf("expected result for the running command only, got %s", results[0].Token)
	}
	if exec.hasStarted(queued) {
		t.Error("cancelled command still executed")
	}
}

func TestCancelAfterStartReportsFalse(t *testing.T) {
	exec := newBlockingExecutor()
	b := New(exec, 1)
	defer b.Close()

	token, _ := b.Submit(domain.Command{Kind: domain.CmdLike})

	deadline := time.Now().Add(2 * time.Second)
	for !exec.hasStarted(token) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if b.Cancel(token) {
		t.Error("Cancel must not claim success for a running command")
	}

	close(exec.release)
	results := drain(t, b, 1)
	if results[0].Token != token {
		t.Errorf("running command must complete despite the cancel attempt")
	}
}

func TestWorkerPanicBecomesFailureResult(t *testing.T) {
	exec := newBlockingExecutor()
	exec.panicOn = domain.CmdPost

	b := New(exec, 1)
	defer func() { close(exec.release); b.Close() }()

	token, _ := b.Submit(domain.Command{Kind: domain.CmdPost})

	results := drain(t, b, 1)
	r := results[0]
	if r.Token != token || r.Kind != domain.ResFailure {
		t.Fatalf("expected failure result for panicking command, got %+v", r)
	}
	if !domain.IsKind(r.Failure, domain.FailInternal) {
		t.Errorf("expected internal failure, got %v", r.Failure)
	}

	// The pool must survive the panic.
	next, _ := b.Submit(domain.Command{Kind: domain.CmdLike})
	deadline := time.Now().Add(2 * time.Second)
	for !exec.hasStarted(next) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !exec.hasStarted(next) {
		t.Error("worker pool did not recover after a panic")
	}
}

func TestPollResultsDrains(t *testing.T) {
	exec := newBlockingExecutor()
	close(exec.release)

	b := New(exec, 2)
	defer b.Close()

	b.Submit(domain.Command{Kind: domain.CmdLike})
	drain(t, b, 1)

	if got := b.PollResults(); len(got) != 0 {
		t.Errorf("second poll should be empty, got %d results", len(got))
	}
}
