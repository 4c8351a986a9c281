// Package bus decouples the interactive frontend from network calls. The
// frontend submits commands and polls for results on its own schedule;
// a bounded worker pool executes commands concurrently. Submit and
// PollResults never block, whatever the network is doing.
package bus

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/roost-social/roost/domain"
)

// Executor turns one command into its results. A fan-out post returns one
// result per target network; everything else returns exactly one.
type Executor interface {
	Execute(ctx context.Context, cmd domain.Command) []domain.Result
}

// Bus is the command queue plus its worker pool.
type Bus struct {
	exec    Executor
	workers int

	mu        sync.Mutex
	queue     []domain.Command
	cancelled map[domain.Token]struct{}
	inFlight  map[domain.Token]struct{}
	results   []domain.Result
	closed    bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a bus with the given worker count.
func New(exec Executor, workers int) *Bus {
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		exec:      exec,
		workers:   workers,
		cancelled: make(map[domain.Token]struct{}),
		inFlight:  make(map[domain.Token]struct{}),
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}

	return b
}

// Submit queues a command and returns its correlation token immediately.
// The queue is unbounded, so a slow network never stalls the caller.
func (b *Bus) Submit(cmd domain.Command) (domain.Token, error) {
	if cmd.Token == (domain.Token{}) {
		cmd.Token = domain.NewToken()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return cmd.Token, domain.NewFailure(domain.FailInternal, "dispatch bus is shut down")
	}
	b.queue = append(b.queue, cmd)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}

	return cmd.Token, nil
}

// PollResults drains and returns every result accumulated since the last
// call. It never blocks.
func (b *Bus) PollResults() []domain.Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	results := b.results
	b.results = nil
	return results
}

// Cancel suppresses a queued command. It reports whether the command was
// still waiting; once a worker has picked it up the command runs to
// completion and Cancel reports false.
func (b *Bus) Cancel(token domain.Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, running := b.inFlight[token]; running {
		return false
	}

	for _, cmd := range b.queue {
		if cmd.Token == token {
			b.cancelled[token] = struct{}{}
			return true
		}
	}

	return false
}

// Close stops accepting commands and waits for in-flight work to finish.
// Queued commands that never started are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.queue = nil
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

func (b *Bus) worker() {
	defer b.wg.Done()

	for {
		cmd, ok := b.next()
		if !ok {
			select {
			case <-b.wake:
				continue
			case <-b.ctx.Done():
				return
			}
		}

		b.run(cmd)
	}
}

// next pops the oldest queued command, skipping cancelled ones.
func (b *Bus) next() (domain.Command, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.queue) > 0 {
		cmd := b.queue[0]
		b.queue = b.queue[1:]

		if _, skip := b.cancelled[cmd.Token]; skip {
			delete(b.cancelled, cmd.Token)
			continue
		}

		b.inFlight[cmd.Token] = struct{}{}

		// More work queued: nudge another idle worker.
		if len(b.queue) > 0 {
			select {
			case b.wake <- struct{}{}:
			default:
			}
		}

		return cmd, true
	}

	return domain.Command{}, false
}

func (b *Bus) run(cmd domain.Command) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Worker panicked", "kind", cmd.Kind, "panic", r)
			b.deliver(cmd.Token, []domain.Result{{
				Token:   cmd.Token,
				Kind:    domain.ResFailure,
				Failure: domain.NewFailure(domain.FailInternal, "worker panic: %v", r),
			}})
		}
	}()

	results := b.exec.Execute(b.ctx, cmd)

	// Every command yields at least one result so the frontend can always
	// resolve its pending state.
	if len(results) == 0 {
		results = []domain.Result{{
			Token:   cmd.Token,
			Kind:    domain.ResFailure,
			Failure: domain.NewFailure(domain.FailInternal, "command produced no result"),
		}}
	}

	b.deliver(cmd.Token, results)
}

func (b *Bus) deliver(token domain.Token, results []domain.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.inFlight, token)
	for i := range results {
		results[i].Token = token
	}
	b.results = append(b.results, results...)
}
