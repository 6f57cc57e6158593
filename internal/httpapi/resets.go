package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/identity"
	"go.uber.org/zap"
)

const (
	defaultResetQueueSize = 256
	resetJobTimeout       = 30 * time.Second
)

type resetJob struct {
	ctx   context.Context
	email string
}

// resetQueue runs the account lookup, token issuance and delivery for reset
// requests off the request path, so the handler does the same work for
// registered and unknown emails.
type resetQueue struct {
	engine   *authcore.Engine
	accounts Accounts
	deliver  ResetDelivery
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan resetJob
	done   chan struct{}
}

func newResetQueue(engine *authcore.Engine, accounts Accounts, deliver ResetDelivery, log *zap.Logger, size int) *resetQueue {
	if size <= 0 {
		size = defaultResetQueueSize
	}
	q := &resetQueue{
		engine:   engine,
		accounts: accounts,
		deliver:  deliver,
		log:      log,
		jobs:     make(chan resetJob, size),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

// enqueue never blocks. A full or closed queue drops the request.
func (q *resetQueue) enqueue(ctx context.Context, email string) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}

	select {
	case q.jobs <- resetJob{ctx: context.WithoutCancel(ctx), email: email}:
	default:
		q.log.Warn("reset queue full, request dropped")
	}
}

// close stops intake and waits for queued jobs to finish.
func (q *resetQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	<-q.done
}

func (q *resetQueue) run() {
	defer close(q.done)
	for job := range q.jobs {
		q.process(job)
	}
}

func (q *resetQueue) process(job resetJob) {
	ctx, cancel := context.WithTimeout(job.ctx, resetJobTimeout)
	defer cancel()

	subject, err := q.accounts.SubjectByEmail(ctx, job.email)
	switch {
	case errors.Is(err, identity.ErrUnknownSubject):
		return
	case err != nil:
		q.log.Warn("reset lookup failed", zap.Error(err))
		return
	}

	token, expiresAt, err := q.engine.RequestResetWithExpiry(ctx, subject)
	if err != nil {
		q.log.Warn("reset token issuance failed", zap.String("kind", authcore.ErrorKind(err)), zap.Error(err))
		return
	}
	if q.deliver == nil {
		return
	}
	if err := q.deliver(ctx, job.email, token, expiresAt); err != nil {
		q.log.Warn("reset delivery failed", zap.Error(err))
	}
}
