// Package aftercommit queues side effects (events, audit rows, cache
// invalidation) that must only run once the surrounding store transaction
// has committed.
package aftercommit

type Queue struct {
	fns []func()
}

func (q *Queue) Add(fn func()) {
	q.fns = append(q.fns, fn)
}

// Reset drops queued effects, used when a transaction is retried.
func (q *Queue) Reset() {
	q.fns = nil
}

// Run executes the queued effects in order and empties the queue.
func (q *Queue) Run() {
	fns := q.fns
	q.fns = nil
	for _, fn := range fns {
		fn()
	}
}
