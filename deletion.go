package lumenvk

// DeletionQueue is an ordered list of release actions. Flush runs them in
// reverse order of Push and empties the queue, so flushing twice is safe.
// A queue is not safe for concurrent use.
type DeletionQueue struct {
	fns []func()
}

// Push appends a release action.
func (q *DeletionQueue) Push(fn func()) {
	if fn != nil {
		q.fns = append(q.fns, fn)
	}
}

// PushResource pushes r.Destroy.
func (q *DeletionQueue) PushResource(r interface{ Destroy() }) {
	q.Push(r.Destroy)
}

// PushQueue chains a child queue: flushing q flushes child at the point it
// was pushed.
func (q *DeletionQueue) PushQueue(child *DeletionQueue) {
	q.Push(child.Flush)
}

// Flush runs every action, last pushed first.
func (q *DeletionQueue) Flush() {
	for len(q.fns) > 0 {
		n := len(q.fns) - 1
		fn := q.fns[n]
		q.fns[n] = nil
		q.fns = q.fns[:n]
		fn()
	}
}

// Len is the number of pending actions.
func (q *DeletionQueue) Len() int { return len(q.fns) }
