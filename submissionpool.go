package reportcard

import (
	"sync"
	"time"
)

// SubmissionPool manages a FIFO queue of submissions awaiting evaluation
type SubmissionPool struct {
	mu          sync.RWMutex
	submissions map[string]*Submission
	queue       []string // FIFO queue of submission IDs
}

// NewSubmissionPool creates a new submission pool
func NewSubmissionPool() *SubmissionPool {
	return &SubmissionPool{
		submissions: make(map[string]*Submission),
		queue:       make([]string, 0),
	}
}

// Add queues a submission. Re-adding a queued ID replaces it in place.
func (sp *SubmissionPool) Add(sub *Submission) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sub.QueuedAt = time.Now()
	if _, queued := sp.submissions[sub.ID]; !queued {
		sp.queue = append(sp.queue, sub.ID)
	}
	sp.submissions[sub.ID] = sub
}

// Get removes and returns the next submission, or nil when the pool is empty
func (sp *SubmissionPool) Get() *Submission {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if len(sp.queue) == 0 {
		return nil
	}

	id := sp.queue[0]
	sp.queue = sp.queue[1:]

	sub := sp.submissions[id]
	delete(sp.submissions, id)

	return sub
}

// Remove drops a submission from the pool
func (sp *SubmissionPool) Remove(id string) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	delete(sp.submissions, id)

	for i, queued := range sp.queue {
		if queued == id {
			sp.queue = append(sp.queue[:i], sp.queue[i+1:]...)
			break
		}
	}
}

// Size returns the number of queued submissions
func (sp *SubmissionPool) Size() int {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return len(sp.queue)
}

// IsEmpty returns true if the pool is empty
func (sp *SubmissionPool) IsEmpty() bool {
	return sp.Size() == 0
}

// Pending returns the queued submissions in queue order
func (sp *SubmissionPool) Pending() []*Submission {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	subs := make([]*Submission, 0, len(sp.queue))
	for _, id := range sp.queue {
		subs = append(subs, sp.submissions[id])
	}
	return subs
}
