package media

import (
	"log"
	"sync"

	"vox_chat/native/internal/domain"
)

// candidateQueue buffers remote ICE candidates that arrive before the remote
// description is set. Drained in arrival order; a candidate that fails to
// apply is logged and skipped, never fatal.
type candidateQueue struct {
	mu    sync.Mutex
	items []domain.CandidatePayload
}

func (q *candidateQueue) add(c domain.CandidatePayload) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()
}

// drain applies every queued candidate in FIFO order and empties the queue.
// Candidates are removed before apply runs, so none can be applied twice.
func (q *candidateQueue) drain(apply func(domain.CandidatePayload) error) {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, c := range items {
		if err := apply(c); err != nil {
			log.Printf("[media] apply queued candidate: %v", err)
		}
	}
}

func (q *candidateQueue) clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

func (q *candidateQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
