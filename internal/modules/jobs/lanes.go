// README: Per-ride FIFO lanes; at most one status send per ride at a time.
package jobs

import (
	"sync"

	"wecare/internal/types"
)

type lanes struct {
	mu    sync.Mutex
	tails map[types.ID]chan struct{}
}

func newLanes() *lanes {
	return &lanes{tails: map[types.ID]chan struct{}{}}
}

// join queues the caller on rideID's lane. The caller must receive from wait
// (nil when the lane is free) before sending, then call done exactly once.
func (l *lanes) join(rideID types.ID) (wait <-chan struct{}, done func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.tails[rideID]
	mine := make(chan struct{})
	l.tails[rideID] = mine
	var once sync.Once
	return prev, func() {
		once.Do(func() {
			close(mine)
			l.mu.Lock()
			if l.tails[rideID] == mine {
				delete(l.tails, rideID)
			}
			l.mu.Unlock()
		})
	}
}

func waitTurn(wait <-chan struct{}) {
	if wait != nil {
		<-wait
	}
}
