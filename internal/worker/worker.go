package worker

import "sync"

// Pool runs queued jobs on a bounded set of goroutines. It keeps outbound
// chat-platform calls off the event loop without unbounded goroutine growth.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup

	closeOnce sync.Once
}

func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	p := &Pool{jobs: make(chan func(), queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for fn := range p.jobs {
				fn()
			}
		}()
	}
	return p
}

// Submit enqueues fn without blocking. The caller decides what to do when the
// queue is full; returning false lets it degrade to a synchronous call.
func (p *Pool) Submit(fn func()) bool {
	if fn == nil {
		return true
	}
	select {
	case p.jobs <- fn:
		return true
	default:
		return false
	}
}

// Close drains the queue and waits for in-flight jobs.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}
