package local

import (
	"sync"
	"time"

	"github.com/dtpack/dtpack/internal/gpudriver"
)

// event is local.Driver's Event implementation: a move-only handle around a
// goroutine that performs the driver's simulated asynchronous work. The
// work does not start until Record is called, so AddDependency can chain
// another event's completion ahead of it — mirroring how a real driver
// would enqueue a dependency on a stream before submitting the kernel that
// depends on it.
type event struct {
	work    func() error
	latency time.Duration

	once      sync.Once
	done      chan struct{}
	err       error
	deps      []gpudriver.Event
	destroyed bool
	mu        sync.Mutex
}

func newEvent(work func() error, latency time.Duration) *event {
	return &event{work: work, latency: latency, done: make(chan struct{})}
}

func (e *event) addDependency(onto gpudriver.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deps = append(e.deps, onto)
}

// Record starts the event's asynchronous work exactly once: first waiting
// for every dependency registered via AddDependency, then (after the
// driver's configured artificial latency) running the work closure.
func (e *event) Record() error {
	e.once.Do(func() {
		go func() {
			for _, d := range e.deps {
				if err := d.Synchronize(); err != nil {
					e.finish(err)
					return
				}
			}
			if e.latency > 0 {
				time.Sleep(e.latency)
			}
			e.finish(e.work())
		}()
	})
	return nil
}

func (e *event) finish(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
	close(e.done)
}

func (e *event) Synchronize() error {
	e.Record()
	<-e.done
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *event) Done() (bool, error) {
	select {
	case <-e.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return true, e.err
	default:
		return false, nil
	}
}

func (e *event) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil
	}
	e.destroyed = true
	return nil
}
