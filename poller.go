package dtpack

import (
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// dedicatedPoller runs the progress engine's poke loop on a background OS
// thread pinned to one CPU, so a caller that enqueues requests but never
// calls Request.Wait still makes progress. Grounded directly on the
// teacher's queue.Runner.ioLoop: runtime.LockOSThread plus
// unix.SchedSetaffinity, generalized from "one OS thread per ublk queue" to
// "one OS thread driving the progress engine".
type dedicatedPoller struct {
	stop chan struct{}
	done chan struct{}
}

// WithDedicatedPoller starts a background goroutine, pinned to cpu via
// SchedSetaffinity, that repeatedly pokes the Context's progress engine.
// Affinity failures are logged and otherwise non-fatal: the poller still
// runs, just without a CPU pin, matching the teacher's "continue without
// affinity" fallback. Call the returned stop function to shut it down;
// Context.Close calls it automatically if the caller forgets.
func (c *Context) WithDedicatedPoller(cpu int) (stop func()) {
	p := &dedicatedPoller{stop: make(chan struct{}), done: make(chan struct{})}

	go func() {
		defer close(p.done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		var mask unix.CPUSet
		mask.Set(cpu)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			c.log.Warnf("dtpack: context %d: failed to pin dedicated poller to CPU %d: %v", c.id, cpu, err)
		} else {
			c.log.Debugf("dtpack: context %d: dedicated poller pinned to CPU %d", c.id, cpu)
		}

		for {
			select {
			case <-p.stop:
				return
			default:
			}
			if !c.engine.Pending() {
				runtime.Gosched()
				continue
			}
			if err := c.engine.Poke(); err != nil {
				c.log.Debugf("dtpack: context %d: dedicated poller observed %v", c.id, err)
			}
		}
	}()

	c.mu.Lock()
	c.pollers = append(c.pollers, p)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(p.stop)
			<-p.done
		})
	}
}

func (c *Context) stopPollers() {
	c.mu.Lock()
	pollers := c.pollers
	c.pollers = nil
	c.mu.Unlock()
	for _, p := range pollers {
		select {
		case <-p.stop:
		default:
			close(p.stop)
		}
		<-p.done
	}
}
