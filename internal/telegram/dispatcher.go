package telegram

import "sync"

// dispatcher runs jobs one at a time per key, in the order they were
// submitted. Different keys run concurrently. A key's drain goroutine exits
// once its queue is empty.
type dispatcher struct {
	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
}

func newDispatcher() *dispatcher {
	return &dispatcher{queues: make(map[int64][]func())}
}

// Dispatch enqueues job behind the pending jobs of key. It never blocks on
// the job itself.
func (d *dispatcher) Dispatch(key int64, job func()) {
	d.mu.Lock()
	pending, active := d.queues[key]
	d.queues[key] = append(pending, job)
	if !active {
		d.wg.Add(1)
	}
	d.mu.Unlock()

	if !active {
		go d.drain(key)
	}
}

func (d *dispatcher) drain(key int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		pending := d.queues[key]
		if len(pending) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		job := pending[0]
		pending[0] = nil
		d.queues[key] = pending[1:]
		d.mu.Unlock()

		job()
	}
}

// Wait blocks until every queued job has run
func (d *dispatcher) Wait() {
	d.wg.Wait()
}
