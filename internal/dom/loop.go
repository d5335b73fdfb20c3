package dom

import "sync"

// eventLoop runs tasks one at a time, in order, on a single goroutine.
// Posting never blocks.
type eventLoop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	exited chan struct{}
}

func newEventLoop() *eventLoop {
	l := &eventLoop{exited: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *eventLoop) run() {
	defer close(l.exited)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.queue = nil
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		task()
	}
}

func (l *eventLoop) post(task func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
	return true
}

// close drops pending tasks and waits for the running one to finish. It must
// not be called from a task running on the same loop.
func (l *eventLoop) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.exited
		return
	}
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
	<-l.exited
}
