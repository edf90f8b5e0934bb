package workflow

import "sync"

// pathLocks hands out one mutex per source path. Entries are dropped once no
// holder or waiter remains.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// acquire blocks until path is free and returns its release func.
func (p *pathLocks) acquire(path string) func() {
	p.mu.Lock()
	lock, ok := p.locks[path]
	if !ok {
		lock = &pathLock{}
		p.locks[path] = lock
	}
	lock.refs++
	p.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		p.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(p.locks, path)
		}
		p.mu.Unlock()
	}
}

func (p *pathLocks) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
