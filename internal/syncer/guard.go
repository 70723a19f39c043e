package syncer

import "sync"

const (
	guardIdle = iota
	guardRunning
	guardPaused
)

// guard enforces the one-sync-at-a-time rule for a workspace. A sync holds
// it from the first fetch until completion or abort; a conflict parks it in
// the paused state instead of releasing, so commits and other syncs stay
// out while the integration waits for decisions.
type guard struct {
	mu    sync.Mutex
	state int
}

func (g *guard) tryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != guardIdle {
		return false
	}

	g.state = guardRunning
	return true
}

func (g *guard) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == guardRunning {
		g.state = guardPaused
	}
}

func (g *guard) resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != guardPaused {
		return false
	}

	g.state = guardRunning
	return true
}

func (g *guard) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = guardIdle
}

func (g *guard) held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state != guardIdle
}

func (g *guard) paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state == guardPaused
}
