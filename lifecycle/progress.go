package lifecycle

import (
	"sync"
	"time"
)

// ProgressConfig tunes the simulated progress animation.
type ProgressConfig struct {
	Initial  int
	Step     int
	Max      int
	Interval time.Duration
	// Linger is how long 100% stays visible after Complete.
	Linger time.Duration
}

// DefaultProgressConfig starts at 5, adds 5 every 500ms and stalls at 95.
func DefaultProgressConfig() ProgressConfig {
	return ProgressConfig{
		Initial:  5,
		Step:     5,
		Max:      95,
		Interval: 500 * time.Millisecond,
		Linger:   500 * time.Millisecond,
	}
}

// Progress is a cosmetic percentage that advances on a fixed interval while a
// request is pending. It knows nothing about the real request.
//
// Each animation belongs to a run; calls for a run older than the current one
// are ignored, so a late Complete cannot cut a newer animation short.
type Progress struct {
	cfg      ProgressConfig
	onChange func(run uint64, value int)

	mu     sync.Mutex
	run    uint64
	value  int
	stop   chan struct{}
	hide   *time.Timer
	closed bool
}

// NewProgress creates an animator reporting every change to onChange.
// onChange is called with the animator's lock held and must not call back
// into it.
func NewProgress(cfg ProgressConfig, onChange func(run uint64, value int)) *Progress {
	def := DefaultProgressConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.Max <= 0 || cfg.Max > 100 {
		cfg.Max = def.Max
	}
	if cfg.Linger < 0 {
		cfg.Linger = 0
	}
	if onChange == nil {
		onChange = func(uint64, int) {}
	}
	return &Progress{cfg: cfg, onChange: onChange}
}

// Value returns the current percentage.
func (p *Progress) Value() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Start begins a new animation for run.
func (p *Progress) Start(run uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.claim(run) {
		return
	}
	p.stopLocked()
	p.stop = make(chan struct{})
	p.set(p.cfg.Initial)
	go p.tick(run, p.stop)
}

// Complete jumps to 100 and hides the bar after the linger delay.
func (p *Progress) Complete(run uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.claim(run) {
		return
	}
	p.stopLocked()
	p.set(100)
	p.hide = time.AfterFunc(p.cfg.Linger, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed || p.run != run {
			return
		}
		p.set(0)
	})
}

// Fail drops the bar to zero.
func (p *Progress) Fail(run uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.claim(run) {
		return
	}
	p.stopLocked()
	p.set(0)
}

// Close stops the animation; later calls are no-ops.
func (p *Progress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.closed = true
}

func (p *Progress) claim(run uint64) bool {
	if p.closed || run < p.run {
		return false
	}
	p.run = run
	return true
}

func (p *Progress) set(v int) {
	p.value = v
	p.onChange(p.run, v)
}

func (p *Progress) stopLocked() {
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	if p.hide != nil {
		p.hide.Stop()
		p.hide = nil
	}
}

func (p *Progress) tick(run uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.closed || p.run != run {
			p.mu.Unlock()
			return
		}
		if p.value >= p.cfg.Max {
			p.mu.Unlock()
			return
		}
		p.set(min(p.value+p.cfg.Step, p.cfg.Max))
		p.mu.Unlock()
	}
}
