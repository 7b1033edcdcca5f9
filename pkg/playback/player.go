package playback

import (
	"sync"
	"time"
)

// VirtualPlayer is a clock-driven Player for headless clients and the
// status display: it tracks source, run state and position without
// rendering anything. Position advances with wall time while playing.
type VirtualPlayer struct {
	mu        sync.Mutex
	source    string
	playing   bool
	position  float64   // position at the last state change
	updatedAt time.Time // when position was last fixed
}

// NewVirtualPlayer returns a stopped player at position zero.
func NewVirtualPlayer() *VirtualPlayer {
	return &VirtualPlayer{updatedAt: time.Now()}
}

func (p *VirtualPlayer) Load(src string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = src
	p.playing = false
	p.position = 0
	p.updatedAt = time.Now()
}

func (p *VirtualPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.playing = true
	p.updatedAt = time.Now()
}

func (p *VirtualPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.position = p.positionLocked()
	p.playing = false
	p.updatedAt = time.Now()
}

func (p *VirtualPlayer) Seek(position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = position
	p.updatedAt = time.Now()
}

func (p *VirtualPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *VirtualPlayer) positionLocked() float64 {
	if !p.playing {
		return p.position
	}
	return p.position + time.Since(p.updatedAt).Seconds()
}

func (p *VirtualPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Source returns the currently loaded source reference.
func (p *VirtualPlayer) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}
