package voice

import (
	"sync"
	"testing"
	"time"
)

func TestGate_OpenByDefault(t *testing.T) {
	g := NewGate()
	if !g.ShouldForward(time.Now()) {
		t.Fatal("new gate should forward")
	}
}

func TestGate_Mute(t *testing.T) {
	g := NewGate()
	now := time.Now()

	g.SetMuted(true)
	if g.ShouldForward(now) {
		t.Error("muted gate forwarded")
	}
	g.SetMuted(false)
	if !g.ShouldForward(now) {
		t.Error("unmuted gate did not forward")
	}
}

func TestGate_InhibitWindow(t *testing.T) {
	g := NewGate()
	now := time.Now()

	g.InhibitUntil(now.Add(500 * time.Millisecond))
	if g.ShouldForward(now.Add(100 * time.Millisecond)) {
		t.Error("forwarded inside inhibit window")
	}
	if !g.Inhibited(now.Add(100 * time.Millisecond)) {
		t.Error("Inhibited = false inside window")
	}
	if !g.ShouldForward(now.Add(600 * time.Millisecond)) {
		t.Error("did not forward after window elapsed")
	}
}

func TestGate_InhibitNeverShortens(t *testing.T) {
	g := NewGate()
	now := time.Now()

	g.InhibitUntil(now.Add(500 * time.Millisecond))
	g.InhibitUntil(now.Add(100 * time.Millisecond))
	if g.ShouldForward(now.Add(300 * time.Millisecond)) {
		t.Error("an earlier inhibit shortened the window")
	}
}

func TestGate_Concurrency(t *testing.T) {
	g := NewGate()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.InhibitUntil(now.Add(time.Duration(j) * time.Millisecond))
				g.SetMuted(i%2 == 0)
				g.ShouldForward(now)
			}
		}(i)
	}
	wg.Wait()
}
