package playback

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	ttsfake "github.com/cadencevoice/duplex-go/pkg/ai/tts/fake"
	"github.com/cadencevoice/duplex-go/pkg/playback/fake"
	"github.com/matryer/is"
)

func newTestQueue(synth *ttsfake.FakeSynthesizer) (*Queue, *fake.FakeDevice) {
	device := fake.NewFakeDevice()
	q := NewQueue(synth, device, nil, QueueConfig{
		Chunker: ChunkerConfig{MinChunkLen: 5},
	})
	return q, device
}

// tickUntil drives the queue's tick loop until cond holds.
func tickUntil(t *testing.T, q *Queue, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		q.Tick(context.Background(), time.Now())
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestQueue_PlaysChunksInOrder(t *testing.T) {
	is := is.New(t)
	synth := ttsfake.NewFakeSynthesizer()
	q, device := newTestQueue(synth)
	ctx := context.Background()
	now := time.Now()

	q.Begin(now)
	is.NoErr(q.PushText(ctx, "First part. Second part. Third part. ", now))
	is.NoErr(q.FinishText(ctx))

	tickUntil(t, q, func() bool { return q.State() == StateCompleted })

	is.Equal(device.PlayStarts(), 3)
	is.True(!device.Overlapped())
	is.True(device.FrameCount() > 0)

	// Dispatch order across goroutines is not deterministic; playback order
	// is what the device verifies. Every chunk must have been synthesized.
	texts := map[string]bool{}
	for _, s := range synth.Syntheses() {
		texts[s.Text()] = true
	}
	is.Equal(len(texts), 3)
	is.True(texts["First part."])
	is.True(texts["Second part."])
	is.True(texts["Third part."])
}

func TestQueue_PauseResumeReplaysChunk(t *testing.T) {
	is := is.New(t)
	synth := ttsfake.NewFakeSynthesizer()
	q, device := newTestQueue(synth)
	ctx := context.Background()
	now := time.Now()

	q.Begin(now)
	is.NoErr(q.PushText(ctx, "Only chunk here. ", now))

	tickUntil(t, q, func() bool { return q.Session().PlayingIndex() == 0 })

	is.NoErr(q.Pause(time.Now()))
	is.Equal(q.State(), StatePaused)
	is.True(device.Stops() >= 1)

	// Pause keeps synthesis results, so resume replays from cache without a
	// new request.
	is.NoErr(q.Resume(ctx))
	is.NoErr(q.FinishText(ctx))
	tickUntil(t, q, func() bool { return q.State() == StateCompleted })

	is.Equal(device.PlayStarts(), 2)
	is.Equal(len(synth.Syntheses()), 1)
	is.True(!device.Overlapped())
}

func TestQueue_AbortCancelsInFlightWork(t *testing.T) {
	is := is.New(t)
	synth := ttsfake.NewFakeSynthesizer()
	synth.FrameDelay = 20 * time.Millisecond
	q, device := newTestQueue(synth)
	ctx := context.Background()
	now := time.Now()

	var fallbackCanceled atomic.Bool
	q.Begin(now)
	q.SetFallbackCancel(func() { fallbackCanceled.Store(true) })
	is.NoErr(q.PushText(ctx, "This chunk takes a while to synthesize fully. ", now))
	q.Tick(ctx, now)

	q.Abort()
	is.Equal(q.State(), StateAborted)
	is.True(fallbackCanceled.Load())

	// A synthesis result landing after the abort is discarded, never played.
	time.Sleep(50 * time.Millisecond)
	q.Tick(ctx, time.Now())
	is.Equal(device.PlayStarts(), 0)
	is.Equal(device.FrameCount(), 0)
}

func TestQueue_FallbackSuppressedWhenChunkedPlaybackStarts(t *testing.T) {
	is := is.New(t)
	synth := ttsfake.NewFakeSynthesizer()
	q, _ := newTestQueue(synth)
	ctx := context.Background()
	now := time.Now()

	var suppressed atomic.Bool
	q.Begin(now)
	q.SetFallbackCancel(func() { suppressed.Store(true) })
	is.NoErr(q.PushText(ctx, "A chunk of speech. ", now))

	tickUntil(t, q, func() bool { return suppressed.Load() })
	is.Equal(q.State(), StatePlaying)
}

func TestQueue_BeginSupersedesLiveSession(t *testing.T) {
	is := is.New(t)
	synth := ttsfake.NewFakeSynthesizer()
	q, device := newTestQueue(synth)
	ctx := context.Background()
	now := time.Now()

	first := q.Begin(now)
	is.NoErr(q.PushText(ctx, "Reply number one here. ", now))
	tickUntil(t, q, func() bool { return q.Session().PlayingIndex() == 0 })

	second := q.Begin(time.Now())
	is.True(second != first)
	is.Equal(q.State(), StateIdle)

	is.NoErr(q.PushText(ctx, "Reply number two here. ", time.Now()))
	is.NoErr(q.FinishText(ctx))
	tickUntil(t, q, func() bool { return q.State() == StateCompleted })
	is.True(!device.Overlapped())
}

func TestQueue_RejectsTextWithoutSession(t *testing.T) {
	synth := ttsfake.NewFakeSynthesizer()
	q, _ := newTestQueue(synth)

	if err := q.PushText(context.Background(), "hello", time.Now()); err == nil {
		t.Fatal("PushText before Begin should fail")
	}
}
