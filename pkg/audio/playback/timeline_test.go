package playback_test

import (
	"encoding/binary"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/fortuna/pkg/audio"
	"github.com/MrWong99/fortuna/pkg/audio/playback"
)

// readSamples reads n samples from tl and returns them as int16 values.
func readSamples(t *testing.T, tl *playback.Timeline, n int) []int16 {
	t.Helper()
	p := make([]byte, n*2)
	got, err := tl.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != len(p) {
		t.Fatalf("Read returned %d bytes, want %d", got, len(p))
	}
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p[i*2:]))
	}
	return out
}

func constBuffer(n int, v float32, rate int) audio.Buffer {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return audio.Buffer{Samples: s, SampleRate: rate}
}

func TestTimeline_SilenceWhenIdle(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	for i, s := range readSamples(t, tl, 10) {
		if s != 0 {
			t.Fatalf("sample %d = %d, want silence", i, s)
		}
	}
	if got := tl.Now(); got != 10*time.Millisecond {
		t.Errorf("Now() = %v, want 10ms", got)
	}
}

func TestTimeline_RendersAtStart(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	var ended atomic.Int32
	u := &playback.Unit{Buffer: constBuffer(4, 0.5, 1000), Start: 3 * time.Millisecond}
	tl.Schedule(u, func() { ended.Add(1) })

	got := readSamples(t, tl, 10)
	want := []int16{0, 0, 0, 16384, 16384, 16384, 16384, 0, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
	if ended.Load() != 1 {
		t.Errorf("onEnded called %d times, want 1", ended.Load())
	}
	if tl.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tl.Pending())
	}
}

func TestTimeline_EndsOnlyAfterFullPlayback(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	var ended atomic.Int32
	tl.Schedule(&playback.Unit{Buffer: constBuffer(10, 0.5, 1000)}, func() { ended.Add(1) })

	readSamples(t, tl, 5)
	if ended.Load() != 0 {
		t.Fatal("unit ended before it finished playing")
	}
	readSamples(t, tl, 5)
	if ended.Load() != 1 {
		t.Fatal("unit did not end after it finished playing")
	}
}

func TestTimeline_StopSuppressesAudioAndCallback(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	var ended atomic.Int32
	u := &playback.Unit{Buffer: constBuffer(5, 0.5, 1000)}
	tl.Schedule(u, func() { ended.Add(1) })
	tl.Stop(u)

	for i, s := range readSamples(t, tl, 10) {
		if s != 0 {
			t.Fatalf("sample %d = %d after Stop, want silence", i, s)
		}
	}
	if ended.Load() != 0 {
		t.Error("onEnded must not fire for a stopped unit")
	}
}

func TestTimeline_Clamps(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	tl.Schedule(&playback.Unit{Buffer: constBuffer(2, 0.9, 1000)}, nil)
	tl.Schedule(&playback.Unit{Buffer: constBuffer(2, 0.9, 1000)}, nil)

	for i, s := range readSamples(t, tl, 2) {
		if s != 32767 {
			t.Errorf("sample %d = %d, want clamped 32767", i, s)
		}
	}
}

func TestTimeline_Close(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	tl.Schedule(&playback.Unit{Buffer: constBuffer(5, 0.5, 1000)}, func() {
		t.Error("onEnded must not fire after Close")
	})
	if err := tl.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Read(make([]byte, 4)); !errors.Is(err, io.EOF) {
		t.Errorf("Read after Close: err = %v, want io.EOF", err)
	}
}

func TestTimeline_WithScheduler(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(audio.PlaybackSampleRate)
	var speaking atomic.Bool
	s := playback.New(tl, playback.WithSpeakingFunc(speaking.Store))

	// Two 100ms chunks back to back, then 100ms of silence.
	for _, v := range []float32{0.25, -0.25} {
		if _, err := s.Enqueue(chunk(2400, v)); err != nil {
			t.Fatal(err)
		}
	}
	if !speaking.Load() {
		t.Fatal("expected speaking after enqueue")
	}

	got := readSamples(t, tl, 7200)
	checks := []struct {
		idx  int
		want int16
	}{
		{0, 8192}, {2399, 8192}, {2400, -8192}, {4799, -8192}, {4800, 0}, {7199, 0},
	}
	for _, c := range checks {
		if got[c.idx] != c.want {
			t.Errorf("sample %d = %d, want %d", c.idx, got[c.idx], c.want)
		}
	}
	if speaking.Load() {
		t.Error("expected speaking to stop after all units ended")
	}
	if s.Active() != 0 {
		t.Errorf("Active() = %d, want 0", s.Active())
	}

	// The clock has passed the cursor; the next unit starts at now.
	u, err := s.Enqueue(chunk(240, 0.1))
	if err != nil {
		t.Fatal(err)
	}
	if u.Start != 300*time.Millisecond {
		t.Errorf("start = %v, want 300ms", u.Start)
	}
}

func TestTimeline_InterruptMidUnit(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(audio.PlaybackSampleRate)
	s := playback.New(tl)
	if _, err := s.Enqueue(chunk(2400, 0.5)); err != nil {
		t.Fatal(err)
	}
	readSamples(t, tl, 1200)

	s.Interrupt()
	for i, v := range readSamples(t, tl, 1200) {
		if v != 0 {
			t.Fatalf("sample %d = %d after interrupt, want silence", i, v)
		}
	}
}

func TestTimeline_Advance(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(1000)
	if err := tl.Advance(250 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := tl.Now(); got != 250*time.Millisecond {
		t.Errorf("Now() = %v, want 250ms", got)
	}
}

func TestTimeline_ResamplesForeignRate(t *testing.T) {
	t.Parallel()

	tl := playback.NewTimeline(2000)
	var ended atomic.Int32
	tl.Schedule(&playback.Unit{Buffer: constBuffer(10, 0.5, 1000)}, func() { ended.Add(1) })

	got := readSamples(t, tl, 19)
	for i, s := range got {
		if s != 16384 {
			t.Fatalf("sample %d = %d, want 16384", i, s)
		}
	}
	if ended.Load() != 0 {
		t.Fatal("10ms unit ended before 10ms of device audio was rendered")
	}
	if last := readSamples(t, tl, 1); last[0] != 16384 {
		t.Errorf("last sample = %d, want 16384", last[0])
	}
	if ended.Load() != 1 {
		t.Fatal("unit did not end after its resampled length")
	}
}
