package drive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type command struct {
	kind  string
	value int
}

type recorder struct {
	mu       sync.Mutex
	commands []command
	fail     error
}

func (r *recorder) SetMotorSpeed(_ context.Context, speed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.commands = append(r.commands, command{"motor", speed})
	return nil
}

func (r *recorder) SetRudderAngle(_ context.Context, angle int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.commands = append(r.commands, command{"rudder", angle})
	return nil
}

func (r *recorder) all() []command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command(nil), r.commands...)
}

func newTestController(rec *recorder, maxRate float64) *Controller {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return NewController(rec, Options{SpeedStep: 100, RudderStep: 50, MaxRate: maxRate}, logger)
}

func TestDecodeKeys(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Key
	}{
		{"arrows", "\x1b[A\x1b[B\x1b[C\x1b[D", []Key{KeyFaster, KeySlower, KeyRight, KeyLeft}},
		{"application mode arrows", "\x1bOA", []Key{KeyFaster}},
		{"wasd", "wasd", []Key{KeyFaster, KeyLeft, KeySlower, KeyRight}},
		{"stop center quit", " cq", []Key{KeyStop, KeyCenter, KeyQuit}},
		{"ctrl-c", "\x03", []Key{KeyQuit}},
		{"noise ignored", "xyz\x1b", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeKeys([]byte(tt.in)))
		})
	}
}

func TestKeyDecoderSplitSequences(t *testing.T) {
	// GOAL: an arrow key whose bytes straddle two terminal reads MUST decode as the arrow
	//
	// TEST SCENARIO: feed ESC, then "[A" → faster, not left from the bare 'A'
	tests := []struct {
		name  string
		reads []string
		want  []Key
	}{
		{"ESC alone then rest", []string{"\x1b", "[A"}, []Key{KeyFaster}},
		{"ESC [ then final byte", []string{"w\x1b[", "D"}, []Key{KeyFaster, KeyLeft}},
		{"application mode split", []string{"\x1b", "O", "C"}, []Key{KeyRight}},
		{"bare ESC before a key", []string{"\x1b", "s"}, []Key{KeySlower}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d KeyDecoder
			var got []Key
			for _, r := range tt.reads {
				got = append(got, d.Decode([]byte(r))...)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestControllerClampsAndSends(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec, 1000)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := c.Handle(ctx, KeyFaster)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 254, c.State().Speed, "speed MUST clamp at 254")

	for i := 0; i < 4; i++ {
		_, err := c.Handle(ctx, KeyLeft)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, -128, c.State().Angle, "angle MUST clamp at -128")

	assert.Equal(t, []command{
		{"motor", 100}, {"motor", 200}, {"motor", 254},
		{"rudder", -50}, {"rudder", -100}, {"rudder", -128},
	}, rec.all(), "unchanged state MUST not be resent")
}

func TestControllerThrottles(t *testing.T) {
	// GOAL: Verify bursts are coalesced by the rate limit and flushed later
	//
	// TEST SCENARIO: 1 cmd/s → two quick key presses → only first sent → Flush after refill sends the latest state

	rec := &recorder{}
	c := newTestController(rec, 1)
	ctx := context.Background()

	_, err := c.Handle(ctx, KeyFaster)
	require.NoError(t, err)
	_, err = c.Handle(ctx, KeyFaster)
	require.NoError(t, err)

	assert.Equal(t, []command{{"motor", 100}}, rec.all())
	assert.True(t, c.Pending(), "throttled change MUST stay pending")

	require.NoError(t, c.Flush(ctx))
	assert.Len(t, rec.all(), 1, "flush MUST respect the limit")

	c.limiter.SetLimit(1000)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, []command{{"motor", 100}, {"motor", 200}}, rec.all())
	assert.False(t, c.Pending())
}

func TestControllerStopBypassesLimit(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec, 1)
	ctx := context.Background()

	_, _ = c.Handle(ctx, KeyFaster)
	_, _ = c.Handle(ctx, KeyRight)
	_, err := c.Handle(ctx, KeyStop)
	require.NoError(t, err)

	assert.Equal(t, []command{{"motor", 100}, {"motor", 0}}, rec.all(),
		"stop MUST be sent immediately and drop the throttled rudder change")
	assert.Equal(t, State{}, c.State())
	assert.False(t, c.Pending())
}

func TestControllerQuit(t *testing.T) {
	rec := &recorder{}
	quit, err := newTestController(rec, 10).Handle(context.Background(), KeyQuit)

	require.NoError(t, err)
	assert.True(t, quit)
	assert.Empty(t, rec.all())
}

func TestLoop(t *testing.T) {
	t.Run("quit stops the motor", func(t *testing.T) {
		rec := &recorder{}
		c := newTestController(rec, 1000)
		keys := make(chan []byte, 2)
		keys <- []byte("w")
		keys <- []byte("q")

		var renders []State
		err := Loop(context.Background(), keys, c, func(s State) { renders = append(renders, s) }, 10*time.Millisecond)

		require.NoError(t, err)
		assert.Equal(t, []command{{"motor", 100}, {"motor", 0}}, rec.all(), "motor MUST be set to 0 on exit")
		assert.Equal(t, State{}, renders[len(renders)-1])
	})

	t.Run("arrow split across reads", func(t *testing.T) {
		rec := &recorder{}
		keys := make(chan []byte, 3)
		keys <- []byte("\x1b")
		keys <- []byte("[A")
		keys <- []byte("q")

		require.NoError(t, Loop(context.Background(), keys, newTestController(rec, 1000), func(State) {}, 10*time.Millisecond))

		assert.Equal(t, []command{{"motor", 100}, {"motor", 0}}, rec.all(), "split arrow MUST NOT steer the rudder")
	})

	t.Run("closed input and cancellation end the loop", func(t *testing.T) {
		rec := &recorder{}
		keys := make(chan []byte)
		close(keys)

		require.NoError(t, Loop(context.Background(), keys, newTestController(rec, 10), func(State) {}, time.Second))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, Loop(ctx, make(chan []byte), newTestController(rec, 10), func(State) {}, time.Second))
		assert.Equal(t, []command{{"motor", 0}, {"motor", 0}}, rec.all())
	})

	t.Run("command failure ends the loop", func(t *testing.T) {
		rec := &recorder{fail: errors.New("not_connected")}
		keys := make(chan []byte, 1)
		keys <- []byte("w")

		err := Loop(context.Background(), keys, newTestController(rec, 1000), func(State) {}, time.Second)

		assert.ErrorContains(t, err, "not_connected")
	})
}
