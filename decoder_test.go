package imagesource

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecoder_TerminalStateIsFinal(t *testing.T) {
	d := newDecoder(nil, Snapshot{})
	require.Equal(t, DecoderCreated, d.State())

	require.True(t, d.setState(DecoderDecoding))
	d.supersede()
	require.Equal(t, DecoderAborted, d.State())
	require.False(t, d.setState(DecoderCompleted))
	require.Equal(t, DecoderAborted, d.State())

	require.NotEqual(t, d.ID(), newDecoder(nil, Snapshot{}).ID())
}

func TestDecoderState_String(t *testing.T) {
	tests := map[DecoderState]string{
		DecoderCreated:   "created",
		DecoderDecoding:  "decoding",
		DecoderCompleted: "completed",
		DecoderAborted:   "aborted",
		DecoderFailed:    "failed",
		DecoderState(42): "unknown",
	}
	for st, want := range tests {
		require.Equal(t, want, st.String())
	}
	require.False(t, DecoderDecoding.Terminal())
	require.True(t, DecoderFailed.Terminal())
}

func TestDecoder_LifecycleThroughSource(t *testing.T) {
	sched := &manualScheduler{}
	c := &bandCodec{blocks: 2, gate: make(chan struct{}), entered: make(chan struct{})}
	s := newTestSource(t, sched, c, nil)
	a := newRecorder("a")

	require.NoError(t, s.Subscribe(a, NoTrust, true))
	done := sched.StepAsync(t)
	waitClosed(t, c.entered, "decode start")

	s.mu.Lock()
	first := s.active
	s.mu.Unlock()
	require.NotNil(t, first)
	require.Equal(t, DecoderDecoding, first.State())
	require.True(t, first.Snapshot().Contains(a))

	s.Flush()
	require.Equal(t, DecoderAborted, first.State())
	close(c.gate)
	waitClosed(t, done, "superseded decode end")
	require.Equal(t, DecoderAborted, first.State())

	var second *Decoder
	a.onEvent = func(e Event) {
		if e.Kind == EventProgress && second == nil {
			s.mu.Lock()
			second = s.active
			s.mu.Unlock()
		}
	}
	sched.Drain()
	require.NotNil(t, second)
	require.Equal(t, DecoderCompleted, second.State())
	require.Equal(t, -1, first.ID().Compare(second.ID()))
}
