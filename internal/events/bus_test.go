package events

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDownstream struct {
	mu   sync.Mutex
	envs []Envelope
}

func (d *recordingDownstream) Publish(_ context.Context, env Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.envs = append(d.envs, env)
	return nil
}

func TestBusDeliversToSessionSubscribersOnly(t *testing.T) {
	b := NewBus(nil)

	ch1, unsub1 := b.Subscribe("sess-1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("sess-2")
	defer unsub2()

	require.NoError(t, b.Publish(context.Background(), New("sess-1", TypeTranscript, nil)))

	ev := <-ch1
	assert.Equal(t, "sess-1", ev.SessionID)
	assert.Equal(t, TypeTranscript, ev.Type)

	select {
	case <-ch2:
		t.Fatal("event leaked to another session's subscriber")
	default:
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(nil)

	ch, unsub := b.Subscribe("sess-1")
	unsub()

	_, open := <-ch
	assert.False(t, open)

	// unsubscribe twice is harmless
	unsub()

	// publishing after unsubscribe delivers nowhere and does not panic
	require.NoError(t, b.Publish(context.Background(), New("sess-1", TypeTranscript, nil)))
}

func TestBusForwardsDownstream(t *testing.T) {
	down := &recordingDownstream{}
	b := NewBus(down)

	require.NoError(t, b.Publish(context.Background(), New("sess-1", TypeClipCreated, map[string]string{"clip_id": "c1"})))

	down.mu.Lock()
	defer down.mu.Unlock()
	require.Len(t, down.envs, 1)
	assert.Equal(t, TypeClipCreated, down.envs[0].Type)
	assert.NotEmpty(t, down.envs[0].ID)
	assert.False(t, down.envs[0].TS.IsZero())
}

func TestBusDropsWhenSubscriberBufferFull(t *testing.T) {
	b := NewBus(nil)
	b.bufSize = 2

	ch, unsub := b.Subscribe("sess-1")
	defer unsub()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(context.Background(), New("sess-1", TypeTranscript, nil)))
	}
	assert.Len(t, ch, 2)
}
