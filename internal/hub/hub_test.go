package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/loglens/internal/model"
)

func TestHubBroadcast(t *testing.T) {
	h := New(nil)

	sub1, cancel1 := h.Subscribe()
	defer cancel1()
	sub2, cancel2 := h.Subscribe()
	defer cancel2()

	h.Publish(model.Progress{Source: "app.log", State: "running", Index: 50000})

	for _, sub := range []<-chan model.Progress{sub1, sub2} {
		select {
		case ev := <-sub:
			assert.Equal(t, uint64(50000), ev.Index)
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
}

func TestHubSlowConsumer(t *testing.T) {
	h := New(nil)

	// Subscribe but never read.
	_, cancel := h.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+100; i++ {
		h.Publish(model.Progress{Source: "app.log", Index: uint64(i)})
	}

	assert.Equal(t, int64(100), h.Dropped())
}

func TestHubLatest(t *testing.T) {
	h := New(nil)

	h.Publish(model.Progress{Source: "a.log", Index: 1})
	h.Publish(model.Progress{Source: "a.log", Index: 2})
	h.Publish(model.Progress{Source: "b.log", Index: 9})

	latest := h.Latest()
	require.Len(t, latest, 2)
	assert.ElementsMatch(t, []uint64{2, 9}, []uint64{latest[0].Index, latest[1].Index})
}

func TestHubUnsubscribeAndClose(t *testing.T) {
	h := New(nil)

	sub, cancel := h.Subscribe()
	cancel()
	cancel()
	_, ok := <-sub
	assert.False(t, ok)

	other, _ := h.Subscribe()
	h.Close()
	_, ok = <-other
	assert.False(t, ok)

	// Publishing after close is ignored; subscribing yields a closed channel.
	h.Publish(model.Progress{Source: "x"})
	late, _ := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
