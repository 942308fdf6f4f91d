package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/castaldi/frank/internal/logging"
)

func TestBusFansOutToAllSubscribers(t *testing.T) {
	b := NewBus(logging.New(nil, "error"))

	var got1, got2 []string
	b.Subscribe("one", func(ev Event) { got1 = append(got1, ev.Name) })
	b.Subscribe("two", func(ev Event) { got2 = append(got2, ev.Name) })

	b.Emit(SessionStarted, "conv-1", "set_route", nil)
	b.Emit(SessionReady, "conv-1", "set_route", nil)

	assert.Equal(t, []string{SessionStarted, SessionReady}, got1)
	assert.Equal(t, []string{SessionStarted, SessionReady}, got2)
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	b := NewBus(logging.New(nil, "error"))

	var got []string
	b.Subscribe("bad", func(ev Event) { panic("boom") })
	b.Subscribe("good", func(ev Event) { got = append(got, ev.Name) })

	assert.NotPanics(t, func() {
		b.Emit(SessionFinished, "conv-1", "set_route", nil)
	})
	assert.Equal(t, []string{SessionFinished}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus(logging.New(nil, "error"))

	var count int
	b.Subscribe("x", func(ev Event) { count++ })
	b.Emit(GatingNotice, "conv-1", "set_route", nil)
	b.Unsubscribe("x")
	b.Emit(GatingNotice, "conv-1", "set_route", nil)

	assert.Equal(t, 1, count)
}

func TestRecorderKeepsOrder(t *testing.T) {
	var r Recorder
	r.Emit(SessionStarted, "c", "t", nil)
	r.Emit(SessionRunning, "c", "t", map[string]any{"k": "v"})
	r.Emit(SessionFinished, "c", "t", nil)

	assert.Equal(t, []string{SessionStarted, SessionRunning, SessionFinished}, r.Names())
	assert.Equal(t, "v", r.Events[1].Payload["k"])
}
