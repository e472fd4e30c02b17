package event_test

import (
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const codeTest = event.CodeUser + 1

func TestPublishDoesNotDispatchSynchronously(t *testing.T) {
	b := event.NewBus()
	called := false
	_, err := b.Subscribe(codeTest, 0, func(event.Event) { called = true })
	require.NoError(t, err)

	require.NoError(t, b.Publish(codeTest, 0, event.U64(1)))
	assert.False(t, called)
	assert.Equal(t, 1, b.Pending())

	assert.Equal(t, 1, b.Dispatch())
	assert.True(t, called)
	assert.Equal(t, 0, b.Pending())
}

func TestDispatchOrderIsFIFOThenRegistration(t *testing.T) {
	b := event.NewBus()
	var calls []string
	s1, s2 := event.NewListenerID(), event.NewListenerID()

	_, err := b.Subscribe(codeTest, s1, func(ev event.Event) {
		v, _ := ev.Payload.U64()
		calls = append(calls, "s1:"+string(rune('0'+v)))
	})
	require.NoError(t, err)
	_, err = b.Subscribe(codeTest, s2, func(ev event.Event) {
		v, _ := ev.Payload.U64()
		calls = append(calls, "s2:"+string(rune('0'+v)))
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(codeTest, 0, event.U64(1)))
	require.NoError(t, b.Publish(codeTest, 0, event.U64(2)))
	b.Dispatch()

	assert.Equal(t, []string{"s1:1", "s2:1", "s1:2", "s2:2"}, calls)
}

func TestDispatchOnlyReachesSubscribersOfCode(t *testing.T) {
	b := event.NewBus()
	var got []event.Code
	_, _ = b.Subscribe(event.CodeKeyPressed, 0, func(ev event.Event) { got = append(got, ev.Code) })

	_ = b.Publish(event.CodeMouseMoved, 0, event.I32s([4]int32{1, 2, 0, 0}))
	_ = b.Publish(event.CodeKeyPressed, 0, event.U32s([4]uint32{65, 0, 0, 0}))
	assert.Equal(t, 2, b.Dispatch())
	assert.Equal(t, []event.Code{event.CodeKeyPressed}, got)
}

func TestDuplicateSubscriptionFails(t *testing.T) {
	b := event.NewBus()
	l := event.NewListenerID()
	h := func(event.Event) {}

	_, err := b.Subscribe(codeTest, l, h)
	require.NoError(t, err)
	_, err = b.Subscribe(codeTest, l, h)
	assert.ErrorIs(t, err, event.ErrDuplicateSubscription)
	assert.Equal(t, 1, b.Subscribers(codeTest))

	// Same listener on another code is fine, as are anonymous duplicates.
	_, err = b.Subscribe(codeTest+1, l, h)
	assert.NoError(t, err)
	_, err = b.Subscribe(codeTest, 0, h)
	assert.NoError(t, err)
	_, err = b.Subscribe(codeTest, 0, h)
	assert.NoError(t, err)
	assert.Equal(t, 3, b.Subscribers(codeTest))
}

func TestUnsubscribe(t *testing.T) {
	b := event.NewBus()
	count := 0
	sub, err := b.Subscribe(codeTest, event.NewListenerID(), func(event.Event) { count++ })
	require.NoError(t, err)
	assert.True(t, sub.Valid())
	assert.Equal(t, codeTest, sub.Code())

	require.NoError(t, b.Unsubscribe(sub))
	assert.ErrorIs(t, b.Unsubscribe(sub), event.ErrUnknownSubscription)
	assert.ErrorIs(t, b.Unsubscribe(event.Subscription{}), event.ErrUnknownSubscription)

	_ = b.Publish(codeTest, 0, event.Payload{})
	b.Dispatch()
	assert.Zero(t, count)
}

func TestUnsubscribeKeepsOtherSubscribersInOrder(t *testing.T) {
	b := event.NewBus()
	var calls []int
	subs := make([]event.Subscription, 3)
	for i := range subs {
		sub, err := b.Subscribe(codeTest, 0, func(event.Event) { calls = append(calls, i) })
		require.NoError(t, err)
		subs[i] = sub
	}
	require.NoError(t, b.Unsubscribe(subs[1]))

	_ = b.Publish(codeTest, 0, event.Payload{})
	b.Dispatch()
	assert.Equal(t, []int{0, 2}, calls)
}

func TestPublishFullBufferDropsEvent(t *testing.T) {
	b := event.NewBus(event.WithCapacity(2))
	require.NoError(t, b.Publish(codeTest, 0, event.U64(1)))
	require.NoError(t, b.Publish(codeTest, 0, event.U64(2)))
	assert.ErrorIs(t, b.Publish(codeTest, 0, event.U64(3)), event.ErrBufferFull)

	var seen []uint64
	_, _ = b.Subscribe(codeTest, 0, func(ev event.Event) {
		v, _ := ev.Payload.U64()
		seen = append(seen, v)
	})
	b.Dispatch()
	assert.Equal(t, []uint64{1, 2}, seen)

	// Space is reclaimed after dispatch and the ring wraps around.
	require.NoError(t, b.Publish(codeTest, 0, event.U64(4)))
	require.NoError(t, b.Publish(codeTest, 0, event.U64(5)))
	b.Dispatch()
	assert.Equal(t, []uint64{1, 2, 4, 5}, seen)
}

func TestEventsPublishedDuringDispatchAreDeferred(t *testing.T) {
	b := event.NewBus()
	n := 0
	_, _ = b.Subscribe(codeTest, 0, func(ev event.Event) {
		n++
		_ = b.Publish(codeTest, 0, ev.Payload)
	})

	_ = b.Publish(codeTest, 0, event.Payload{})
	assert.Equal(t, 1, b.Dispatch())
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, b.Pending())
}

func TestSubscribeDuringDispatchTakesEffectNextEvent(t *testing.T) {
	b := event.NewBus()
	late := 0
	_, _ = b.Subscribe(codeTest, 0, func(event.Event) {
		if late == 0 {
			_, _ = b.Subscribe(codeTest, event.NewListenerID(), func(event.Event) { late++ })
		}
	})
	_ = b.Publish(codeTest, 0, event.Payload{})
	_ = b.Publish(codeTest, 0, event.Payload{})
	b.Dispatch()
	assert.Equal(t, 1, late)
}

func TestCloseDropsEverything(t *testing.T) {
	b := event.NewBus()
	called := false
	_, _ = b.Subscribe(codeTest, 0, func(event.Event) { called = true })
	_ = b.Publish(codeTest, 0, event.Payload{})

	b.Close()
	b.Close()
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 0, b.Dispatch())
	assert.False(t, called)
	assert.Equal(t, 0, b.Subscribers(codeTest))

	assert.ErrorIs(t, b.Publish(codeTest, 0, event.Payload{}), event.ErrBusClosed)
	_, err := b.Subscribe(codeTest, 0, func(event.Event) {})
	assert.ErrorIs(t, err, event.ErrBusClosed)
}

func TestSubscribeNilHandler(t *testing.T) {
	_, err := event.NewBus().Subscribe(codeTest, 0, nil)
	assert.ErrorIs(t, err, event.ErrNilHandler)
}

func TestConcurrentPublish(t *testing.T) {
	b := event.NewBus(event.WithCapacity(1000))
	var wg sync.WaitGroup
	for g := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 250 {
				_ = b.Publish(codeTest, event.ListenerID(g+1), event.U64(uint64(i)))
			}
		}()
	}
	wg.Wait()

	perSender := map[event.ListenerID][]uint64{}
	_, _ = b.Subscribe(codeTest, 0, func(ev event.Event) {
		v, _ := ev.Payload.U64()
		perSender[ev.Sender] = append(perSender[ev.Sender], v)
	})
	assert.Equal(t, 1000, b.Dispatch())
	for _, seq := range perSender {
		for i := 1; i < len(seq); i++ {
			assert.Less(t, seq[i-1], seq[i])
		}
	}
}

func TestNewBusPanicsOnBadCapacity(t *testing.T) {
	assert.Panics(t, func() { event.NewBus(event.WithCapacity(0)) })
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "AssetLoaded", event.CodeAssetLoaded.String())
	assert.Equal(t, "User+1", codeTest.String())
	assert.Equal(t, "Code(200)", event.Code(200).String())
}
