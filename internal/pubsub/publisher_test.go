package pubsub

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestChannel_Close(t *testing.T) {
	assert := assert_.New(t)

	ch := NewChannel[int](1)
	assert.True(ch.Send(1))
	// Buffer is full, but TrySend drops instead of blocking
	assert.True(ch.TrySend(2))
	ch.Close()
	ch.Close()
	<-ch.Closed()
	assert.False(ch.Send(3))
	assert.False(ch.TrySend(3))
	v, ok := <-ch.Receive()
	assert.True(ok)
	assert.Equal(1, v)
	_, ok = <-ch.Receive()
	assert.False(ok)
}

func TestPublisher_Fanout(t *testing.T) {
	assert := assert_.New(t)

	pub := NewPublisher[string]()
	a, err := pub.SubscribeBufSize(4)
	assert.NoError(err)
	b, err := pub.SubscribeBufSize(4)
	assert.NoError(err)

	assert.True(pub.Send("x"))
	assert.True(pub.Send("y"))
	pub.Close()

	var gotA, gotB []string
	for v := range a.Receive() {
		gotA = append(gotA, v)
	}
	for v := range b.Receive() {
		gotB = append(gotB, v)
	}
	assert.Equal([]string{"x", "y"}, gotA)
	assert.Equal([]string{"x", "y"}, gotB)

	<-pub.Closed()
	assert.False(pub.Send("z"))
	_, err = pub.Subscribe()
	assert.ErrorIs(err, ErrPublisherClosed)
}

func TestPublisher_DropsClosedSubscriber(t *testing.T) {
	assert := assert_.New(t)

	pub := NewPublisher[int]()
	gone, _ := pub.SubscribeBufSize(1)
	kept, _ := pub.SubscribeBufSize(4)
	gone.Close()

	pub.Send(1)
	pub.Send(2)
	pub.Close()

	var got []int
	for v := range kept.Receive() {
		got = append(got, v)
	}
	assert.Equal([]int{1, 2}, got)
}
