package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProviderDeliversToSubscriber(t *testing.T) {
	p := NewMemoryProvider()
	var got [][]byte
	require.NoError(t, p.Subscribe("outgoing", func(payload []byte) {
		got = append(got, payload)
	}))
	q := p.Queue("outgoing")
	require.NoError(t, q.Publish([]byte("one")))
	require.NoError(t, q.Publish([]byte("two")))
	require.Len(t, got, 2)
	assert.Equal(t, "one", string(got[0]))
	assert.Equal(t, 0, p.Buffered("outgoing").Len())
}

func TestMemoryProviderReplaysBacklogOnSubscribe(t *testing.T) {
	p := NewMemoryProvider()
	q := p.Queue("incoming")
	require.NoError(t, q.Publish([]byte("early")))
	require.Equal(t, 1, p.Buffered("incoming").Len())

	var got [][]byte
	require.NoError(t, p.Subscribe("incoming", func(payload []byte) {
		got = append(got, payload)
	}))
	require.Len(t, got, 1)
	assert.Equal(t, "early", string(got[0]))
	assert.Equal(t, 0, p.Buffered("incoming").Len())
}

func TestMemoryProviderQueuesAreIndependent(t *testing.T) {
	p := NewMemoryProvider()
	require.NoError(t, p.Queue("outgoing").Publish([]byte("a")))
	require.NoError(t, p.Queue("not-sent").Publish([]byte("b")))
	assert.Equal(t, 1, p.Buffered("outgoing").Len())
	assert.Equal(t, 1, p.Buffered("not-sent").Len())
}
