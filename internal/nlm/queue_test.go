// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlm

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/rule"
)

func numbered(i int) Envelope {
	return Envelope{Opcode: OpAck, Payload: rule.SimpleRef(fmt.Sprintf("rule-%d", i))}
}

func TestQueue_FillToCapacity(t *testing.T) {
	q := NewQueue()
	for i := 0; i < QueueCapacity; i++ {
		require.NoError(t, q.Add(numbered(i)))
	}

	err := q.Add(numbered(QueueCapacity))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, errors.KindUnavailable, errors.GetKind(err))
	assert.Equal(t, QueueCapacity, q.Count())

	for i := 0; i < QueueCapacity; i++ {
		got, err := q.Get(i)
		require.NoError(t, err)
		assert.Equal(t, numbered(i), got, "index %d", i)
	}
}

func TestQueue_ClearThenAdd(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Add(numbered(i)))
	}

	q.Clear()
	assert.Equal(t, 0, q.Count())

	require.NoError(t, q.Add(numbered(99)))
	got, err := q.Get(0)
	require.NoError(t, err)
	assert.Equal(t, numbered(99), got)
}

func TestQueue_IndexOutOfRange(t *testing.T) {
	q := NewQueue()
	_, err := q.Get(0)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))

	require.NoError(t, q.Add(numbered(0)))
	_, err = q.Get(q.Count())
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
	_, err = q.Get(-1)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
}

func TestQueue_InitIsIdempotent(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Add(numbered(0)))
	q.Init()
	q.Init()
	assert.Equal(t, 0, q.Count())
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue()
	assert.Nil(t, q.Drain())

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Add(numbered(i)))
	}
	got := q.Drain()
	assert.Equal(t, []Envelope{numbered(0), numbered(1), numbered(2)}, got)
	assert.Equal(t, 0, q.Count())
}

func TestQueue_ProducerConsumer(t *testing.T) {
	const total = 500
	q := NewQueue()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if err := q.Add(numbered(i)); err != nil {
				if !errors.Is(err, ErrQueueFull) {
					t.Errorf("unexpected error: %v", err)
					return
				}
				continue
			}
			i++
		}
	}()

	var seen []Envelope
	for len(seen) < total {
		seen = append(seen, q.Drain()...)
		assert.LessOrEqual(t, q.Count(), QueueCapacity)
	}
	wg.Wait()

	for i, env := range seen {
		assert.Equal(t, numbered(i), env)
	}
}
