package keel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closer struct {
	name  string
	log   *[]string
	err   error
	calls int
}

func (c *closer) Close() error {
	c.calls++
	*c.log = append(*c.log, c.name)
	return c.err
}

func TestLifecycleManager(t *testing.T) {
	t.Run("disposes in reverse order", func(t *testing.T) {
		var log []string
		lm := newLifecycleManager()
		lm.track(&closer{name: "a", log: &log})
		lm.track("not disposable")
		lm.track(&closer{name: "b", log: &log})
		lm.track(nil)
		lm.track(&closer{name: "c", log: &log})

		require.NoError(t, lm.dispose())
		assert.Equal(t, []string{"c", "b", "a"}, log)
	})

	t.Run("continues after errors", func(t *testing.T) {
		var log []string
		errA := errors.New("a failed")
		errC := errors.New("c failed")

		lm := newLifecycleManager()
		lm.track(&closer{name: "a", log: &log, err: errA})
		lm.track(&closer{name: "b", log: &log})
		lm.track(&closer{name: "c", log: &log, err: errC})

		err := lm.dispose()
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errC)
		assert.Contains(t, err.Error(), "disposal error: c failed")
		assert.Equal(t, []string{"c", "b", "a"}, log)
	})

	t.Run("dispose empties the manager", func(t *testing.T) {
		var log []string
		c := &closer{name: "a", log: &log}

		lm := newLifecycleManager()
		lm.track(c)

		require.NoError(t, lm.dispose())
		require.NoError(t, lm.dispose())
		assert.Equal(t, 1, c.calls)
	})
}

func TestContainer_EntriesInOrder(t *testing.T) {
	c := NewContainer()
	c.Add("b", 1)
	c.Add("a", 2)
	c.Add("b", 3)

	var keys []string
	for _, e := range c.entriesInOrder() {
		keys = append(keys, e.key)
	}
	assert.Equal(t, []string{KeyContainer, "b", "a"}, keys)

	assert.Equal(t, 3, c.entriesInOrder()[1].value)
}
