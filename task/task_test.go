package task

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vemoo/goose/internal/errs"
)

func TestTaskSet_BuilderChain(t *testing.T) {
	ts := NewTaskSet("website", 3)
	ts.OnStartTask("login", 1, func(User) {})
	ts.Task("browse", 10, func(User) {}).Sequence(1)
	ts.Task("checkout", 2, func(User) {})
	ts.OnStopTask("logout", 1, func(User) {})
	ts.Wait(time.Second, 3*time.Second).Host("https://example.test")

	require.Len(t, ts.Tasks(), 4)
	assert.Equal(t, "website", ts.Name())
	assert.Equal(t, 3, ts.Weight())
	assert.Equal(t, "https://example.test", ts.HostOverride())

	login := ts.Tasks()[0]
	assert.True(t, login.OnStart())
	assert.False(t, login.OnStop())

	browse := ts.Tasks()[1]
	seq, ok := browse.Sequence()
	assert.True(t, ok)
	assert.Equal(t, 1, seq)

	checkout := ts.Tasks()[2]
	_, ok = checkout.Sequence()
	assert.False(t, ok)

	logout := ts.Tasks()[3]
	assert.True(t, logout.OnStop())
}

func TestTaskSet_Index_IsDenseAndStable(t *testing.T) {
	ts := NewTaskSet("A", 1)
	ts.Task("a", 1, func(User) {})
	ts.Task("b", 1, func(User) {})
	ts.OnStopTask("c", 1, func(User) {})

	for i, tk := range ts.Tasks() {
		assert.Equal(t, i, tk.Index())
	}
}

func TestValidate_OK(t *testing.T) {
	ts := NewTaskSet("A", 1)
	ts.Task("a", 1, func(User) {})
	require.NoError(t, Validate([]*TaskSet{ts}))
}

func TestValidate_RejectsNonPositiveTaskSetWeight(t *testing.T) {
	ts := NewTaskSet("A", 0)
	ts.Task("a", 1, func(User) {})
	err := Validate([]*TaskSet{ts})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNonPositiveWeight))
}

func TestValidate_RejectsEmptyTaskSet(t *testing.T) {
	ts := NewTaskSet("A", 1)
	err := Validate([]*TaskSet{ts})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrEmptyTaskSet))
}

func TestValidate_RejectsNonPositiveTaskWeight(t *testing.T) {
	ts := NewTaskSet("A", 1)
	ts.Task("a", 0, func(User) {})
	err := Validate([]*TaskSet{ts})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNonPositiveWeight))
}
