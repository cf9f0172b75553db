package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	steps    []string
	partials []string
}

func (r *recorder) ObserveStep(op, step string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.steps = append(r.steps, fmt.Sprintf("%s/%s:%s", op, step, outcome))
}

func (r *recorder) ObservePartialFailure(op, step string) {
	r.partials = append(r.partials, op+"/"+step)
}

func step(name string, err error, ran *[]string) Step {
	return Step{Name: name, Run: func(context.Context) error {
		*ran = append(*ran, name)
		return err
	}}
}

func TestSagaRunsAllSteps(t *testing.T) {
	obs := &recorder{}
	var ran []string
	err := Saga{Op: "delete", Observer: obs}.Run(context.Background(),
		step("a", nil, &ran), step("b", nil, &ran))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, []string{"delete/a:ok", "delete/b:ok"}, obs.steps)
	assert.Empty(t, obs.partials)
}

func TestSagaFirstStepFailureIsRaw(t *testing.T) {
	obs := &recorder{}
	var ran []string
	boom := errors.New("boom")
	err := Saga{Op: "delete", Observer: obs}.Run(context.Background(),
		step("a", boom, &ran), step("b", nil, &ran))
	require.ErrorIs(t, err, boom)
	assert.False(t, IsErrPartialFailure(err))
	assert.Equal(t, []string{"a"}, ran)
	assert.Empty(t, obs.partials)
}

func TestSagaPartialFailure(t *testing.T) {
	obs := &recorder{}
	var ran []string
	boom := fmt.Errorf("%w: users/u1", ErrWriteFailure)
	err := Saga{Op: "delete", Observer: obs}.Run(context.Background(),
		step("a", nil, &ran), step("b", nil, &ran), step("c", boom, &ran), step("d", nil, &ran))

	require.Error(t, err)
	assert.True(t, IsErrPartialFailure(err))
	assert.True(t, IsErrWriteFailure(err), "cause stays reachable")

	pf, ok := AsPartialFailure(err)
	require.True(t, ok)
	assert.Equal(t, "delete", pf.Op)
	assert.Equal(t, []string{"a", "b"}, pf.Completed)
	assert.Equal(t, "c", pf.Failed)
	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.Equal(t, []string{"delete/c"}, obs.partials)
	assert.Contains(t, err.Error(), `"c"`)
}

func TestSagaStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran []string
	err := Saga{Op: "op"}.Run(ctx,
		Step{Name: "a", Run: func(context.Context) error { ran = append(ran, "a"); cancel(); return nil }},
		step("b", nil, &ran))
	require.ErrorIs(t, err, context.Canceled)
	pf, ok := AsPartialFailure(err)
	require.True(t, ok)
	assert.Equal(t, "b", pf.Failed)
	assert.Equal(t, []string{"a"}, ran)
}
