package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	order *[]string
	name  string
	err   error
}

func (c *closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestRunnerWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx)
	errBoom := errors.New("boom")
	var order []string
	r.Go(
		NamedRun("quiet", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		NamedRun("failing", RunFunc(func(context.Context) error {
			return errBoom
		})),
	).Defer(
		&closeRecorder{order: &order, name: "first"},
		&closeRecorder{order: &order, name: "second"},
	)
	time.AfterFunc(5*time.Millisecond, cancel)
	err := r.Wait()
	require.ErrorIs(t, err, errBoom)
	require.Contains(t, err.Error(), "failing")
	require.Equal(t, []string{"second", "first"}, order)
}

func TestRunnerCanceledOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunnerWith(ctx).Go(NewWorkQueue("q"))
	require.NoError(t, r.Wait())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, context.Canceled).Aggregate())
	e1, e2 := errors.New("e1"), errors.New("e2")
	errs.Add(e1)
	require.Equal(t, "e1", errs.Aggregate().Error())
	errs.Add(e2)
	err := errs.Aggregate()
	require.ErrorIs(t, err, e1)
	require.ErrorIs(t, err, e2)
	require.Equal(t, "multiple errors:\n  e1\n  e2", err.Error())
}

type chanCloser chan struct{}

func (c chanCloser) Close() error {
	close(c)
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	release := make(chanCloser)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(5*time.Millisecond, cancel)
	err := RunWithContextCloser(ctx, release, func() error {
		<-release
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	// closed on normal return too
	release = make(chanCloser)
	require.NoError(t, RunWithContextCloser(context.Background(), release, func() error { return nil }))
	_, open := <-release
	require.False(t, open)
}
