package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdown_RunsStepsInOrder(t *testing.T) {
	c := New(time.Second)
	var order []string

	c.Register("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	c.Register("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, c.Shutdown(t.Context()))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestShutdown_JoinsErrorsAndRunsAllSteps(t *testing.T) {
	c := New(time.Second)
	ran := make(map[string]bool)

	c.Register("failing", func(ctx context.Context) error {
		ran["failing"] = true
		return errors.New("boom")
	})
	c.Register("later", func(ctx context.Context) error {
		ran["later"] = true
		return nil
	})

	err := c.Shutdown(t.Context())
	require.Error(t, err)
	assert.True(t, ran["failing"])
	assert.True(t, ran["later"])
}

func TestShutdown_StepExceedingGracePeriodTimesOut(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := c.Shutdown(t.Context())
	require.Error(t, err)
}

func TestNew_DefaultsZeroGracePeriod(t *testing.T) {
	c := New(0)
	assert.Equal(t, 10*time.Second, c.GracePeriod)
}
