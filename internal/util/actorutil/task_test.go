package actorutil

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pipeTask spawns an actor that starts a task on Started and returns the
// channel receiving whatever the task delivers.
func pipeTask(t *testing.T, start func(ctx actor.Context, target *actor.PID)) <-chan any {
	t.Helper()
	as := NewActorSystemWithZapLogger(zap.NewNop())
	t.Cleanup(as.Shutdown)

	out := make(chan any, 4)
	target := as.Root.Spawn(actor.PropsFromFunc(func(c actor.Context) {
		switch c.Message().(type) {
		case *actor.Started, *actor.Stopping, *actor.Stopped, *actor.Restarting:
		default:
			out <- c.Message()
		}
	}))
	as.Root.Spawn(actor.PropsFromFunc(func(c actor.Context) {
		if _, ok := c.Message().(*actor.Started); ok {
			start(c, target)
		}
	}))
	return out
}

func receive(t *testing.T, out <-chan any) any {
	t.Helper()
	select {
	case msg := <-out:
		return msg
	case <-time.After(3 * time.Second):
		require.FailNow(t, "no message delivered")
		return nil
	}
}

func errorMessage(err error) string {
	return "failed: " + err.Error()
}

func TestBackgroundTaskDeliversResult(t *testing.T) {

	assert := assert.New(t)

	out := pipeTask(t, func(ctx actor.Context, target *actor.PID) {
		NewBackgroundTask(ctx, func() (*int, error) {
			v := 42
			return &v, nil
		}).PipeTo(target)
	})
	assert.Equal(42, receive(t, out))
}

func TestBackgroundTaskMapsResult(t *testing.T) {

	assert := assert.New(t)

	out := pipeTask(t, func(ctx actor.Context, target *actor.PID) {
		task := NewBackgroundTask(ctx, func() (*int, error) {
			v := 7
			return &v, nil
		})
		MapBackgroundTask(task, func(v *int) *string {
			s := fmt.Sprintf("value=%d", *v)
			return &s
		}).Recover(errorMessage).PipeTo(target)
	})
	assert.Equal("value=7", receive(t, out))
}

func TestBackgroundTaskRecoversFailures(t *testing.T) {

	assert := assert.New(t)

	cases := map[string]func() (*string, error){
		"error": func() (*string, error) {
			return nil, errors.New("illegal data address")
		},
		"nil result": func() (*string, error) {
			return nil, nil
		},
		"panic": func() (*string, error) {
			panic("serial port closed")
		},
	}
	for name, call := range cases {
		out := pipeTask(t, func(ctx actor.Context, target *actor.PID) {
			NewBackgroundTask(ctx, call).Recover(errorMessage).PipeTo(target)
		})
		msg, ok := receive(t, out).(string)
		assert.True(ok, name)
		assert.Contains(msg, "failed: ", name)
	}

	out := pipeTask(t, func(ctx actor.Context, target *actor.PID) {
		NewBackgroundTask(ctx, func() (*string, error) {
			return nil, nil
		}).Recover(func(err error) string {
			return fmt.Sprint(errors.Is(err, ErrNoResult))
		}).PipeTo(target)
	})
	assert.Equal("true", receive(t, out))
}

func TestBackgroundTaskTimeout(t *testing.T) {

	assert := assert.New(t)

	out := pipeTask(t, func(ctx actor.Context, target *actor.PID) {
		NewBackgroundTask(ctx, func() (*string, error) {
			time.Sleep(2 * time.Second)
			s := "late"
			return &s, nil
		}).Recover(func(err error) string {
			if errors.Is(err, io.ErrorTimeout) {
				return "timeout"
			}
			return err.Error()
		}).WithTimeout(50 * time.Millisecond).PipeTo(target)
	})
	assert.Equal("timeout", receive(t, out))
}

func TestBackgroundTaskWithoutRecoverDropsFailures(t *testing.T) {

	out := pipeTask(t, func(ctx actor.Context, target *actor.PID) {
		NewBackgroundTask(ctx, func() (*string, error) {
			return nil, errors.New("timeout")
		}).PipeTo(target)
	})
	assert.Never(t, func() bool {
		return len(out) > 0
	}, 300*time.Millisecond, 50*time.Millisecond)
}
