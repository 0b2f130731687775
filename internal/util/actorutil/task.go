package actorutil

import (
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var ErrNoResult = errors.New("background task returned no result")

// BackgroundTask runs a blocking call off the actor goroutine and delivers a
// single message with its outcome.
type BackgroundTask[T any] struct {
	ctx      actor.Context
	call     func() (*T, error)
	timeout  time.Duration
	fallback func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, call func() (*T, error)) *BackgroundTask[T] {
	return &BackgroundTask[T]{
		ctx:  ctx,
		call: call,
	}
}

// MapBackgroundTask converts the result of a successful call. Timeout and
// fallback are set on the returned task.
func MapBackgroundTask[T, R any](task *BackgroundTask[T], fn func(*T) *R) *BackgroundTask[R] {
	return &BackgroundTask[R]{
		ctx: task.ctx,
		call: func() (*R, error) {
			value, err := task.call()
			if err != nil {
				return nil, err
			}
			return fn(value), nil
		},
	}
}

func (t *BackgroundTask[T]) WithTimeout(timeout time.Duration) *BackgroundTask[T] {
	t.timeout = timeout
	return t
}

// Recover builds the message sent when the call fails, panics, times out or
// returns no value.
func (t *BackgroundTask[T]) Recover(fn func(error) T) *BackgroundTask[T] {
	t.fallback = fn
	return t
}

// PipeTo starts the task and sends the outcome to target. Failures are
// dropped unless Recover was set.
func (t *BackgroundTask[T]) PipeTo(target *actor.PID) {
	root := t.ctx.ActorSystem().Root
	program := t.program()
	go func() {
		result := io.RunSync(program)
		if result.Error != nil {
			return
		}
		root.Send(target, result.Value)
	}()
}

func (t *BackgroundTask[T]) program() io.IO[T] {
	task := io.FlatMap(io.Eval(t.call), func(value *T) io.IO[T] {
		if value == nil {
			return io.Fail[T](ErrNoResult)
		}
		return io.Lift(*value)
	})
	if t.timeout > 0 {
		task = io.WithTimeout[T](t.timeout)(task)
	}
	if t.fallback != nil {
		fallback := t.fallback
		task = io.Recover(task, func(err error) io.IO[T] {
			return io.Lift(fallback(err))
		})
	}
	return task
}
