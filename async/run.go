package async

import "github.com/alanbriolat/ezfetch/generic"

// Run will run a function in a goroutine, returning its result via a channel.
//
// The channel is buffered, so the goroutine always exits even if nobody ever receives the result; callers abandon
// work by dropping the channel.
func Run[T any](f func() T) <-chan T {
	c := make(chan T, 1)
	go func() {
		c <- f()
	}()
	return c
}

// RunResult is like Run, for functions that return (T, error).
func RunResult[T any](f func() (T, error)) <-chan generic.Result[T] {
	return Run(func() generic.Result[T] {
		return generic.NewResult(f())
	})
}
