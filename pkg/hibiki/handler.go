package hibiki

import (
	"fmt"
)

// Handler consumes one emitted value. Handlers return nothing; a handler
// that panics during synchronous dispatch aborts the remainder of that
// dispatch pass and the panic reaches the Emit caller unchanged.
type Handler[T any] func(T)

// runSafely executes fn and converts panics into returned errors tagged with scope.
// It guards asynchronous dispatch boundaries so one failing task cannot crash
// the process; synchronous dispatch never passes through it.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		err = fmt.Errorf("%s: panic recovered: %v", scope, recovered)
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}
