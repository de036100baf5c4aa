// Package rescue provides the handler-panic recovery path the connection
// worker installs around every dispatch: a panic increments a counter, logs
// a stack trace, and lets the worker still emit a well-formed response.
package rescue

import (
	"runtime"

	"github.com/mistnet/httpx/logx"
	"github.com/mistnet/httpx/metrics"
)

// PanicHandlers runs, in order, for every recovered panic. Tests may append
// to this to observe recovery without depending on log output.
var PanicHandlers = []func(any){
	incPanicCounter,
	logPanic,
}

func incPanicCounter(_ any) {
	metrics.PanicTotal.Inc()
}

func logPanic(r any) {
	const size = 64 << 10
	stack := make([]byte, size)
	stack = stack[:runtime.Stack(stack, false)]
	if s, ok := r.(string); ok {
		logx.Std().Errorf("handler panic: %s\n%s", s, stack)
		return
	}
	logx.Std().Errorf("handler panic: %#v (%v)\n%s", r, r, stack)
}

// HandleCrash recovers a panic, if any, running every registered handler.
// Call it with defer at the top of per-connection dispatch.
func HandleCrash() {
	if r := recover(); r != nil {
		for _, fn := range PanicHandlers {
			fn(r)
		}
	}
}
