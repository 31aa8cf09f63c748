package groutine

import (
	"bytes"
	"context"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strconv"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// PanicHandler is invoked with the goroutine name and the recovered value
type PanicHandler func(name string, recovered any)

// Go starts a named goroutine. The name is attached as a pprof label and is
// available to fn through GetName. A panic in fn is recovered and logged
// with the standard logrus logger.
//
//	groutine.Go(ctx, "gatt-owner-aa:bb", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	GoWithHandler(parentCtx, name, nil, fn)
}

// GoWithHandler is Go with a custom panic handler. A nil handler logs.
func GoWithHandler(parentCtx context.Context, name string, onPanic PanicHandler, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	if onPanic == nil {
		onPanic = logPanic
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				onPanic(name, r)
			}
		}()
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

func logPanic(name string, recovered any) {
	logrus.WithFields(logrus.Fields{
		"goroutine_name": name,
		"panic":          recovered,
		"stack":          string(debug.Stack()),
	}).Error("Goroutine panicked")
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetGID returns the numeric goroutine ID (hacky, for debugging).
func GetGID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	gid, _ := strconv.ParseUint(string(b[:i]), 10, 64)
	return gid
}
