package goroutine

import (
	"context"
	"log"
	"runtime/debug"

	"github.com/abdikee/fejrul-islam-sub000/internal/logger"
)

// recoverAndLog пишет panic в общий логгер; до инициализации логгера
// падаем обратно на стандартный log.
func recoverAndLog() {
	if r := recover(); r != nil {
		if logger.Log != nil {
			logger.Log.Errorf("panic в горутине: %v\n%s", r, debug.Stack())
		} else {
			log.Printf("panic в горутине: %v\n%s", r, debug.Stack())
		}
	}
}

// SafeGo запускает горутину с обработкой panic.
func SafeGo(fn func()) {
	go func() {
		defer recoverAndLog()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer recoverAndLog()
		fn(ctx)
	}()
}
