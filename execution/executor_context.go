package execution

import (
	"context"

	"github.com/go-kit/log"
)

// ExecutorContext holds the state shared by every executor of one task run.
type ExecutorContext struct {
	ctx    context.Context
	logger log.Logger
}

func NewExecutorContext(ctx context.Context, logger log.Logger) *ExecutorContext {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &ExecutorContext{
		ctx:    ctx,
		logger: logger,
	}
}

// Context is cancelled when the task is closed or its caller gives up.
func (ctx *ExecutorContext) Context() context.Context {
	return ctx.ctx
}

func (ctx *ExecutorContext) Logger() log.Logger {
	return ctx.logger
}
