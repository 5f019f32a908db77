package utils

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// RunWithTimeout は指定されたタイムアウト時間内で fn を実行します
// タイムアウトを超えた場合は fn の完了を待たずにエラーを返します
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return fmt.Errorf("process timed out after %v: %w", timeout, ctx.Err())
	}
}

// GetStackWithError は、エラーとスタックトレースを組み合わせて返します
func GetStackWithError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w\nStack trace:\n%s", err, debug.Stack())
}
