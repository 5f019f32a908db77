package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunWithTimeout(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		fn      func(ctx context.Context) error
		wantErr error
	}{
		{
			name: "時間内に完了",
			fn:   func(ctx context.Context) error { return nil },
		},
		{
			name:    "処理のエラーをそのまま返す",
			fn:      func(ctx context.Context) error { return errBoom },
			wantErr: errBoom,
		},
		{
			name: "タイムアウト",
			fn: func(ctx context.Context) error {
				<-ctx.Done()
				time.Sleep(10 * time.Millisecond)
				return nil
			},
			wantErr: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RunWithTimeout(context.Background(), 20*time.Millisecond, tt.fn)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetStackWithError(t *testing.T) {
	if GetStackWithError(nil) != nil {
		t.Fatal("nil error must stay nil")
	}
	base := errors.New("failed")
	if err := GetStackWithError(base); !errors.Is(err, base) {
		t.Fatalf("wrapped error must unwrap to the original, got %v", err)
	}
}
