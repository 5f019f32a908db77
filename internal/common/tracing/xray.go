package tracing

import (
	"context"
	"os"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/sirupsen/logrus"
)

// Span はX-Rayのサブセグメントを扱うラッパーです
// 親セグメントがないコンテキストではサブセグメントが作られないため、nilでも安全に扱えるようにしています
type Span struct {
	seg *xray.Segment
}

// Start はサブセグメントを開始します
func Start(ctx context.Context, name string) (context.Context, *Span) {
	if xray.GetSegment(ctx) == nil {
		return ctx, &Span{}
	}
	ctx, seg := xray.BeginSubsegment(ctx, name)
	return ctx, &Span{seg: seg}
}

// AddMetadata はサブセグメントにメタデータを追加します
func (s *Span) AddMetadata(key string, value interface{}) {
	if s == nil || s.seg == nil {
		return
	}
	if err := s.seg.AddMetadata(key, value); err != nil {
		logrus.Debugf("Failed to add %s metadata: %v", key, err)
	}
}

// End はサブセグメントを終了します。err が nil でなければエラーとして記録します
func (s *Span) End(err error) {
	if s == nil || s.seg == nil {
		return
	}
	s.seg.Close(err)
}

// Configure はX-Rayデーモンへの送信を設定します
// 設定に失敗した場合はデフォルトの設定を使用します
func Configure(serviceVersion string) error {
	if err := xray.Configure(xray.Config{
		DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
		ServiceVersion: serviceVersion,
	}); err != nil {
		logrus.Warnf("Failed to configure X-Ray: %v", err)
		if configErr := xray.Configure(xray.Config{}); configErr != nil {
			return configErr
		}
	}
	return os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
}
