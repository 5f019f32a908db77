package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/common/config"
	"github.com/mozila9822/website-VOY-sub000/internal/common/logging"
	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/common/utils"
	"github.com/mozila9822/website-VOY-sub000/internal/service/batch"
)

const (
	projectName = "voyage-reconciliation-batch"
)

func main() {
	// コマンドライン引数のパース
	timeout := flag.Duration("timeout", 5*time.Minute, "バッチ処理のタイムアウト時間")
	flag.Parse()

	// 最後の引数として渡されたタスクトークンを取得
	// ENV=LOCALの場合はタスクトークンを取得しない
	taskToken := "DUMMY_TASK_TOKEN"
	if os.Getenv("ENV") != "LOCAL" {
		taskToken = flag.Arg(flag.NArg() - 1)
		if taskToken == "" {
			logrus.Fatal("Task token is required")
		}
	}

	// 設定の読み込み
	cfg, err := config.LoadConfig(taskToken)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.IsLocal())

	// X-Ray設定
	if cfg.EnableTracing {
		if err := tracing.Configure("1.0.0"); err != nil {
			logger.Fatalf("Failed to configure default X-Ray settings: %v", err)
		}
	}

	// Step Functionsクライアントの初期化
	var sfnClient *sfn.Client
	var notifier batch.TaskNotifier
	if !cfg.IsLocal() {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			logger.Fatalf("Failed to load AWS config: %v\nStack trace:\n%s", err, debug.Stack())
		}
		sfnClient = sfn.NewFromConfig(awsCfg)
		notifier = sfnClient
	}

	// サービスの初期化
	service, err := batch.NewReconciliationBatchService(cfg, notifier, logger)
	if err != nil {
		logger.Fatalf("Failed to create service: %v\nStack trace:\n%s", err, debug.Stack())
	}
	defer service.Close()

	// コンテキストの作成
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// X-Rayセグメントの作成
	if cfg.EnableTracing {
		var seg *xray.Segment
		ctx, seg = xray.BeginSegment(ctx, projectName)
		defer seg.Close(nil)

		if err := seg.AddMetadata("timeout", timeout.String()); err != nil {
			logger.Warnf("Failed to add timeout metadata: %v", err)
		}
	}

	// シグナルハンドリングの設定
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// バッチ処理の実行
	errChan := make(chan error, 1)
	go func() {
		errChan <- utils.RunWithTimeout(ctx, *timeout, service.Run)
	}()

	// シグナルまたはエラーの待機
	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Errorf("Reconciliation batch failed: %v", err)

			// ローカル環境以外の場合のみStep Functionsのエラー通知を行う
			if sfnClient != nil {
				input := &sfn.SendTaskFailureInput{
					TaskToken: aws.String(taskToken),
					Error:     aws.String("ReconciliationBatchFailed"),
					Cause:     aws.String(err.Error()),
				}

				if _, err := sfnClient.SendTaskFailure(context.Background(), input); err != nil {
					logger.Errorf("Failed to send task failure: %v\nStack trace:\n%s", err, debug.Stack())
				}
			}

			service.Close()
			os.Exit(1)
		}
		logger.Info("Reconciliation batch completed successfully")
	}
}
