package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/common/config"
	"github.com/mozila9822/website-VOY-sub000/internal/common/database"
	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/common/utils"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
	"github.com/mozila9822/website-VOY-sub000/internal/repository"
)

// TaskNotifier はStep Functionsのタスク結果を通知するクライアントです
type TaskNotifier interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
}

// ReconciliationBatchService は支払い済みで予約が記録されなかった取引を照合担当に引き渡します
type ReconciliationBatchService struct {
	db        *database.DB
	reconRepo repository.ReconciliationRepository
	notifier  TaskNotifier
	cfg       *config.Config
	logger    logrus.FieldLogger
}

// NewReconciliationBatchService は新しいReconciliationBatchServiceを作成します
func NewReconciliationBatchService(cfg *config.Config, notifier TaskNotifier, logger logrus.FieldLogger) (*ReconciliationBatchService, error) {
	db, err := database.NewDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	return &ReconciliationBatchService{
		db:        db,
		reconRepo: repository.NewReconciliationRepository(repository.NewDB(db.DB)),
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Close は終了処理を行います
func (s *ReconciliationBatchService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Run は未報告の照合レコードを報告済みにしてステートマシンに渡します
// 通知に失敗した場合は報告済みにしません
func (s *ReconciliationBatchService) Run(ctx context.Context) (err error) {
	ctx, span := tracing.Start(ctx, "ReconciliationBatchService.Run")
	defer func() { span.End(err) }()

	startTime := time.Now()

	records, err := s.reconRepo.ListUnreported(ctx)
	if err != nil {
		return utils.GetStackWithError(fmt.Errorf("failed to list unreported reconciliations: %w", err))
	}
	s.logger.Infof("Found %d unreported reconciliation records", len(records))

	ids := make([]string, len(records))
	notices := make([]model.ReconciliationNotice, len(records))
	for i, r := range records {
		ids[i] = r.ID
		notices[i] = r.ToNotice()
	}

	tx, err := s.reconRepo.BeginTx(ctx)
	if err != nil {
		return utils.GetStackWithError(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := s.reconRepo.MarkReported(ctx, tx, ids); err != nil {
		return utils.GetStackWithError(repository.Rollback(tx, err))
	}

	if err := s.sendTaskSuccess(ctx, notices); err != nil {
		return utils.GetStackWithError(repository.Rollback(tx, fmt.Errorf("failed to send task success: %w", err)))
	}

	if err := tx.Commit(); err != nil {
		// 通知済みのため次回のバッチで重複して通知される
		return utils.GetStackWithError(fmt.Errorf("failed to commit reported reconciliations: %w", err))
	}

	duration := time.Since(startTime)
	span.AddMetadata("duration", duration.String())
	span.AddMetadata("records", len(records))

	s.logger.WithFields(logrus.Fields{
		"records":  len(records),
		"duration": duration.String(),
	}).Info("Reconciliation batch process completed successfully")
	return nil
}

// sendTaskSuccess は、Step Functionsのタスク成功を通知し、照合依頼を返却します
func (s *ReconciliationBatchService) sendTaskSuccess(ctx context.Context, notices []model.ReconciliationNotice) error {
	// ローカルの場合はStep Functionsの処理をスキップ
	if s.cfg.IsLocal() || s.notifier == nil {
		s.logger.Info("Local environment detected. Skipping Step Functions task success notification")
		return nil
	}

	output, err := json.Marshal(map[string]any{
		"reconciliations": notices,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal reconciliations: %w", err)
	}

	taskToken := s.cfg.SFN.TaskToken
	if taskToken == "" {
		return fmt.Errorf("SFN_TASK_TOKEN is not set in config")
	}

	input := &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(taskToken),
		Output:    aws.String(string(output)),
	}

	if _, err := s.notifier.SendTaskSuccess(ctx, input); err != nil {
		return err
	}

	s.logger.WithField("reconciliations", len(notices)).Info("Successfully sent task success")
	return nil
}
