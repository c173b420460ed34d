package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/usecase/settlement"
	"github.com/go-co-op/gocron/v2"
)

const reconcileJobName = "reconcile"

type BackgroundTasks struct {
	SettlementUsecase settlement.SettlementUsecase
	ReconcileInterval time.Duration
	// Таймаут одного прохода сверки, по умолчанию равен интервалу
	ReconcileTimeout time.Duration
}

func NewBackgroundTasks(settlementUC settlement.SettlementUsecase, reconcileInterval time.Duration) *BackgroundTasks {
	return &BackgroundTasks{
		SettlementUsecase: settlementUC,
		ReconcileInterval: reconcileInterval,
		ReconcileTimeout:  reconcileInterval,
	}
}

// StartAll schedules the periodic jobs and stops them when ctx is done.
// Runs of the same job never overlap.
func (bt *BackgroundTasks) StartAll(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(bt.ReconcileInterval),
		gocron.NewTask(func() { bt.reconcile(ctx) }),
		gocron.WithName(reconcileJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("failed to schedule %s: %w", reconcileJobName, err)
	}

	sched.Start()
	slog.Info("background tasks started", "reconcile_interval", bt.ReconcileInterval.String())

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			slog.Error("failed to stop scheduler", "error", err.Error())
		}
	}()
	return nil
}

func (bt *BackgroundTasks) reconcile(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	timeout := bt.ReconcileTimeout
	if timeout <= 0 {
		timeout = bt.ReconcileInterval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := bt.SettlementUsecase.Reconcile(runCtx); err != nil {
		slog.Error("scheduled reconciliation failed", "error", err.Error())
	}
}
