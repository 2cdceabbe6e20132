package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	findings = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledger_reconcile_findings",
		Help: "Inconsistencies found by the last reconciliation pass, by check",
	}, []string{"check"})

	pendingHoldAmount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_pending_withdrawal_hold_amount",
		Help: "Funds reserved by withdrawals awaiting a decision",
	})

	commissionMinted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_commission_minted_window",
		Help: "Referral commission credited during the audit window",
	})

	lastRun = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_reconcile_last_run_timestamp_seconds",
		Help: "Unix time of the last completed reconciliation pass",
	})
)

// Source is the read-only query surface the auditor needs.
type Source interface {
	EntryArithmeticViolations(ctx context.Context) ([]int64, error)
	BalanceDrifts(ctx context.Context) ([]domain.BalanceDrift, error)
	UnpairedDeposits(ctx context.Context) ([]int64, error)
	PendingHolds(ctx context.Context) (domain.HoldSummary, error)
	CommissionMintedSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// Auditor cross-checks balances against the ledger. It never writes.
type Auditor struct {
	src    Source
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewAuditor(src Source, window time.Duration, logger *zap.Logger) *Auditor {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Auditor{src: src, window: window, logger: logger, now: time.Now}
}

func (a *Auditor) Run(ctx context.Context) (*domain.AuditReport, error) {
	report := &domain.AuditReport{StartedAt: a.now().UTC()}
	var err error

	if report.ArithmeticViolations, err = a.src.EntryArithmeticViolations(ctx); err != nil {
		return nil, err
	}
	if report.Drifts, err = a.src.BalanceDrifts(ctx); err != nil {
		return nil, err
	}
	if report.UnpairedDeposits, err = a.src.UnpairedDeposits(ctx); err != nil {
		return nil, err
	}
	if report.PendingHolds, err = a.src.PendingHolds(ctx); err != nil {
		return nil, err
	}
	if report.CommissionMintedWindow, err = a.src.CommissionMintedSince(ctx, report.StartedAt.Add(-a.window)); err != nil {
		return nil, err
	}

	findings.WithLabelValues("entry_arithmetic").Set(float64(len(report.ArithmeticViolations)))
	findings.WithLabelValues("balance_drift").Set(float64(len(report.Drifts)))
	findings.WithLabelValues("unpaired_deposit").Set(float64(len(report.UnpairedDeposits)))
	pendingHoldAmount.Set(report.PendingHolds.Amount.InexactFloat64())
	commissionMinted.Set(report.CommissionMintedWindow.InexactFloat64())
	lastRun.SetToCurrentTime()

	return report, nil
}

// RunAndLog is the cron entry point.
func (a *Auditor) RunAndLog() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a.logger.Info("starting reconciliation pass")
	report, err := a.Run(ctx)
	if err != nil {
		a.logger.Error("reconciliation pass failed", zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.Int("arithmetic_violations", len(report.ArithmeticViolations)),
		zap.Int("balance_drifts", len(report.Drifts)),
		zap.Int("unpaired_deposits", len(report.UnpairedDeposits)),
		zap.Int64("pending_holds", report.PendingHolds.Count),
		zap.String("pending_hold_amount", report.PendingHolds.Amount.String()),
		zap.String("commission_minted", report.CommissionMintedWindow.String()),
	}
	if report.Clean() {
		a.logger.Info("reconciliation pass clean", fields...)
		return
	}
	for _, d := range report.Drifts {
		a.logger.Warn("balance drift",
			zap.Int64("account_id", d.AccountID),
			zap.String("balance", d.Balance.String()),
			zap.Int64("last_entry_id", d.LastEntryID),
			zap.String("snapshot_after", d.SnapshotAfter.String()),
		)
	}
	a.logger.Warn(fmt.Sprintf("reconciliation found %d inconsistencies", report.FindingCount()), fields...)
}
