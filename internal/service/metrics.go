package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_request_transitions_total",
		Help: "Deposit and withdrawal requests moved to a terminal status",
	}, []string{"kind", "status"})

	balanceAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_balance_adjustments_total",
		Help: "Balance adjustments written with a ledger entry, by entry kind",
	}, []string{"kind"})

	commissionPayouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_commission_payouts_total",
		Help: "Referral commissions credited, by level",
	}, []string{"level"})

	commissionPaidAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_commission_paid_amount_total",
		Help: "Sum of referral commissions credited",
	})

	commissionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_commission_failures_total",
		Help: "Commission walks aborted partway",
	})
)
