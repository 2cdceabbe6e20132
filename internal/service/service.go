package service

import (
	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/punchamoorthee/refledger/internal/events"
	"go.uber.org/zap"
)

// Notifier receives events after their transaction commits.
type Notifier interface {
	Notify(e events.Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(events.Event) {}

// LedgerService is the entry point for the HTTP layer: request lifecycle,
// admin adjustments, account provisioning and owner-scoped reads.
type LedgerService struct {
	store       domain.Store
	accounts    AccountStore
	distributor *Distributor
	notifier    Notifier
	logger      *zap.Logger
}

func NewLedgerService(store domain.Store, distributor *Distributor, notifier Notifier, logger *zap.Logger) *LedgerService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &LedgerService{
		store:       store,
		distributor: distributor,
		notifier:    notifier,
		logger:      logger,
	}
}
