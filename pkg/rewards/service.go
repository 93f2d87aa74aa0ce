package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service contains the rewards-economy domain logic over a Store and the
// read-only Catalog.
type Service struct {
	store    Store
	catalog  Catalog
	clock    Clock
	location *time.Location
	random   RandomSource
	logger   OperationLogger
}

// NewService wires a Service.
func NewService(store Store, catalog Catalog, clock Clock, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog dependency is nil", ErrInvalidServiceConfig)
	}
	if clock == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:    store,
		catalog:  catalog,
		clock:    clock,
		location: time.UTC,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.random == nil {
		service.random = NewSeededSource(clock.Now().UnixNano())
	}
	return service, nil
}

// Balance returns the account's current coin balance: the sum of all
// credits minus all debits.
func (service *Service) Balance(ctx context.Context, account AccountID) (Coins, error) {
	accountID, err := service.store.GetOrCreateAccountID(ctx, account)
	if err != nil {
		return 0, err
	}
	return service.store.SumBalance(ctx, accountID)
}

// Entries lists ledger entries for an account before a cutoff time.
func (service *Service) Entries(ctx context.Context, account AccountID, beforeUnixUTC int64, limit int) ([]LedgerEntry, error) {
	accountID, err := service.store.GetOrCreateAccountID(ctx, account)
	if err != nil {
		return nil, err
	}
	return service.store.ListLedgerEntries(ctx, accountID, beforeUnixUTC, limit)
}

// Credit appends a credit entry. Credits are never rejected for balance
// reasons.
func (service *Service) Credit(ctx context.Context, account AccountID, amount Coins, category EntryCategory, reason string, source ...EntrySource) (LedgerEntry, error) {
	var entry LedgerEntry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		entry, err = service.appendEntry(ctx, transactionStore, account, DirectionCredit, amount, category, reason, "", firstSource(source))
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCredit,
		Account:   account,
		Amount:    amount,
		Detail:    category.String(),
		Error:     operationError,
	})
	return entry, operationError
}

// Debit appends a debit entry, failing with ErrInsufficientBalance when the
// amount exceeds the balance read inside the same transaction. No partial
// debit is ever written.
func (service *Service) Debit(ctx context.Context, account AccountID, amount Coins, category EntryCategory, reason string, source ...EntrySource) (LedgerEntry, error) {
	var entry LedgerEntry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		accountID, err := transactionStore.GetOrCreateAccountID(ctx, account)
		if err != nil {
			return err
		}
		balance, err := transactionStore.SumBalance(ctx, accountID)
		if err != nil {
			return err
		}
		if amount > balance {
			return ErrInsufficientBalance
		}
		entry, err = service.appendEntryForAccount(ctx, transactionStore, accountID, DirectionDebit, amount, category, reason, "", firstSource(source))
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDebit,
		Account:   account,
		Amount:    amount,
		Detail:    category.String(),
		Error:     operationError,
	})
	return entry, operationError
}

// EntrySource names the entity that caused a ledger entry.
type EntrySource struct {
	Type string
	ID   string
}

func firstSource(sources []EntrySource) EntrySource {
	if len(sources) == 0 {
		return EntrySource{}
	}
	return sources[0]
}

func (service *Service) appendEntry(ctx context.Context, store Store, account AccountID, direction EntryDirection, amount Coins, category EntryCategory, reason string, metadataJSON string, source EntrySource) (LedgerEntry, error) {
	accountID, err := store.GetOrCreateAccountID(ctx, account)
	if err != nil {
		return LedgerEntry{}, err
	}
	return service.appendEntryForAccount(ctx, store, accountID, direction, amount, category, reason, metadataJSON, source)
}

func (service *Service) appendEntryForAccount(ctx context.Context, store Store, accountID string, direction EntryDirection, amount Coins, category EntryCategory, reason string, metadataJSON string, source EntrySource) (LedgerEntry, error) {
	if _, err := NewPositiveCoins(amount.Int64()); err != nil {
		return LedgerEntry{}, err
	}
	if _, err := ParseEntryCategory(category.String()); err != nil {
		return LedgerEntry{}, err
	}
	entry := LedgerEntry{
		EntryID:        uuid.NewString(),
		AccountID:      accountID,
		Direction:      direction,
		Category:       category,
		Amount:         amount,
		Reason:         reason,
		SourceType:     source.Type,
		SourceID:       source.ID,
		MetadataJSON:   metadataJSON,
		CreatedUnixUTC: service.clock.Now().Unix(),
	}
	if err := store.InsertLedgerEntry(ctx, entry); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
