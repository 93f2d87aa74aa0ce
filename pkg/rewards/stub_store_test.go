package rewards

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// stubStore is an in-memory Store for service tests. WithTx runs the
// closure against the same store; the mutex guards every map so concurrent
// callers observe atomic claims the way the SQL stores provide them.
type stubStore struct {
	txMu        sync.Mutex
	mu          sync.Mutex
	accounts    map[string]string
	entries     []LedgerEntry
	usage       map[string]int
	votes       []VoteRecord
	spins       []SpinRecord
	avatars     map[string]string
	redemptions map[string]bool

	insertEntryErr error
	sumBalanceErr  error
}

func newStubStore() *stubStore {
	return &stubStore{
		accounts:    map[string]string{},
		usage:       map[string]int{},
		avatars:     map[string]string{},
		redemptions: map[string]bool{},
	}
}

// WithTx serializes transactions so a balance read and the entry that
// depends on it cannot interleave with another caller, matching the
// isolation the SQL stores provide.
func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txMu.Lock()
	defer store.txMu.Unlock()
	return fn(ctx, store)
}

func (store *stubStore) GetOrCreateAccountID(_ context.Context, account AccountID) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if existing, found := store.accounts[account.String()]; found {
		return existing, nil
	}
	accountID := fmt.Sprintf("acct-%d", len(store.accounts)+1)
	store.accounts[account.String()] = accountID
	return accountID, nil
}

func (store *stubStore) InsertLedgerEntry(_ context.Context, entry LedgerEntry) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.insertEntryErr != nil {
		return store.insertEntryErr
	}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) SumBalance(_ context.Context, accountID string) (Coins, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.sumBalanceErr != nil {
		return 0, store.sumBalanceErr
	}
	return store.balanceLocked(accountID), nil
}

func (store *stubStore) balanceLocked(accountID string) Coins {
	var sum Coins
	for _, entry := range store.entries {
		if entry.AccountID == accountID {
			sum += entry.Signed()
		}
	}
	return sum
}

func (store *stubStore) ListLedgerEntries(_ context.Context, accountID string, beforeUnixUTC int64, limit int) ([]LedgerEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	listed := make([]LedgerEntry, 0, limit)
	for _, entry := range store.entries {
		if entry.AccountID == accountID && entry.CreatedUnixUTC < beforeUnixUTC && len(listed) < limit {
			listed = append(listed, entry)
		}
	}
	return listed, nil
}

func usageKey(accountID string, bucket UsageBucket, periodKey string) string {
	return accountID + "|" + bucket.String() + "|" + periodKey
}

func (store *stubStore) CountVoteUsage(_ context.Context, accountID string, bucket UsageBucket, periodKey string) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.usage[usageKey(accountID, bucket, periodKey)], nil
}

func (store *stubStore) IncrementVoteUsage(_ context.Context, accountID string, bucket UsageBucket, periodKey string, limit int) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	key := usageKey(accountID, bucket, periodKey)
	if store.usage[key] >= limit {
		return fmt.Errorf("usage %s: %w", key, ErrQuotaExhausted)
	}
	store.usage[key]++
	return nil
}

func (store *stubStore) ExhaustVoteUsage(_ context.Context, accountID string, bucket UsageBucket, periodKey string, limit int) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.usage[usageKey(accountID, bucket, periodKey)] = limit
	return nil
}

func (store *stubStore) InsertVoteRecord(_ context.Context, record VoteRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.votes = append(store.votes, record)
	return nil
}

func (store *stubStore) InsertSpinRecord(_ context.Context, record SpinRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.spins = append(store.spins, record)
	return nil
}

func (store *stubStore) GetEquippedAvatarID(_ context.Context, accountID string) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.avatars[accountID], nil
}

func (store *stubStore) SetEquippedAvatarID(_ context.Context, accountID string, avatarID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.avatars[accountID] = avatarID
	return nil
}

func (store *stubStore) InsertRedemption(_ context.Context, record RedemptionRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	key := record.PromotionID + "|" + record.Identity
	if store.redemptions[key] {
		return ErrAlreadyRedeemed
	}
	store.redemptions[key] = true
	return nil
}

// seedBalance appends a single adjustment credit so an account starts with
// the given balance.
func seedBalance(test *testing.T, service *Service, account AccountID, amount Coins) {
	test.Helper()
	if amount == 0 {
		return
	}
	if _, err := service.Credit(context.Background(), account, amount, CategoryAdjustment, "seed"); err != nil {
		test.Fatalf("seed balance: %v", err)
	}
}

type stubCatalog struct {
	avatars    map[string]AvatarConfig
	starterID  string
	wheels     map[string]Wheel
	promotions map[string]Promotion
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		avatars:    map[string]AvatarConfig{},
		wheels:     map[string]Wheel{},
		promotions: map[string]Promotion{},
	}
}

func (catalog *stubCatalog) Avatar(avatarID string) (AvatarConfig, bool) {
	avatar, found := catalog.avatars[avatarID]
	return avatar, found
}

func (catalog *stubCatalog) StarterAvatarID() string { return catalog.starterID }

func (catalog *stubCatalog) Wheel(wheelID string) (Wheel, bool) {
	wheel, found := catalog.wheels[wheelID]
	return wheel, found
}

func (catalog *stubCatalog) Promotion(promotionID string) (Promotion, bool) {
	promotion, found := catalog.promotions[promotionID]
	return promotion, found
}

// tuesdayNoon is a weekday instant clear of weekend perks and period
// boundaries.
var tuesdayNoon = time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)

func mustNewService(test *testing.T, store Store, catalog Catalog, clock Clock, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, catalog, clock, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	account, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id %q: %v", raw, err)
	}
	return account
}

func mustPromotionID(test *testing.T, raw string) PromotionID {
	test.Helper()
	promotion, err := NewPromotionID(raw)
	if err != nil {
		test.Fatalf("promotion id %q: %v", raw, err)
	}
	return promotion
}

func mustIdentityKey(test *testing.T, raw string) IdentityKey {
	test.Helper()
	identity, err := NewIdentityKey(raw)
	if err != nil {
		test.Fatalf("identity key %q: %v", raw, err)
	}
	return identity
}

func mustCampaignScope(test *testing.T, campaignID string) VoteScope {
	test.Helper()
	scope, err := NewCampaignScope(campaignID)
	if err != nil {
		test.Fatalf("campaign scope %q: %v", campaignID, err)
	}
	return scope
}

func mustWheel(test *testing.T, wheelID string, prizes []SpinPrize) Wheel {
	test.Helper()
	wheel, err := NewWheel(wheelID, prizes)
	if err != nil {
		test.Fatalf("wheel %q: %v", wheelID, err)
	}
	return wheel
}
