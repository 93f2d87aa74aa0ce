package rewardsbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Sharedvaluevending/revqr-rewards/internal/rewardsapi"
	"github.com/Sharedvaluevending/revqr-rewards/pkg/rewards"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// memStore is a mutex-guarded in-memory rewards.Store. WithTx serializes
// callers, which is enough to exercise the handlers.
type memStore struct {
	mu          sync.Mutex
	accounts    map[string]string
	entries     map[string][]rewards.LedgerEntry
	usage       map[string]int
	votes       []rewards.VoteRecord
	spins       []rewards.SpinRecord
	avatars     map[string]string
	redemptions map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		accounts:    map[string]string{},
		entries:     map[string][]rewards.LedgerEntry{},
		usage:       map[string]int{},
		avatars:     map[string]string{},
		redemptions: map[string]bool{},
	}
}

func (store *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore rewards.Store) error) error {
	return fn(ctx, store)
}

func (store *memStore) GetOrCreateAccountID(_ context.Context, account rewards.AccountID) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if existing, found := store.accounts[account.String()]; found {
		return existing, nil
	}
	accountID := fmt.Sprintf("acct-%d", len(store.accounts)+1)
	store.accounts[account.String()] = accountID
	return accountID, nil
}

func (store *memStore) InsertLedgerEntry(_ context.Context, entry rewards.LedgerEntry) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.entries[entry.AccountID] = append(store.entries[entry.AccountID], entry)
	return nil
}

func (store *memStore) SumBalance(_ context.Context, accountID string) (rewards.Coins, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var sum rewards.Coins
	for _, entry := range store.entries[accountID] {
		sum += entry.Signed()
	}
	return sum, nil
}

func (store *memStore) ListLedgerEntries(_ context.Context, accountID string, beforeUnixUTC int64, limit int) ([]rewards.LedgerEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	listed := make([]rewards.LedgerEntry, 0, limit)
	for _, entry := range store.entries[accountID] {
		if entry.CreatedUnixUTC < beforeUnixUTC && len(listed) < limit {
			listed = append(listed, entry)
		}
	}
	return listed, nil
}

func usageKey(accountID string, bucket rewards.UsageBucket, periodKey string) string {
	return accountID + "|" + bucket.String() + "|" + periodKey
}

func (store *memStore) CountVoteUsage(_ context.Context, accountID string, bucket rewards.UsageBucket, periodKey string) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.usage[usageKey(accountID, bucket, periodKey)], nil
}

func (store *memStore) IncrementVoteUsage(_ context.Context, accountID string, bucket rewards.UsageBucket, periodKey string, limit int) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	key := usageKey(accountID, bucket, periodKey)
	if store.usage[key] >= limit {
		return fmt.Errorf("usage %s: %w", key, rewards.ErrQuotaExhausted)
	}
	store.usage[key]++
	return nil
}

func (store *memStore) ExhaustVoteUsage(_ context.Context, accountID string, bucket rewards.UsageBucket, periodKey string, limit int) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.usage[usageKey(accountID, bucket, periodKey)] = limit
	return nil
}

func (store *memStore) InsertVoteRecord(_ context.Context, record rewards.VoteRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.votes = append(store.votes, record)
	return nil
}

func (store *memStore) InsertSpinRecord(_ context.Context, record rewards.SpinRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.spins = append(store.spins, record)
	return nil
}

func (store *memStore) GetEquippedAvatarID(_ context.Context, accountID string) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.avatars[accountID], nil
}

func (store *memStore) SetEquippedAvatarID(_ context.Context, accountID string, avatarID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.avatars[accountID] = avatarID
	return nil
}

func (store *memStore) InsertRedemption(_ context.Context, record rewards.RedemptionRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	key := record.PromotionID + "|" + record.Identity
	if store.redemptions[key] {
		return rewards.ErrAlreadyRedeemed
	}
	store.redemptions[key] = true
	return nil
}

type stubCatalog struct {
	avatars    map[string]rewards.AvatarConfig
	starterID  string
	wheels     map[string]rewards.Wheel
	promotions map[string]rewards.Promotion
}

func (catalog *stubCatalog) Avatar(avatarID string) (rewards.AvatarConfig, bool) {
	avatar, found := catalog.avatars[avatarID]
	return avatar, found
}

func (catalog *stubCatalog) StarterAvatarID() string { return catalog.starterID }

func (catalog *stubCatalog) Wheel(wheelID string) (rewards.Wheel, bool) {
	wheel, found := catalog.wheels[wheelID]
	return wheel, found
}

func (catalog *stubCatalog) Promotion(promotionID string) (rewards.Promotion, bool) {
	promotion, found := catalog.promotions[promotionID]
	return promotion, found
}

// referenceInstant is a Tuesday so no weekend perks interfere.
var referenceInstant = time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (*gin.Engine, *memStore) {
	t.Helper()
	store := newMemStore()
	winningWheel, err := rewards.NewWheel("classic", []rewards.SpinPrize{
		{Name: "50 coins", Weight: 1, CoinValue: 50},
	})
	if err != nil {
		t.Fatalf("new wheel: %v", err)
	}
	catalog := &stubCatalog{
		avatars: map[string]rewards.AvatarConfig{
			"starter":   {AvatarID: "starter", Name: "Starter"},
			"lucky-cat": {AvatarID: "lucky-cat", Name: "Lucky Cat"},
		},
		starterID: "starter",
		wheels:    map[string]rewards.Wheel{"classic": winningWheel},
		promotions: map[string]rewards.Promotion{
			"launch-week": {
				PromotionID: "launch-week",
				StartsOn:    time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
				EndsOn:      time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC),
			},
		},
	}
	clock := rewards.NewFixedClock(referenceInstant)
	service, err := rewards.NewService(store, catalog, clock, rewards.WithRandomSource(rewards.NewSeededSource(7)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler := &httpHandler{logger: zap.NewNop(), service: service, clock: clock}
	cfg := rewardsapi.Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	return setupRouter(cfg, handler), store
}

func performRequest(t *testing.T, router *gin.Engine, method string, path string, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	request := httptest.NewRequest(method, path, &payload)
	request.Header.Set("Content-Type", "application/json")
	if userID != "" {
		request.Header.Set(headerUserID, userID)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	decoded := map[string]any{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	decoded := decodeBody(t, recorder)
	errObject, ok := decoded["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object in %q", recorder.Body.String())
	}
	code, _ := errObject["code"].(string)
	return code
}

func TestHealthz(test *testing.T) {
	test.Parallel()
	router, _ := newTestRouter(test)
	recorder := performRequest(test, router, http.MethodGet, "/healthz", "", nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestVoteTierProgression(test *testing.T) {
	test.Parallel()
	router, _ := newTestRouter(test)
	vote := func() *httptest.ResponseRecorder {
		return performRequest(test, router, http.MethodPost, "/api/votes", "alice", map[string]any{
			"item_id":     "snack-1",
			"direction":   "in",
			"campaign_id": "spring",
		})
	}

	first := vote()
	if first.Code != http.StatusOK {
		test.Fatalf("first vote: expected 200, got %d (%s)", first.Code, first.Body.String())
	}
	body := decodeBody(test, first)
	if body["method"] != "free" || body["payout"] != float64(30) {
		test.Fatalf("first vote: expected free/30, got %v", body)
	}

	for round := 0; round < 2; round++ {
		response := vote()
		if response.Code != http.StatusOK {
			test.Fatalf("bonus vote %d: expected 200, got %d", round, response.Code)
		}
		body = decodeBody(test, response)
		if body["method"] != "bonus" || body["payout"] != float64(5) {
			test.Fatalf("bonus vote %d: expected bonus/5, got %v", round, body)
		}
	}

	// Balance is 40 now, short of the premium cost, so the next auto vote fails.
	exhausted := vote()
	if exhausted.Code != http.StatusTooManyRequests {
		test.Fatalf("expected 429, got %d (%s)", exhausted.Code, exhausted.Body.String())
	}
	if code := errorCode(test, exhausted); code != "no_free_votes" {
		test.Fatalf("expected no_free_votes, got %q", code)
	}
}

func TestVoteQuotaIsPerIdentity(test *testing.T) {
	test.Parallel()
	router, _ := newTestRouter(test)
	for _, userID := range []string{"alice", "bob"} {
		response := performRequest(test, router, http.MethodPost, "/api/votes", userID, map[string]any{
			"item_id":    "snack-1",
			"direction":  "in",
			"machine_id": "m-7",
		})
		if response.Code != http.StatusOK {
			test.Fatalf("vote by %s: expected 200, got %d", userID, response.Code)
		}
		if body := decodeBody(test, response); body["method"] != "free" {
			test.Fatalf("vote by %s: expected free tier, got %v", userID, body)
		}
	}
}

func TestVoteRejectsAmbiguousScope(test *testing.T) {
	test.Parallel()
	router, _ := newTestRouter(test)
	response := performRequest(test, router, http.MethodPost, "/api/votes", "alice", map[string]any{
		"item_id":     "snack-1",
		"direction":   "in",
		"campaign_id": "spring",
		"machine_id":  "m-7",
	})
	if response.Code != http.StatusBadRequest {
		test.Fatalf("expected 400, got %d", response.Code)
	}
	if code := errorCode(test, response); code != "invalid_payload" {
		test.Fatalf("expected invalid_payload, got %q", code)
	}
}

func TestSpinCreditsPrize(test *testing.T) {
	test.Parallel()
	router, _ := newTestRouter(test)
	response := performRequest(test, router, http.MethodPost, "/api/spins", "alice", map[string]any{"wheel_id": "classic"})
	if response.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d (%s)", response.Code, response.Body.String())
	}
	body := decodeBody(test, response)
	if body["coin_delta"] != float64(50) {
		test.Fatalf("expected coin_delta 50, got %v", body)
	}

	wallet := performRequest(test, router, http.MethodGet, "/api/wallet", "alice", nil)
	if wallet.Code != http.StatusOK {
		test.Fatalf("wallet: expected 200, got %d", wallet.Code)
	}
	if body := decodeBody(test, wallet); body["balance"] != float64(50) {
		test.Fatalf("expected balance 50, got %v", body)
	}
}

func TestSpinUnknownWheel(test *testing.T) {
	test.Parallel()
	router, _ := newTestRouter(test)
	response := performRequest(test, router, http.MethodPost, "/api/spins", "alice", map[string]any{"wheel_id": "ghost"})
	if response.Code != http.StatusNotFound {
		test.Fatalf("expected 404, got %d", response.Code)
	}
	if code := errorCode(test, response); code != "unknown_wheel" {
		test.Fatalf("expected unknown_wheel, got %q", code)
	}
}

func TestRedemptionIsOncePerIdentity(test *testing.T) {
	test.Parallel()
	router, _ := newTestRouter(test)
	redeem := func(userID string) *httptest.ResponseRecorder {
		return performRequest(test, router, http.MethodPost, "/api/redemptions", userID, map[string]any{"promotion_id": "launch-week"})
	}

	if response := redeem("alice"); response.Code != http.StatusOK {
		test.Fatalf("first redemption: expected 200, got %d", response.Code)
	}
	second := redeem("alice")
	if second.Code != http.StatusConflict {
		test.Fatalf("second redemption: expected 409, got %d", second.Code)
	}
	if code := errorCode(test, second); code != "already_redeemed" {
		test.Fatalf("expected already_redeemed, got %q", code)
	}
	if response := redeem("bob"); response.Code != http.StatusOK {
		test.Fatalf("other identity: expected 200, got %d", response.Code)
	}
}

func TestRedemptionUnknownPromotion(test *testing.T) {
	test.Parallel()
	router, _ := newTestRouter(test)
	response := performRequest(test, router, http.MethodPost, "/api/redemptions", "alice", map[string]any{"promotion_id": "ghost"})
	if response.Code != http.StatusNotFound {
		test.Fatalf("expected 404, got %d", response.Code)
	}
}

func TestAvatarEquipAndReport(test *testing.T) {
	test.Parallel()
	router, _ := newTestRouter(test)

	initial := performRequest(test, router, http.MethodGet, "/api/avatar", "alice", nil)
	if initial.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d", initial.Code)
	}
	if body := decodeBody(test, initial); body["avatar_id"] != "starter" {
		test.Fatalf("expected starter avatar, got %v", body)
	}

	unknown := performRequest(test, router, http.MethodPost, "/api/avatar", "alice", map[string]any{"avatar_id": "ghost"})
	if unknown.Code != http.StatusNotFound {
		test.Fatalf("expected 404, got %d", unknown.Code)
	}

	equip := performRequest(test, router, http.MethodPost, "/api/avatar", "alice", map[string]any{"avatar_id": "lucky-cat"})
	if equip.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d", equip.Code)
	}
	after := performRequest(test, router, http.MethodGet, "/api/avatar", "alice", nil)
	if body := decodeBody(test, after); body["avatar_id"] != "lucky-cat" {
		test.Fatalf("expected lucky-cat, got %v", body)
	}
}

func TestGuestIdentityFallsBackToClientIP(test *testing.T) {
	test.Parallel()
	router, store := newTestRouter(test)
	response := performRequest(test, router, http.MethodPost, "/api/votes", "", map[string]any{
		"item_id":    "snack-1",
		"direction":  "out",
		"machine_id": "m-7",
	})
	if response.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d (%s)", response.Code, response.Body.String())
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for external := range store.accounts {
		if external[:3] != "ip:" {
			test.Fatalf("expected ip-derived identity, got %q", external)
		}
	}
}
