package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResolveQuota reports the account's remaining voting capacity at this
// moment. Pure read: nothing is consumed.
func (service *Service) ResolveQuota(ctx context.Context, account AccountID) (QuotaSnapshot, error) {
	accountID, err := service.store.GetOrCreateAccountID(ctx, account)
	if err != nil {
		return QuotaSnapshot{}, err
	}
	return service.resolveQuota(ctx, service.store, accountID, service.clock.Now())
}

func (service *Service) resolveQuota(ctx context.Context, store Store, accountID string, now time.Time) (QuotaSnapshot, error) {
	freeUsed, err := store.CountVoteUsage(ctx, accountID, BucketDailyFree, DayKey(now))
	if err != nil {
		return QuotaSnapshot{}, err
	}
	bonusUsed, err := store.CountVoteUsage(ctx, accountID, BucketWeeklyBonus, WeekKey(now))
	if err != nil {
		return QuotaSnapshot{}, err
	}
	balance, err := store.SumBalance(ctx, accountID)
	if err != nil {
		return QuotaSnapshot{}, err
	}
	return QuotaSnapshot{
		DailyFreeRemaining:    clampRemaining(DailyFreeVoteLimit - freeUsed),
		WeeklyBonusRemaining:  clampRemaining(WeeklyBonusVoteLimit - bonusUsed),
		PremiumVotesAvailable: int(balance / PremiumVoteCost),
	}, nil
}

func clampRemaining(remaining int) int {
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CastVote consumes a quota slot, applies the perk-adjusted payout, and
// writes the VoteRecord together with its ledger entry in one transaction.
// When the consume step fails nothing is written.
//
// The "auto" method selects tiers in fixed priority order: daily-free,
// then weekly-bonus, then premium. A participant with a free vote left is
// never charged coins.
func (service *Service) CastVote(ctx context.Context, account AccountID, itemID string, direction VoteDirection, scope VoteScope, requested VoteMethod) (VoteResult, error) {
	if itemID == "" {
		return VoteResult{}, fmt.Errorf("%w: empty item id", ErrInvalidVote)
	}
	if _, err := ParseVoteDirection(direction.String()); err != nil {
		return VoteResult{}, err
	}
	if scope.ID() == "" {
		return VoteResult{}, fmt.Errorf("%w: missing scope", ErrInvalidVoteScope)
	}
	if _, err := ParseVoteMethod(requested.String()); err != nil {
		return VoteResult{}, err
	}

	var result VoteResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		accountID, err := transactionStore.GetOrCreateAccountID(ctx, account)
		if err != nil {
			return err
		}
		now := service.clock.Now()
		method, err := service.consumeQuota(ctx, transactionStore, accountID, requested, now)
		if err != nil {
			return err
		}

		voteID := uuid.NewString()
		var payout VotePayout
		var coinDelta Coins
		switch method {
		case MethodFree, MethodBonus:
			base := FreeVotePayout
			if method == MethodBonus {
				base = BonusVotePayout
			}
			perks, err := service.activePerksForAccount(ctx, transactionStore, accountID, now)
			if err != nil {
				return err
			}
			payout = service.ApplyToVotePayout(base, 0, perks, now)
			_, err = service.appendEntryForAccount(ctx, transactionStore, accountID, DirectionCredit, payout.Total(),
				CategoryVoting, fmt.Sprintf("%s vote payout", method), perksFiredJSON(payout.Fired), EntrySource{Type: sourceTypeVote, ID: voteID})
			if err != nil {
				return err
			}
			coinDelta = payout.Total()
		case MethodPremium:
			balance, err := transactionStore.SumBalance(ctx, accountID)
			if err != nil {
				return err
			}
			if balance < PremiumVoteCost {
				return ErrInsufficientCoins
			}
			_, err = service.appendEntryForAccount(ctx, transactionStore, accountID, DirectionDebit, PremiumVoteCost,
				CategoryVoting, "premium vote", "", EntrySource{Type: sourceTypeVote, ID: voteID})
			if err != nil {
				return err
			}
			coinDelta = -PremiumVoteCost
		}

		record := VoteRecord{
			VoteID:         voteID,
			AccountID:      accountID,
			ItemID:         itemID,
			Direction:      direction,
			ScopeKind:      scope.Kind(),
			ScopeID:        scope.ID(),
			Method:         method,
			CreatedUnixUTC: now.Unix(),
		}
		if err := transactionStore.InsertVoteRecord(ctx, record); err != nil {
			return err
		}
		result = VoteResult{
			VoteID:     voteID,
			Method:     method,
			Payout:     payout.Total(),
			CoinDelta:  coinDelta,
			PerksFired: payout.Fired,
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCastVote,
		Account:   account,
		Amount:    result.CoinDelta,
		Detail:    result.Method.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return VoteResult{}, operationError
	}
	return result, nil
}

// consumeQuota claims the tier that will service the vote. Each free-tier
// claim is an atomic increment-if-under-limit at the storage layer, so two
// racing requests from the same account cannot both take the last slot.
// The premium tier claims nothing here; the caller debits the cost inside
// the same transaction.
func (service *Service) consumeQuota(ctx context.Context, store Store, accountID string, requested VoteMethod, now time.Time) (VoteMethod, error) {
	tryFree := requested == MethodAuto || requested == MethodFree
	tryBonus := requested == MethodAuto || requested == MethodBonus
	tryPremium := requested == MethodAuto || requested == MethodPremium

	if tryFree {
		err := store.IncrementVoteUsage(ctx, accountID, BucketDailyFree, DayKey(now), DailyFreeVoteLimit)
		if err == nil {
			return MethodFree, nil
		}
		if !errors.Is(err, ErrQuotaExhausted) {
			return "", err
		}
		if requested == MethodFree {
			return "", ErrNoFreeVotes
		}
	}
	if tryBonus {
		err := store.IncrementVoteUsage(ctx, accountID, BucketWeeklyBonus, WeekKey(now), WeeklyBonusVoteLimit)
		if err == nil {
			return MethodBonus, nil
		}
		if !errors.Is(err, ErrQuotaExhausted) {
			return "", err
		}
		if requested == MethodBonus {
			return "", ErrNoFreeVotes
		}
	}
	if tryPremium {
		balance, err := store.SumBalance(ctx, accountID)
		if err != nil {
			return "", err
		}
		if balance >= PremiumVoteCost {
			return MethodPremium, nil
		}
		if requested == MethodPremium {
			return "", ErrInsufficientCoins
		}
	}
	return "", ErrNoFreeVotes
}

func perksFiredJSON(fired []string) string {
	if len(fired) == 0 {
		return ""
	}
	raw, err := json.Marshal(map[string][]string{"perks_fired": fired})
	if err != nil {
		return ""
	}
	return string(raw)
}
