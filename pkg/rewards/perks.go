package rewards

import (
	"context"
	"math"
	"time"
)

// ActivePerks resolves the modifier set currently granted by the account's
// equipped avatar. Day-restricted avatars stay visually equipped but grant
// an empty set outside their allowed weekdays; DayRestricted is set so the
// UI can explain why.
func (service *Service) ActivePerks(ctx context.Context, account AccountID, now time.Time) (PerkSet, error) {
	accountID, err := service.store.GetOrCreateAccountID(ctx, account)
	if err != nil {
		return PerkSet{}, err
	}
	return service.activePerksForAccount(ctx, service.store, accountID, now)
}

func (service *Service) activePerksForAccount(ctx context.Context, store Store, accountID string, now time.Time) (PerkSet, error) {
	avatarID, err := store.GetEquippedAvatarID(ctx, accountID)
	if err != nil {
		return PerkSet{}, err
	}
	if avatarID == "" {
		avatarID = service.catalog.StarterAvatarID()
	}
	avatar, found := service.catalog.Avatar(avatarID)
	if !found {
		// An equipped avatar that has left the catalog degrades to no perks
		// rather than blocking votes and spins.
		return PerkSet{}, nil
	}
	if !avatar.ActiveOn(now.In(service.location).Weekday()) {
		return PerkSet{DayRestricted: true}, nil
	}
	return avatar.Perks, nil
}

// ApplyToVotePayout adjusts a vote payout through the fixed perk
// composition order: flat vote bonus first, then the activity multiplier,
// then the daily-bonus multiplier (only when a bonus amount is present),
// then the weekend multiplier. Each multiplicative step rounds immediately,
// half away from zero. Changing this order changes numeric outcomes.
func (service *Service) ApplyToVotePayout(base Coins, bonus Coins, perks PerkSet, now time.Time) VotePayout {
	payout := VotePayout{Base: base, Bonus: bonus}
	if perks.VoteBonus != 0 {
		payout.Base += perks.VoteBonus
		payout.Fired = append(payout.Fired, perkVoteBonus)
	}
	if perks.ActivityMultiplier != 0 {
		payout.Base = multiplyRounded(payout.Base, perks.ActivityMultiplier)
		payout.Bonus = multiplyRounded(payout.Bonus, perks.ActivityMultiplier)
		payout.Fired = append(payout.Fired, perkActivity)
	}
	if perks.DailyBonusMultiplier != 0 && payout.Bonus > 0 {
		payout.Bonus = multiplyRounded(payout.Bonus, perks.DailyBonusMultiplier)
		payout.Fired = append(payout.Fired, perkDailyBonus)
	}
	if perks.WeekendEarningsMultiplier != 0 && IsWeekend(now, service.location) {
		payout.Base = multiplyRounded(payout.Base, perks.WeekendEarningsMultiplier)
		payout.Bonus = multiplyRounded(payout.Bonus, perks.WeekendEarningsMultiplier)
		payout.Fired = append(payout.Fired, perkWeekendEarnings)
	}
	return payout
}

// ApplyToSpinPayout adjusts a drawn prize's coin value: the spin-prize
// multiplier applies before everything else, then the flat spin bonus, the
// activity multiplier, and the weekend multiplier, rounding each
// multiplicative step half away from zero. Punitive handling is left to
// the caller via the VoteProtection and SpinImmunity flags.
func (service *Service) ApplyToSpinPayout(prize SpinPrize, perks PerkSet, now time.Time) (SpinPrize, []string) {
	adjusted := prize
	var fired []string
	if perks.SpinPrizeMultiplier != 0 {
		adjusted.CoinValue = multiplyRounded(adjusted.CoinValue, perks.SpinPrizeMultiplier)
		fired = append(fired, perkSpinPrize)
	}
	if perks.SpinBonus != 0 {
		adjusted.CoinValue += perks.SpinBonus
		fired = append(fired, perkSpinBonus)
	}
	if perks.ActivityMultiplier != 0 {
		adjusted.CoinValue = multiplyRounded(adjusted.CoinValue, perks.ActivityMultiplier)
		fired = append(fired, perkActivity)
	}
	if perks.WeekendEarningsMultiplier != 0 && IsWeekend(now, service.location) {
		adjusted.CoinValue = multiplyRounded(adjusted.CoinValue, perks.WeekendEarningsMultiplier)
		fired = append(fired, perkWeekendEarnings)
	}
	return adjusted, fired
}

// EquippedAvatarID returns the account's equipped avatar id, falling back
// to the starter avatar when none was ever equipped.
func (service *Service) EquippedAvatarID(ctx context.Context, account AccountID) (string, error) {
	accountID, err := service.store.GetOrCreateAccountID(ctx, account)
	if err != nil {
		return "", err
	}
	avatarID, err := service.store.GetEquippedAvatarID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if avatarID == "" {
		avatarID = service.catalog.StarterAvatarID()
	}
	return avatarID, nil
}

// EquipAvatar sets the account's equipped avatar after validating it
// against the catalog.
func (service *Service) EquipAvatar(ctx context.Context, account AccountID, avatarID string) error {
	if _, found := service.catalog.Avatar(avatarID); !found {
		return ErrUnknownAvatar
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		accountID, err := transactionStore.GetOrCreateAccountID(ctx, account)
		if err != nil {
			return err
		}
		return transactionStore.SetEquippedAvatarID(ctx, accountID, avatarID)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationEquipAvatar,
		Account:   account,
		Detail:    avatarID,
		Error:     operationError,
	})
	return operationError
}

func multiplyRounded(amount Coins, multiplier float64) Coins {
	return Coins(roundHalfAwayFromZero(float64(amount) * multiplier))
}

func roundHalfAwayFromZero(value float64) int64 {
	if value >= 0 {
		return int64(math.Floor(value + 0.5))
	}
	return int64(math.Ceil(value - 0.5))
}
