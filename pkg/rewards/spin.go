package rewards

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Spin draws a prize from the named wheel, applies the account's active
// perks, and settles the coin effect and any special flag in one
// transaction. Punitive outcomes are suppressed for protected accounts:
// SpinImmunity cancels both coin losses and vote loss, VoteProtection
// cancels vote loss only.
func (service *Service) Spin(ctx context.Context, account AccountID, wheelID string) (SpinResult, error) {
	wheel, found := service.catalog.Wheel(wheelID)
	if !found {
		return SpinResult{}, ErrUnknownWheel
	}
	drawn, err := service.DrawPrize(wheel)
	if err != nil {
		return SpinResult{}, err
	}

	var result SpinResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		accountID, err := transactionStore.GetOrCreateAccountID(ctx, account)
		if err != nil {
			return err
		}
		now := service.clock.Now()
		perks, err := service.activePerksForAccount(ctx, transactionStore, accountID, now)
		if err != nil {
			return err
		}
		adjusted, fired := service.ApplyToSpinPayout(drawn, perks, now)

		spinID := uuid.NewString()
		result = SpinResult{
			SpinID:     spinID,
			Prize:      adjusted,
			ExtraSpin:  adjusted.SpecialFlag == SpecialExtraSpin,
			PerksFired: fired,
		}

		source := EntrySource{Type: sourceTypeSpin, ID: spinID}
		switch {
		case adjusted.CoinValue > 0:
			if _, err := service.appendEntryForAccount(ctx, transactionStore, accountID, DirectionCredit, adjusted.CoinValue,
				CategorySpinning, fmt.Sprintf("spin prize: %s", adjusted.Name), perksFiredJSON(fired), source); err != nil {
				return err
			}
			result.CoinDelta = adjusted.CoinValue
		case adjusted.CoinValue < 0:
			if perks.SpinImmunity {
				result.Suppressed = true
				break
			}
			balance, err := transactionStore.SumBalance(ctx, accountID)
			if err != nil {
				return err
			}
			// Clamp the loss to the available balance; the ledger never
			// goes negative and a broke account loses nothing.
			loss := -adjusted.CoinValue
			if loss > balance {
				loss = balance
			}
			if loss > 0 {
				if _, err := service.appendEntryForAccount(ctx, transactionStore, accountID, DirectionDebit, loss,
					CategorySpinning, fmt.Sprintf("spin penalty: %s", adjusted.Name), perksFiredJSON(fired), source); err != nil {
					return err
				}
				result.CoinDelta = -loss
			}
		}

		if adjusted.SpecialFlag == SpecialLoseAllVotes {
			if perks.VoteProtection || perks.SpinImmunity {
				result.Suppressed = true
			} else {
				if err := transactionStore.ExhaustVoteUsage(ctx, accountID, BucketDailyFree, DayKey(now), DailyFreeVoteLimit); err != nil {
					return err
				}
				if err := transactionStore.ExhaustVoteUsage(ctx, accountID, BucketWeeklyBonus, WeekKey(now), WeeklyBonusVoteLimit); err != nil {
					return err
				}
			}
		}

		record := SpinRecord{
			SpinID:         spinID,
			AccountID:      accountID,
			WheelID:        wheel.ID(),
			PrizeName:      adjusted.Name,
			CoinDelta:      result.CoinDelta,
			Suppressed:     result.Suppressed,
			CreatedUnixUTC: now.Unix(),
		}
		return transactionStore.InsertSpinRecord(ctx, record)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationSpin,
		Account:   account,
		Amount:    result.CoinDelta,
		Detail:    result.Prize.Name,
		Error:     operationError,
	})
	if operationError != nil {
		return SpinResult{}, operationError
	}
	return result, nil
}
