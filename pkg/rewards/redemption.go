package rewards

import (
	"context"
	"time"
)

// TryRedeem claims a one-time promotion for an identity. The validity
// window is inclusive by calendar date in the reference location. The
// at-most-once guarantee rests on the store's unique constraint over
// (promotion, identity): the insert either lands or surfaces
// ErrAlreadyRedeemed, so two racing calls cannot both win.
func (service *Service) TryRedeem(ctx context.Context, promotionID PromotionID, identity IdentityKey) (RedemptionRecord, error) {
	promotion, found := service.catalog.Promotion(promotionID.String())
	if !found {
		return RedemptionRecord{}, ErrInvalidPromotion
	}
	now := service.clock.Now()
	if !promotionWindowContains(promotion, now, service.location) {
		return RedemptionRecord{}, ErrPromotionExpired
	}

	record := RedemptionRecord{
		PromotionID:    promotionID.String(),
		Identity:       identity.String(),
		CreatedUnixUTC: now.Unix(),
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return transactionStore.InsertRedemption(ctx, record)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRedeem,
		Detail:    promotionID.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return RedemptionRecord{}, operationError
	}
	return record, nil
}

func promotionWindowContains(promotion Promotion, instant time.Time, location *time.Location) bool {
	day := dateOnly(instant.In(location))
	start := dateOnly(promotion.StartsOn)
	end := dateOnly(promotion.EndsOn)
	return !day.Before(start) && !day.After(end)
}

func dateOnly(instant time.Time) time.Time {
	return time.Date(instant.Year(), instant.Month(), instant.Day(), 0, 0, 0, 0, time.UTC)
}
