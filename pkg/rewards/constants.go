package rewards

// Quota sizes and coin effects of the three vote tiers.
const (
	DailyFreeVoteLimit   = 1
	WeeklyBonusVoteLimit = 2

	FreeVotePayout  Coins = 30
	BonusVotePayout Coins = 5
	PremiumVoteCost Coins = 45
)

const (
	operationCredit      = "credit"
	operationDebit       = "debit"
	operationCastVote    = "cast_vote"
	operationSpin        = "spin"
	operationRedeem      = "redeem"
	operationEquipAvatar = "equip_avatar"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	sourceTypeVote = "vote"
	sourceTypeSpin = "spin"

	perkVoteBonus       = "vote_bonus"
	perkSpinBonus       = "spin_bonus"
	perkActivity        = "activity_multiplier"
	perkDailyBonus      = "daily_bonus_multiplier"
	perkWeekendEarnings = "weekend_earnings_multiplier"
	perkSpinPrize       = "spin_prize_multiplier"
)
