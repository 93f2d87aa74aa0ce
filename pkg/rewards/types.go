package rewards

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Coins is a whole-coin amount of the virtual currency.
type Coins int64

// Int64 returns the raw amount.
func (amount Coins) Int64() int64 { return int64(amount) }

// NewPositiveCoins validates an amount and ensures it is strictly positive.
func NewPositiveCoins(raw int64) (Coins, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Coins(raw), nil
}

// AccountID identifies a participant: a registered user or an IP-derived
// guest identity. Accounts are created on first interaction.
type AccountID struct {
	value string
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// PromotionID identifies a one-time promotional code.
type PromotionID struct {
	value string
}

// NewPromotionID validates and normalizes a promotion id.
func NewPromotionID(raw string) (PromotionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PromotionID{}, fmt.Errorf("%w: empty value", ErrInvalidPromotion)
	}
	return PromotionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id PromotionID) String() string {
	return id.value
}

// IdentityKey is the opaque per-person key a redemption is scoped to.
// The resolver that produces it is pluggable; the guard only compares keys.
type IdentityKey struct {
	value string
}

// NewIdentityKey validates and normalizes an identity key.
func NewIdentityKey(raw string) (IdentityKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdentityKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdentity)
	}
	return IdentityKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdentityKey) String() string {
	return key.value
}

// EntryDirection marks a ledger entry as a credit or a debit.
type EntryDirection string

const (
	DirectionCredit EntryDirection = "credit"
	DirectionDebit  EntryDirection = "debit"
)

// String returns the direction name.
func (direction EntryDirection) String() string { return string(direction) }

// ParseEntryDirection validates a stored direction value.
func ParseEntryDirection(raw string) (EntryDirection, error) {
	switch EntryDirection(raw) {
	case DirectionCredit, DirectionDebit:
		return EntryDirection(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
}

// EntryCategory names the activity that caused a ledger entry.
type EntryCategory string

const (
	CategoryVoting     EntryCategory = "voting"
	CategorySpinning   EntryCategory = "spinning"
	CategoryRedemption EntryCategory = "redemption"
	CategoryAdjustment EntryCategory = "adjustment"
)

// String returns the category name.
func (category EntryCategory) String() string { return string(category) }

// ParseEntryCategory validates a stored category value.
func ParseEntryCategory(raw string) (EntryCategory, error) {
	switch EntryCategory(raw) {
	case CategoryVoting, CategorySpinning, CategoryRedemption, CategoryAdjustment:
		return EntryCategory(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, raw)
}

// VoteMethod selects which quota bucket services a vote.
type VoteMethod string

const (
	MethodAuto    VoteMethod = "auto"
	MethodFree    VoteMethod = "free"
	MethodBonus   VoteMethod = "bonus"
	MethodPremium VoteMethod = "premium"
)

// String returns the method name.
func (method VoteMethod) String() string { return string(method) }

// ParseVoteMethod validates a requested vote method.
func ParseVoteMethod(raw string) (VoteMethod, error) {
	switch VoteMethod(raw) {
	case MethodAuto, MethodFree, MethodBonus, MethodPremium:
		return VoteMethod(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVoteMethod, raw)
}

// VoteDirection is the polarity of a cast vote.
type VoteDirection string

const (
	VoteIn  VoteDirection = "in"
	VoteOut VoteDirection = "out"
)

// String returns the direction name.
func (direction VoteDirection) String() string { return string(direction) }

// ParseVoteDirection validates a vote direction.
func ParseVoteDirection(raw string) (VoteDirection, error) {
	switch VoteDirection(raw) {
	case VoteIn, VoteOut:
		return VoteDirection(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
}

// ScopeKind distinguishes the two tallying contexts a vote can be cast in.
type ScopeKind string

const (
	ScopeCampaign ScopeKind = "campaign"
	ScopeMachine  ScopeKind = "machine"
)

// VoteScope binds a vote to exactly one tallying context. Votes are only
// ever counted against the scope they were cast in.
type VoteScope struct {
	kind ScopeKind
	id   string
}

// NewCampaignScope scopes a vote to a campaign.
func NewCampaignScope(campaignID string) (VoteScope, error) {
	return newScope(ScopeCampaign, campaignID)
}

// NewMachineScope scopes a vote to a machine.
func NewMachineScope(machineID string) (VoteScope, error) {
	return newScope(ScopeMachine, machineID)
}

func newScope(kind ScopeKind, id string) (VoteScope, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return VoteScope{}, fmt.Errorf("%w: empty %s id", ErrInvalidVoteScope, kind)
	}
	return VoteScope{kind: kind, id: trimmed}, nil
}

// Kind returns the scope kind.
func (scope VoteScope) Kind() ScopeKind { return scope.kind }

// ID returns the scoped entity id.
func (scope VoteScope) ID() string { return scope.id }

// LedgerEntry is a single immutable currency movement. The ledger is the
// sole source of truth for balances: no entry is ever mutated or deleted.
type LedgerEntry struct {
	EntryID        string
	AccountID      string
	Direction      EntryDirection
	Category       EntryCategory
	Amount         Coins
	Reason         string
	SourceType     string
	SourceID       string
	MetadataJSON   string
	CreatedUnixUTC int64
}

// Signed returns the entry's contribution to the balance.
func (entry LedgerEntry) Signed() Coins {
	if entry.Direction == DirectionDebit {
		return -entry.Amount
	}
	return entry.Amount
}

// VoteRecord is an immutable record of one cast vote.
type VoteRecord struct {
	VoteID         string
	AccountID      string
	ItemID         string
	Direction      VoteDirection
	ScopeKind      ScopeKind
	ScopeID        string
	Method         VoteMethod
	CreatedUnixUTC int64
}

// SpinRecord is an immutable record of one wheel spin.
type SpinRecord struct {
	SpinID         string
	AccountID      string
	WheelID        string
	PrizeName      string
	CoinDelta      Coins
	Suppressed     bool
	CreatedUnixUTC int64
}

// RedemptionRecord marks a promotion as used by one identity.
type RedemptionRecord struct {
	PromotionID    string
	Identity       string
	CreatedUnixUTC int64
}

// QuotaSnapshot is the derived per-request view of a participant's
// remaining voting capacity.
type QuotaSnapshot struct {
	DailyFreeRemaining    int
	WeeklyBonusRemaining  int
	PremiumVotesAvailable int
}

// PerkSet is the resolved modifier set of an equipped avatar. Zero-valued
// multipliers mean the perk is absent.
type PerkSet struct {
	VoteBonus                 Coins
	SpinBonus                 Coins
	ActivityMultiplier        float64
	DailyBonusMultiplier      float64
	WeekendEarningsMultiplier float64
	SpinPrizeMultiplier       float64
	VoteProtection            bool
	SpinImmunity              bool
	DayRestricted             bool
}

// IsEmpty reports whether the set grants nothing.
func (perks PerkSet) IsEmpty() bool {
	return perks == PerkSet{DayRestricted: perks.DayRestricted}
}

// AvatarConfig is a catalog entry for one cosmetic avatar. When
// DayRestriction is non-empty the perks apply only on the listed weekdays.
type AvatarConfig struct {
	AvatarID       string
	Name           string
	Perks          PerkSet
	DayRestriction []time.Weekday
}

// ActiveOn reports whether the avatar's perks apply on the given weekday.
func (avatar AvatarConfig) ActiveOn(weekday time.Weekday) bool {
	if len(avatar.DayRestriction) == 0 {
		return true
	}
	for _, allowed := range avatar.DayRestriction {
		if allowed == weekday {
			return true
		}
	}
	return false
}

// SpecialFlag marks a prize with a non-monetary effect.
type SpecialFlag string

const (
	SpecialNone         SpecialFlag = ""
	SpecialExtraSpin    SpecialFlag = "extra_spin"
	SpecialLoseAllVotes SpecialFlag = "lose_all_votes"
)

// SpinPrize is one slot on a wheel. CoinValue may be negative for punitive
// prizes; Weight is the relative likelihood of the slot.
type SpinPrize struct {
	Name        string
	Weight      int64
	RarityLevel int
	CoinValue   Coins
	SpecialFlag SpecialFlag
}

// Wheel is a validated, ordered prize list. Construct with NewWheel; the
// zero value draws nothing.
type Wheel struct {
	wheelID     string
	prizes      []SpinPrize
	totalWeight int64
}

// ID returns the wheel identifier.
func (wheel Wheel) ID() string { return wheel.wheelID }

// Prizes returns the prize list in its stable configured order.
func (wheel Wheel) Prizes() []SpinPrize { return wheel.prizes }

// TotalWeight returns the sum of all prize weights.
func (wheel Wheel) TotalWeight() int64 { return wheel.totalWeight }

// Promotion is a one-time code with an inclusive calendar-date window.
type Promotion struct {
	PromotionID string
	StartsOn    time.Time
	EndsOn      time.Time
}

// UsageBucket names a quota counter family.
type UsageBucket string

const (
	BucketDailyFree   UsageBucket = "daily_free"
	BucketWeeklyBonus UsageBucket = "weekly_bonus"
)

// String returns the bucket name.
func (bucket UsageBucket) String() string { return string(bucket) }

// VotePayout is the perk-adjusted amounts credited for a vote.
type VotePayout struct {
	Base  Coins
	Bonus Coins
	Fired []string
}

// Total returns the credited sum.
func (payout VotePayout) Total() Coins { return payout.Base + payout.Bonus }

// VoteResult reports a successfully cast vote.
type VoteResult struct {
	VoteID     string
	Method     VoteMethod
	Payout     Coins
	CoinDelta  Coins
	PerksFired []string
}

// SpinResult reports one resolved spin.
type SpinResult struct {
	SpinID     string
	Prize      SpinPrize
	CoinDelta  Coins
	Suppressed bool
	ExtraSpin  bool
	PerksFired []string
}

// Store is the persistence contract used by Service. WithTx hands the
// closure a transactional Store; every state-changing operation runs inside
// one such transaction so quota checks and ledger writes cannot interleave
// across requests for the same account.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOrCreateAccountID(ctx context.Context, account AccountID) (string, error)
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) error
	SumBalance(ctx context.Context, accountID string) (Coins, error)
	ListLedgerEntries(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]LedgerEntry, error)
	CountVoteUsage(ctx context.Context, accountID string, bucket UsageBucket, periodKey string) (int, error)
	IncrementVoteUsage(ctx context.Context, accountID string, bucket UsageBucket, periodKey string, limit int) error
	ExhaustVoteUsage(ctx context.Context, accountID string, bucket UsageBucket, periodKey string, limit int) error
	InsertVoteRecord(ctx context.Context, record VoteRecord) error
	InsertSpinRecord(ctx context.Context, record SpinRecord) error
	GetEquippedAvatarID(ctx context.Context, accountID string) (string, error)
	SetEquippedAvatarID(ctx context.Context, accountID string, avatarID string) error
	InsertRedemption(ctx context.Context, record RedemptionRecord) error
}

// Catalog exposes the read-only reference data: the avatar catalog, wheel
// configurations, and promotion windows. Implementations cache and validate
// at load time; lookups never fail for configuration reasons.
type Catalog interface {
	Avatar(avatarID string) (AvatarConfig, bool)
	StarterAvatarID() string
	Wheel(wheelID string) (Wheel, bool)
	Promotion(promotionID string) (Promotion, bool)
}
