// Package catalog loads the read-only reference data the rewards engine
// consults at runtime: the avatar catalog, wheel configurations, and
// promotion windows. The whole document is validated at load time so
// lookups never fail for configuration reasons.
package catalog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Sharedvaluevending/revqr-rewards/pkg/rewards"
	"github.com/spf13/viper"
)

const dateLayout = "2006-01-02"

type document struct {
	StarterAvatar string         `mapstructure:"starter_avatar"`
	Avatars       []avatarDoc    `mapstructure:"avatars"`
	Wheels        []wheelDoc     `mapstructure:"wheels"`
	Promotions    []promotionDoc `mapstructure:"promotions"`
}

type avatarDoc struct {
	ID             string   `mapstructure:"id"`
	Name           string   `mapstructure:"name"`
	Perks          perkDoc  `mapstructure:"perks"`
	DayRestriction []string `mapstructure:"day_restriction"`
}

type perkDoc struct {
	VoteBonus                 int64   `mapstructure:"vote_bonus"`
	SpinBonus                 int64   `mapstructure:"spin_bonus"`
	ActivityMultiplier        float64 `mapstructure:"activity_multiplier"`
	DailyBonusMultiplier      float64 `mapstructure:"daily_bonus_multiplier"`
	WeekendEarningsMultiplier float64 `mapstructure:"weekend_earnings_multiplier"`
	SpinPrizeMultiplier       float64 `mapstructure:"spin_prize_multiplier"`
	VoteProtection            bool    `mapstructure:"vote_protection"`
	SpinImmunity              bool    `mapstructure:"spin_immunity"`
}

type wheelDoc struct {
	ID     string     `mapstructure:"id"`
	Prizes []prizeDoc `mapstructure:"prizes"`
}

type prizeDoc struct {
	Name      string `mapstructure:"name"`
	Weight    int64  `mapstructure:"weight"`
	Rarity    int    `mapstructure:"rarity"`
	CoinValue int64  `mapstructure:"coin_value"`
	Special   string `mapstructure:"special"`
}

type promotionDoc struct {
	ID       string `mapstructure:"id"`
	StartsOn string `mapstructure:"starts_on"`
	EndsOn   string `mapstructure:"ends_on"`
}

// Catalog is a cached, reloadable rewards.Catalog backed by one YAML file.
type Catalog struct {
	path string

	mu         sync.RWMutex
	starterID  string
	avatars    map[string]rewards.AvatarConfig
	wheels     map[string]rewards.Wheel
	promotions map[string]rewards.Promotion
}

// Load reads and validates the catalog document at path.
func Load(path string) (*Catalog, error) {
	catalog := &Catalog{path: path}
	if err := catalog.Reload(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// Reload re-reads the backing file. On validation failure the previously
// loaded snapshot stays in effect.
func (catalog *Catalog) Reload() error {
	reader := viper.New()
	reader.SetConfigFile(catalog.path)
	reader.SetConfigType("yaml")
	if err := reader.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read catalog %s: %v", rewards.ErrConfiguration, catalog.path, err)
	}
	var doc document
	if err := reader.Unmarshal(&doc); err != nil {
		return fmt.Errorf("%w: decode catalog %s: %v", rewards.ErrConfiguration, catalog.path, err)
	}

	starterID, avatars, err := buildAvatars(doc)
	if err != nil {
		return err
	}
	wheels, err := buildWheels(doc.Wheels)
	if err != nil {
		return err
	}
	promotions, err := buildPromotions(doc.Promotions)
	if err != nil {
		return err
	}

	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	catalog.starterID = starterID
	catalog.avatars = avatars
	catalog.wheels = wheels
	catalog.promotions = promotions
	return nil
}

// Avatar returns the avatar configuration for the given id.
func (catalog *Catalog) Avatar(avatarID string) (rewards.AvatarConfig, bool) {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	avatar, found := catalog.avatars[avatarID]
	return avatar, found
}

// StarterAvatarID returns the default avatar id for accounts that never
// equipped one.
func (catalog *Catalog) StarterAvatarID() string {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	return catalog.starterID
}

// Wheel returns the wheel configuration for the given id.
func (catalog *Catalog) Wheel(wheelID string) (rewards.Wheel, bool) {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	wheel, found := catalog.wheels[wheelID]
	return wheel, found
}

// Promotion returns the promotion window for the given id.
func (catalog *Catalog) Promotion(promotionID string) (rewards.Promotion, bool) {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	promotion, found := catalog.promotions[promotionID]
	return promotion, found
}

func buildAvatars(doc document) (string, map[string]rewards.AvatarConfig, error) {
	avatars := make(map[string]rewards.AvatarConfig, len(doc.Avatars))
	for _, entry := range doc.Avatars {
		if strings.TrimSpace(entry.ID) == "" {
			return "", nil, fmt.Errorf("%w: avatar with empty id", rewards.ErrConfiguration)
		}
		if _, exists := avatars[entry.ID]; exists {
			return "", nil, fmt.Errorf("%w: duplicate avatar %q", rewards.ErrConfiguration, entry.ID)
		}
		restriction, err := parseWeekdays(entry.ID, entry.DayRestriction)
		if err != nil {
			return "", nil, err
		}
		if err := validateMultipliers(entry); err != nil {
			return "", nil, err
		}
		avatars[entry.ID] = rewards.AvatarConfig{
			AvatarID: entry.ID,
			Name:     entry.Name,
			Perks: rewards.PerkSet{
				VoteBonus:                 rewards.Coins(entry.Perks.VoteBonus),
				SpinBonus:                 rewards.Coins(entry.Perks.SpinBonus),
				ActivityMultiplier:        entry.Perks.ActivityMultiplier,
				DailyBonusMultiplier:      entry.Perks.DailyBonusMultiplier,
				WeekendEarningsMultiplier: entry.Perks.WeekendEarningsMultiplier,
				SpinPrizeMultiplier:       entry.Perks.SpinPrizeMultiplier,
				VoteProtection:            entry.Perks.VoteProtection,
				SpinImmunity:              entry.Perks.SpinImmunity,
			},
			DayRestriction: restriction,
		}
	}
	starterID := strings.TrimSpace(doc.StarterAvatar)
	if starterID != "" {
		if _, found := avatars[starterID]; !found {
			return "", nil, fmt.Errorf("%w: starter avatar %q not in catalog", rewards.ErrConfiguration, starterID)
		}
	}
	return starterID, avatars, nil
}

func validateMultipliers(entry avatarDoc) error {
	for name, value := range map[string]float64{
		"activity_multiplier":         entry.Perks.ActivityMultiplier,
		"daily_bonus_multiplier":      entry.Perks.DailyBonusMultiplier,
		"weekend_earnings_multiplier": entry.Perks.WeekendEarningsMultiplier,
		"spin_prize_multiplier":       entry.Perks.SpinPrizeMultiplier,
	} {
		if value < 0 {
			return fmt.Errorf("%w: avatar %q: %s must not be negative", rewards.ErrConfiguration, entry.ID, name)
		}
	}
	return nil
}

func buildWheels(docs []wheelDoc) (map[string]rewards.Wheel, error) {
	wheels := make(map[string]rewards.Wheel, len(docs))
	for _, entry := range docs {
		if _, exists := wheels[entry.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate wheel %q", rewards.ErrConfiguration, entry.ID)
		}
		prizes := make([]rewards.SpinPrize, 0, len(entry.Prizes))
		for _, prizeEntry := range entry.Prizes {
			special, err := parseSpecial(entry.ID, prizeEntry.Special)
			if err != nil {
				return nil, err
			}
			prizes = append(prizes, rewards.SpinPrize{
				Name:        prizeEntry.Name,
				Weight:      prizeEntry.Weight,
				RarityLevel: prizeEntry.Rarity,
				CoinValue:   rewards.Coins(prizeEntry.CoinValue),
				SpecialFlag: special,
			})
		}
		wheel, err := rewards.NewWheel(entry.ID, prizes)
		if err != nil {
			return nil, err
		}
		wheels[entry.ID] = wheel
	}
	return wheels, nil
}

func buildPromotions(docs []promotionDoc) (map[string]rewards.Promotion, error) {
	promotions := make(map[string]rewards.Promotion, len(docs))
	for _, entry := range docs {
		if strings.TrimSpace(entry.ID) == "" {
			return nil, fmt.Errorf("%w: promotion with empty id", rewards.ErrConfiguration)
		}
		if _, exists := promotions[entry.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate promotion %q", rewards.ErrConfiguration, entry.ID)
		}
		startsOn, err := time.Parse(dateLayout, entry.StartsOn)
		if err != nil {
			return nil, fmt.Errorf("%w: promotion %q: bad starts_on %q", rewards.ErrConfiguration, entry.ID, entry.StartsOn)
		}
		endsOn, err := time.Parse(dateLayout, entry.EndsOn)
		if err != nil {
			return nil, fmt.Errorf("%w: promotion %q: bad ends_on %q", rewards.ErrConfiguration, entry.ID, entry.EndsOn)
		}
		if endsOn.Before(startsOn) {
			return nil, fmt.Errorf("%w: promotion %q: ends before it starts", rewards.ErrConfiguration, entry.ID)
		}
		promotions[entry.ID] = rewards.Promotion{
			PromotionID: entry.ID,
			StartsOn:    startsOn,
			EndsOn:      endsOn,
		}
	}
	return promotions, nil
}

func parseWeekdays(avatarID string, names []string) ([]time.Weekday, error) {
	if len(names) == 0 {
		return nil, nil
	}
	weekdays := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		weekday, err := parseWeekday(name)
		if err != nil {
			return nil, fmt.Errorf("%w: avatar %q: %v", rewards.ErrConfiguration, avatarID, err)
		}
		weekdays = append(weekdays, weekday)
	}
	return weekdays, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

func parseSpecial(wheelID string, raw string) (rewards.SpecialFlag, error) {
	switch rewards.SpecialFlag(strings.TrimSpace(raw)) {
	case rewards.SpecialNone, rewards.SpecialExtraSpin, rewards.SpecialLoseAllVotes:
		return rewards.SpecialFlag(strings.TrimSpace(raw)), nil
	}
	return "", fmt.Errorf("%w: wheel %q: unknown special flag %q", rewards.ErrConfiguration, wheelID, raw)
}
