package rewards

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// RandomSource yields uniform integers for weighted draws. Fairness, not
// security, is the requirement, so any statistically sound generator will
// do; tests inject a fixed seed for bit-for-bit reproducibility.
type RandomSource interface {
	// Int63n returns a uniform value in [0, n). n must be > 0.
	Int63n(n int64) int64
}

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (source *lockedSource) Int63n(n int64) int64 {
	source.mu.Lock()
	defer source.mu.Unlock()
	return source.rng.Int63n(n)
}

// NewSeededSource returns a concurrency-safe RandomSource with the given seed.
func NewSeededSource(seed int64) RandomSource {
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}
}

// NewWheel validates a prize list at load time: at least one prize, every
// weight strictly positive. Draws never re-validate; a zero or negative
// weight is a configuration error, not a runtime condition.
func NewWheel(wheelID string, prizes []SpinPrize) (Wheel, error) {
	trimmed := strings.TrimSpace(wheelID)
	if trimmed == "" {
		return Wheel{}, fmt.Errorf("%w: empty wheel id", ErrConfiguration)
	}
	if len(prizes) == 0 {
		return Wheel{}, fmt.Errorf("%w: wheel %q has no prizes", ErrConfiguration, trimmed)
	}
	var total int64
	for _, prize := range prizes {
		if prize.Weight <= 0 {
			return Wheel{}, fmt.Errorf("%w: wheel %q prize %q has non-positive weight %d", ErrConfiguration, trimmed, prize.Name, prize.Weight)
		}
		total += prize.Weight
	}
	copied := make([]SpinPrize, len(prizes))
	copy(copied, prizes)
	return Wheel{wheelID: trimmed, prizes: copied, totalWeight: total}, nil
}

// DrawPrize selects one prize from the wheel. r is drawn uniformly from
// [1, totalWeight] and the prizes are walked in their stable configured
// order, accumulating integer weights; the first prize whose cumulative
// weight reaches r wins. No floating point is involved, so a prize holding
// the full weight can never lose to rounding noise.
func (service *Service) DrawPrize(wheel Wheel) (SpinPrize, error) {
	if wheel.totalWeight <= 0 {
		return SpinPrize{}, fmt.Errorf("%w: wheel not initialized", ErrConfiguration)
	}
	index := drawIndex(service.random, prizeWeights(wheel.prizes))
	return wheel.prizes[index], nil
}

// WeightedCandidate is one option in a generic weighted draw.
type WeightedCandidate struct {
	ID     string
	Weight int64
}

// DrawWeighted picks one candidate id, with probability proportional to
// weight. Used for rarity classification alongside the prize wheels; the
// same validation rules apply.
func DrawWeighted(random RandomSource, candidates []WeightedCandidate) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrConfiguration)
	}
	weights := make([]int64, len(candidates))
	for position, candidate := range candidates {
		if candidate.Weight <= 0 {
			return "", fmt.Errorf("%w: candidate %q has non-positive weight %d", ErrConfiguration, candidate.ID, candidate.Weight)
		}
		weights[position] = candidate.Weight
	}
	return candidates[drawIndex(random, weights)].ID, nil
}

func drawIndex(random RandomSource, weights []int64) int {
	var total int64
	for _, weight := range weights {
		total += weight
	}
	pick := random.Int63n(total) + 1
	var cumulative int64
	for position, weight := range weights {
		cumulative += weight
		if pick <= cumulative {
			return position
		}
	}
	return len(weights) - 1
}

func prizeWeights(prizes []SpinPrize) []int64 {
	weights := make([]int64, len(prizes))
	for position, prize := range prizes {
		weights[position] = prize.Weight
	}
	return weights
}
