package rewards

import (
	"errors"
	"testing"
)

func TestNewWheelValidation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		wheelID string
		prizes  []SpinPrize
	}{
		{name: "empty id", wheelID: "  ", prizes: []SpinPrize{{Name: "a", Weight: 1}}},
		{name: "no prizes", wheelID: "empty"},
		{name: "zero weight", wheelID: "broken", prizes: []SpinPrize{{Name: "a", Weight: 0}}},
		{name: "negative weight", wheelID: "broken", prizes: []SpinPrize{{Name: "a", Weight: -3}}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewWheel(tc.wheelID, tc.prizes); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestDrawPrizeSingleSlotAlwaysWins(t *testing.T) {
	t.Parallel()
	service := mustNewService(t, newStubStore(), newStubCatalog(), NewFixedClock(tuesdayNoon), WithRandomSource(NewSeededSource(1)))
	wheel := mustWheel(t, "solo", []SpinPrize{{Name: "only", Weight: 7, CoinValue: 5}})
	for round := 0; round < 100; round++ {
		prize, err := service.DrawPrize(wheel)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		if prize.Name != "only" {
			t.Fatalf("expected the only prize, got %q", prize.Name)
		}
	}
}

func TestDrawPrizeZeroValueWheel(t *testing.T) {
	t.Parallel()
	service := mustNewService(t, newStubStore(), newStubCatalog(), NewFixedClock(tuesdayNoon))
	if _, err := service.DrawPrize(Wheel{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestSeededDrawsAreReproducible(t *testing.T) {
	t.Parallel()
	wheel := mustWheel(t, "classic", []SpinPrize{
		{Name: "a", Weight: 1},
		{Name: "b", Weight: 2},
		{Name: "c", Weight: 3},
	})
	drawSequence := func() []string {
		service := mustNewService(t, newStubStore(), newStubCatalog(), NewFixedClock(tuesdayNoon), WithRandomSource(NewSeededSource(42)))
		names := make([]string, 0, 50)
		for round := 0; round < 50; round++ {
			prize, err := service.DrawPrize(wheel)
			if err != nil {
				t.Fatalf("draw: %v", err)
			}
			names = append(names, prize.Name)
		}
		return names
	}

	first := drawSequence()
	second := drawSequence()
	for position := range first {
		if first[position] != second[position] {
			t.Fatalf("draw %d differs: %q vs %q", position, first[position], second[position])
		}
	}
}

func TestDrawDistributionFollowsWeights(t *testing.T) {
	t.Parallel()
	service := mustNewService(t, newStubStore(), newStubCatalog(), NewFixedClock(tuesdayNoon), WithRandomSource(NewSeededSource(1234)))
	wheel := mustWheel(t, "skewed", []SpinPrize{
		{Name: "a", Weight: 1},
		{Name: "b", Weight: 1},
		{Name: "c", Weight: 8},
	})

	const draws = 100000
	counts := map[string]int{}
	for round := 0; round < draws; round++ {
		prize, err := service.DrawPrize(wheel)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		counts[prize.Name]++
	}
	if len(counts) != 3 {
		t.Fatalf("drew a prize outside the wheel: %v", counts)
	}
	share := float64(counts["c"]) / draws
	if share < 0.78 || share > 0.82 {
		t.Fatalf("expected c near 80%%, got %.4f", share)
	}
}

func TestDrawWeighted(t *testing.T) {
	t.Parallel()
	random := NewSeededSource(9)

	if _, err := DrawWeighted(random, nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for empty candidates, got %v", err)
	}
	if _, err := DrawWeighted(random, []WeightedCandidate{{ID: "a", Weight: 0}}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for zero weight, got %v", err)
	}
	winner, err := DrawWeighted(random, []WeightedCandidate{{ID: "only", Weight: 3}})
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if winner != "only" {
		t.Fatalf("expected only candidate, got %q", winner)
	}
}
