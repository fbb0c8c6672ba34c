package land_test

import (
	"testing"
	"time"

	"torchverso/land"
	"torchverso/models"

	"github.com/stretchr/testify/require"
)

func TestStateOf(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	tests := []struct {
		name string
		plot models.Plot
		want land.VisualState
	}{
		{name: "Unowned", plot: models.Plot{ID: "a"}, want: land.Unowned},
		{name: "Bought by me", plot: models.Plot{ID: "a", Owner: "me"}, want: land.OwnedPermanent},
		{name: "Leased by me", plot: models.Plot{ID: "a", Owner: "me", RentExpires: &expires}, want: land.OwnedLeased},
		{name: "Bought by other", plot: models.Plot{ID: "a", Owner: "you"}, want: land.OwnedByOther},
		{name: "Leased by other", plot: models.Plot{ID: "a", Owner: "you", RentExpires: &expires}, want: land.OwnedByOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, land.StateOf(tt.plot, "me"))
		})
	}
}

func TestAppearance_DistinctPerState(t *testing.T) {
	states := []land.VisualState{land.Unowned, land.OwnedPermanent, land.OwnedLeased, land.OwnedByOther}
	seen := make(map[land.Appearance]land.VisualState)
	names := make(map[string]bool)
	for _, s := range states {
		a := s.Appearance()
		_, dup := seen[a]
		require.False(t, dup, "appearance of %s repeats", s)
		seen[a] = s
		names[s.String()] = true
	}
	require.Len(t, names, 4)
	require.Equal(t, uint32(0x00ffff), land.Unowned.Appearance().Border)
}
