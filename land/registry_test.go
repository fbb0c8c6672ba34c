package land_test

import (
	"errors"
	"testing"
	"time"

	"torchverso/land"
	"torchverso/models"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T, wallet int, now *time.Time) *land.Registry {
	t.Helper()
	r := land.NewRegistry("me", wallet, land.WithClock(func() time.Time { return *now }))
	require.NoError(t, r.RegisterPlot("plot_0_0_0", 5000, models.Vec3{X: 0, Z: 0}, models.Size{Width: 10, Depth: 10}))
	require.NoError(t, r.RegisterPlot("plot_0_0_1", 8000, models.Vec3{X: 10, Z: 0}, models.Size{Width: 10, Depth: 10}))
	return r
}

func TestRegistry_RegisterPlot(t *testing.T) {
	now := epoch
	r := newRegistry(t, 0, &now)

	require.NoError(t, r.RegisterPlot("plot_0_0_0", 1, models.Vec3{X: 100}, models.Size{Width: 1, Depth: 1}))
	p, ok := r.Plot("plot_0_0_0")
	require.True(t, ok)
	require.Equal(t, 5000, p.Price, "re-registration keeps the first record")

	err := r.RegisterPlot("overlap", 10, models.Vec3{X: 4, Z: 4}, models.Size{Width: 4, Depth: 4})
	require.True(t, errors.Is(err, land.ErrPlotOverlap))

	require.Error(t, r.RegisterPlot("bad", 10, models.Vec3{X: 50}, models.Size{}))
	require.Len(t, r.Plots(), 2)
}

func TestRegistry_PlotAt(t *testing.T) {
	now := epoch
	r := newRegistry(t, 0, &now)

	tests := []struct {
		name   string
		x, z   float64
		wantID string
		found  bool
	}{
		{name: "Centre", x: 0, z: 0, wantID: "plot_0_0_0", found: true},
		{name: "Inside second", x: 12, z: -4.9, wantID: "plot_0_0_1", found: true},
		{name: "Shared edge is outside both", x: 5, z: 0, found: false},
		{name: "Far away", x: 100, z: 100, found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := r.PlotAt(tt.x, tt.z)
			require.Equal(t, tt.found, ok)
			if tt.found {
				require.Equal(t, tt.wantID, p.ID)
			}
		})
	}
}

func TestRegistry_Buy(t *testing.T) {
	tests := []struct {
		name       string
		wallet     int
		prepare    func(r *land.Registry)
		plotID     string
		wantErr    error
		wantWallet int
		wantOwner  string
	}{
		{
			name:       "Insufficient funds leaves state unchanged",
			wallet:     4000,
			plotID:     "plot_0_0_0",
			wantErr:    land.ErrInsufficientFunds,
			wantWallet: 4000,
		},
		{
			name:       "Successful purchase",
			wallet:     10000,
			plotID:     "plot_0_0_0",
			wantWallet: 5000,
			wantOwner:  "me",
		},
		{
			name:   "Plot held by someone else",
			wallet: 10000,
			prepare: func(r *land.Registry) {
				r.ApplyRemoteClaim("plot_0_0_0", "other", nil)
			},
			plotID:     "plot_0_0_0",
			wantErr:    land.ErrPlotUnavailable,
			wantWallet: 10000,
			wantOwner:  "other",
		},
		{
			name:       "Unknown plot",
			wallet:     10000,
			plotID:     "nope",
			wantErr:    land.ErrPlotNotFound,
			wantWallet: 10000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := epoch
			r := newRegistry(t, tt.wallet, &now)
			if tt.prepare != nil {
				tt.prepare(r)
			}

			rc, err := r.Buy(tt.plotID, "me")
			require.Equal(t, tt.wantWallet, r.Wallet())
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
				require.Equal(t, 5000, rc.Charged)
			}
			p, ok := r.Plot(tt.plotID)
			if ok {
				require.Equal(t, tt.wantOwner, p.Owner)
				require.Nil(t, p.RentExpires)
			}
		})
	}
}

func TestRegistry_Rent(t *testing.T) {
	tests := []struct {
		name       string
		kind       land.RentKind
		wallet     int
		wantErr    error
		wantWallet int
		wantExpiry time.Duration
	}{
		{name: "One week at 5%", kind: land.Rent1Week, wallet: 10000, wantWallet: 9750, wantExpiry: 7 * 24 * time.Hour},
		{name: "One day at 1%", kind: land.Rent24h, wallet: 10000, wantWallet: 9950, wantExpiry: 24 * time.Hour},
		{name: "One month at 15%", kind: land.Rent1Month, wallet: 10000, wantWallet: 9250, wantExpiry: 30 * 24 * time.Hour},
		{name: "One year at full price", kind: land.Rent1Year, wallet: 10000, wantWallet: 5000, wantExpiry: 365 * 24 * time.Hour},
		{name: "Cannot afford the year", kind: land.Rent1Year, wallet: 4999, wantErr: land.ErrInsufficientFunds, wantWallet: 4999},
		{name: "Unknown kind", kind: "2d", wallet: 10000, wantErr: land.ErrUnknownRentKind, wantWallet: 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := epoch
			r := newRegistry(t, tt.wallet, &now)

			_, err := r.Rent("plot_0_0_0", "me", tt.kind)
			require.Equal(t, tt.wantWallet, r.Wallet())
			p, _ := r.Plot("plot_0_0_0")
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				require.True(t, p.Available())
				require.Nil(t, p.RentExpires)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "me", p.Owner)
			require.NotNil(t, p.RentExpires)
			require.Equal(t, now.Add(tt.wantExpiry), *p.RentExpires)
		})
	}
}

func TestRegistry_CheckExpirations(t *testing.T) {
	now := epoch
	r := newRegistry(t, 10000, &now)

	_, err := r.Rent("plot_0_0_0", "me", land.Rent24h)
	require.NoError(t, err)
	_, err = r.Buy("plot_0_0_1", "me")
	require.NoError(t, err)

	require.Empty(t, r.CheckExpirations(now.Add(23*time.Hour)))

	later := now.Add(48 * time.Hour)
	require.Equal(t, []string{"plot_0_0_0"}, r.CheckExpirations(later))
	first := r.Plots()
	require.Empty(t, r.CheckExpirations(later))
	require.Equal(t, first, r.Plots())

	leased, _ := r.Plot("plot_0_0_0")
	require.True(t, leased.Available())
	require.Nil(t, leased.RentExpires)
	owned, _ := r.Plot("plot_0_0_1")
	require.Equal(t, "me", owned.Owner)
}

func TestRegistry_CheckExpirations_IgnoresOtherOwners(t *testing.T) {
	now := epoch
	r := newRegistry(t, 0, &now)
	past := now.Add(-time.Hour)
	r.ApplyRemoteClaim("plot_0_0_0", "other", &past)

	require.Empty(t, r.CheckExpirations(now))
	p, _ := r.Plot("plot_0_0_0")
	require.Equal(t, "other", p.Owner)
}

func TestRegistry_Advance(t *testing.T) {
	now := epoch
	r := land.NewRegistry("me", 10000,
		land.WithClock(func() time.Time { return now }),
		land.WithExpiryInterval(time.Minute),
	)
	require.NoError(t, r.RegisterPlot("p", 100, models.Vec3{}, models.Size{Width: 2, Depth: 2}))
	_, err := r.Rent("p", "me", land.Rent24h)
	require.NoError(t, err)

	now = now.Add(25 * time.Hour)
	require.Empty(t, r.Advance(30*time.Second))
	p, _ := r.Plot("p")
	require.False(t, p.Available(), "no sweep before the interval elapses")

	require.Equal(t, []string{"p"}, r.Advance(30*time.Second))
	p, _ = r.Plot("p")
	require.True(t, p.Available())
}

func TestRegistry_Rollback(t *testing.T) {
	now := epoch
	r := newRegistry(t, 10000, &now)

	rc, err := r.Rent("plot_0_0_0", "me", land.Rent1Week)
	require.NoError(t, err)
	r.Rollback(rc)

	require.Equal(t, 10000, r.Wallet())
	p, _ := r.Plot("plot_0_0_0")
	require.True(t, p.Available())
	require.Nil(t, p.RentExpires)
}

func TestRegistry_Snapshot(t *testing.T) {
	now := epoch
	r := newRegistry(t, 20000, &now)
	_, err := r.Buy("plot_0_0_0", "me")
	require.NoError(t, err)
	_, err = r.Rent("plot_0_0_1", "me", land.Rent1Month)
	require.NoError(t, err)

	snap := r.ExportSnapshot()
	require.Equal(t, 13800, snap.Wallet)
	require.Len(t, snap.Plots, 2)
	require.Nil(t, snap.Plots[0].RentExpires)
	require.NotNil(t, snap.Plots[1].RentExpires)

	restored := newRegistry(t, 0, &now)
	require.NoError(t, restored.ImportSnapshot(snap))
	require.Equal(t, r.Wallet(), restored.Wallet())
	for _, want := range r.Plots() {
		got, ok := restored.Plot(want.ID)
		require.True(t, ok)
		require.Equal(t, want.Owner, got.Owner)
		if want.RentExpires == nil {
			require.Nil(t, got.RentExpires)
		} else {
			require.Equal(t, want.RentExpires.UnixMilli(), got.RentExpires.UnixMilli())
		}
	}
}

func TestRegistry_ImportSnapshot_Legacy(t *testing.T) {
	now := epoch
	r := newRegistry(t, 0, &now)

	err := r.ImportSnapshot(models.LandState{
		Wallet: 700,
		OwnedPlots: []models.PlotRecord{
			{ID: "plot_0_0_1"},
			{ID: "gone"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 700, r.Wallet())
	p, _ := r.Plot("plot_0_0_1")
	require.Equal(t, "me", p.Owner)

	require.True(t, errors.Is(r.ImportSnapshot(models.LandState{Wallet: -1}), land.ErrInvalidSnapshot))
	require.Equal(t, 700, r.Wallet())
}

func TestRegistry_ExportSkipsUnowned(t *testing.T) {
	now := epoch
	r := newRegistry(t, 100, &now)
	snap := r.ExportSnapshot()
	require.Equal(t, 100, snap.Wallet)
	require.Empty(t, snap.Plots)
}

func TestRegistry_ReleaseRemoteClaim(t *testing.T) {
	now := epoch
	r := newRegistry(t, 10000, &now)
	r.ApplyRemoteClaim("plot_0_0_0", "other", nil)
	r.ReleaseRemoteClaim("plot_0_0_0")
	p, _ := r.Plot("plot_0_0_0")
	require.True(t, p.Available())

	_, err := r.Buy("plot_0_0_1", "me")
	require.NoError(t, err)
	r.ReleaseRemoteClaim("plot_0_0_1")
	p, _ = r.Plot("plot_0_0_1")
	require.Equal(t, "me", p.Owner, "local ownership is not released by remote events")
}

func TestParseRentKind(t *testing.T) {
	for in, want := range map[string]land.RentKind{
		"24h": land.Rent24h, "1w": land.Rent1Week, "1week": land.Rent1Week,
		"1m": land.Rent1Month, "1month": land.Rent1Month, "1y": land.Rent1Year, "1year": land.Rent1Year,
	} {
		got, err := land.ParseRentKind(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := land.ParseRentKind("forever")
	require.True(t, errors.Is(err, land.ErrUnknownRentKind))

	opt, err := land.RentOptionFor(land.Rent1Month)
	require.NoError(t, err)
	require.InDelta(t, 0.15, opt.Multiplier(), 1e-9)
	require.Equal(t, 750, opt.Price(5000))
}
