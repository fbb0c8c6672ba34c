// Package land tracks plot ownership and leases for one local actor and
// mediates purchases and rentals against that actor's wallet.
//
// A Registry is not safe for concurrent use; its owner serialises access.
package land

import (
	"fmt"
	"time"

	"torchverso/models"
)

type Registry struct {
	plots      map[string]*models.Plot
	order      []string
	wallet     int
	localActor string

	now            func() time.Time
	expiryInterval time.Duration
	sinceCheck     time.Duration
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithExpiryInterval sets how much Advance time passes between lease sweeps.
func WithExpiryInterval(d time.Duration) Option {
	return func(r *Registry) { r.expiryInterval = d }
}

func NewRegistry(localActor string, wallet int, opts ...Option) *Registry {
	if wallet < 0 {
		wallet = 0
	}
	r := &Registry{
		plots:          make(map[string]*models.Plot),
		wallet:         wallet,
		localActor:     localActor,
		now:            time.Now,
		expiryInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Receipt describes a completed Buy or Rent so that it can be rolled back.
type Receipt struct {
	PlotID      string
	Actor       string
	Charged     int
	Kind        string
	RentExpires *time.Time
}

func (r *Registry) LocalActor() string {
	return r.localActor
}

func (r *Registry) Wallet() int {
	return r.wallet
}

// RegisterPlot inserts an unowned plot. Registering an id twice keeps the
// first record.
func (r *Registry) RegisterPlot(id string, price int, position models.Vec3, size models.Size) error {
	if _, ok := r.plots[id]; ok {
		return nil
	}
	if price < 0 || size.Width <= 0 || size.Depth <= 0 {
		return fmt.Errorf("register plot %s: bad price or size", id)
	}
	for _, otherID := range r.order {
		other := r.plots[otherID]
		if overlaps(position, size, other.Position, other.Size) {
			return fmt.Errorf("register plot %s: %w (%s)", id, ErrPlotOverlap, otherID)
		}
	}
	r.plots[id] = &models.Plot{
		ID:       id,
		Price:    price,
		Position: position,
		Size:     size,
	}
	r.order = append(r.order, id)
	return nil
}

func overlaps(pa models.Vec3, sa models.Size, pb models.Vec3, sb models.Size) bool {
	dx := pa.X - pb.X
	if dx < 0 {
		dx = -dx
	}
	dz := pa.Z - pb.Z
	if dz < 0 {
		dz = -dz
	}
	return dx < (sa.Width+sb.Width)/2 && dz < (sa.Depth+sb.Depth)/2
}

func (r *Registry) Plot(id string) (models.Plot, bool) {
	p, ok := r.plots[id]
	if !ok {
		return models.Plot{}, false
	}
	return clonePlot(p), true
}

// PlotAt returns the plot whose footprint strictly contains (x, z).
func (r *Registry) PlotAt(x, z float64) (models.Plot, bool) {
	for _, id := range r.order {
		p := r.plots[id]
		if p.Contains(x, z) {
			return clonePlot(p), true
		}
	}
	return models.Plot{}, false
}

// Plots returns every plot in registration order.
func (r *Registry) Plots() []models.Plot {
	out := make([]models.Plot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, clonePlot(r.plots[id]))
	}
	return out
}

func (r *Registry) Buy(plotID, actorID string) (Receipt, error) {
	p, err := r.available(plotID)
	if err != nil {
		return Receipt{}, err
	}
	if r.wallet < p.Price {
		return Receipt{}, fmt.Errorf("buy %s for %d with %d: %w", plotID, p.Price, r.wallet, ErrInsufficientFunds)
	}
	r.wallet -= p.Price
	p.Owner = actorID
	p.RentExpires = nil
	return Receipt{PlotID: plotID, Actor: actorID, Charged: p.Price, Kind: "buy"}, nil
}

func (r *Registry) Rent(plotID, actorID string, kind RentKind) (Receipt, error) {
	opt, err := RentOptionFor(kind)
	if err != nil {
		return Receipt{}, err
	}
	p, err := r.available(plotID)
	if err != nil {
		return Receipt{}, err
	}
	price := opt.Price(p.Price)
	if r.wallet < price {
		return Receipt{}, fmt.Errorf("rent %s for %d with %d: %w", plotID, price, r.wallet, ErrInsufficientFunds)
	}
	expires := r.now().Add(opt.Duration)
	r.wallet -= price
	p.Owner = actorID
	p.RentExpires = &expires
	return Receipt{
		PlotID:      plotID,
		Actor:       actorID,
		Charged:     price,
		Kind:        string(kind),
		RentExpires: copyTime(&expires),
	}, nil
}

func (r *Registry) available(plotID string) (*models.Plot, error) {
	p, ok := r.plots[plotID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlotNotFound, plotID)
	}
	if !p.Available() {
		return nil, fmt.Errorf("%w: %s", ErrPlotUnavailable, plotID)
	}
	return p, nil
}

// Rollback undoes a receipt if the plot is still held by its actor.
func (r *Registry) Rollback(rc Receipt) {
	p, ok := r.plots[rc.PlotID]
	if !ok || p.Owner != rc.Actor {
		return
	}
	p.Owner = ""
	p.RentExpires = nil
	r.wallet += rc.Charged
}

// CheckExpirations reverts every lease held by the local actor that
// expires at or before now. It returns the reverted plot ids.
func (r *Registry) CheckExpirations(now time.Time) []string {
	var expired []string
	for _, id := range r.order {
		p := r.plots[id]
		if p.Owner != r.localActor || p.RentExpires == nil {
			continue
		}
		if p.RentExpires.After(now) {
			continue
		}
		p.Owner = ""
		p.RentExpires = nil
		expired = append(expired, id)
	}
	return expired
}

// Advance accumulates elapsed time and sweeps leases once per expiry
// interval.
func (r *Registry) Advance(dt time.Duration) []string {
	r.sinceCheck += dt
	if r.sinceCheck < r.expiryInterval {
		return nil
	}
	r.sinceCheck = 0
	return r.CheckExpirations(r.now())
}

// ApplyRemoteClaim records ownership held elsewhere, typically by another
// player. Claims for unknown plots are ignored.
func (r *Registry) ApplyRemoteClaim(plotID, owner string, rentExpires *time.Time) {
	p, ok := r.plots[plotID]
	if !ok || owner == "" {
		return
	}
	p.Owner = owner
	p.RentExpires = copyTime(rentExpires)
}

// ReleaseRemoteClaim frees a plot held by somebody other than the local actor.
func (r *Registry) ReleaseRemoteClaim(plotID string) {
	p, ok := r.plots[plotID]
	if !ok || p.Owner == r.localActor {
		return
	}
	p.Owner = ""
	p.RentExpires = nil
}

// ExportSnapshot returns the wallet and every owned plot.
func (r *Registry) ExportSnapshot() models.LandState {
	state := models.LandState{Wallet: r.wallet, Plots: []models.PlotRecord{}}
	for _, id := range r.order {
		p := r.plots[id]
		if p.Owner == "" {
			continue
		}
		rec := models.PlotRecord{ID: p.ID, Owner: p.Owner}
		if p.RentExpires != nil {
			ms := p.RentExpires.UnixMilli()
			rec.RentExpires = &ms
		}
		state.Plots = append(state.Plots, rec)
	}
	return state
}

// ImportSnapshot restores a snapshot produced by ExportSnapshot. Records
// for plots missing from the layout are skipped and records without an
// owner are attributed to the local actor.
func (r *Registry) ImportSnapshot(state models.LandState) error {
	if state.Wallet < 0 {
		return fmt.Errorf("%w: negative wallet %d", ErrInvalidSnapshot, state.Wallet)
	}
	records := state.Plots
	if len(records) == 0 {
		records = state.OwnedPlots
	}
	r.wallet = state.Wallet
	for _, rec := range records {
		p, ok := r.plots[rec.ID]
		if !ok {
			continue
		}
		p.Owner = rec.Owner
		if p.Owner == "" {
			p.Owner = r.localActor
		}
		p.RentExpires = nil
		if rec.RentExpires != nil {
			t := time.UnixMilli(*rec.RentExpires)
			p.RentExpires = &t
		}
	}
	return nil
}

func clonePlot(p *models.Plot) models.Plot {
	out := *p
	out.RentExpires = copyTime(p.RentExpires)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
