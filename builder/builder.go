package builder

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"torchverso/economy"
	"torchverso/land"
	"torchverso/models"
)

var (
	ErrUnknownPrefab = errors.New("unknown prefab")
	ErrNoBuilding    = errors.New("no building at index")
)

type Prefab struct {
	Type    string  `json:"type"`
	Cost    int     `json:"cost"`
	Income  int     `json:"income"`
	OffsetY float64 `json:"offsetY"`
}

var prefabs = map[string]Prefab{
	"office":      {Type: "office", Cost: 500, Income: 5, OffsetY: 5},
	"residential": {Type: "residential", Cost: 200, Income: 2, OffsetY: 2},
	"park":        {Type: "park", Cost: 100, Income: 1, OffsetY: 0.25},
	"lamp":        {Type: "lamp", Cost: 50, Income: 0, OffsetY: 2},
	"bench":       {Type: "bench", Cost: 25, Income: 0, OffsetY: 0.25},
}

func Lookup(typ string) (Prefab, error) {
	p, ok := prefabs[typ]
	if !ok {
		return Prefab{}, fmt.Errorf("%w: %q", ErrUnknownPrefab, typ)
	}
	return p, nil
}

// Catalogue lists the prefabs cheapest first.
func Catalogue() []Prefab {
	out := make([]Prefab, 0, len(prefabs))
	for _, p := range prefabs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	return out
}

type PlotLocator interface {
	PlotAt(x, z float64) (models.Plot, bool)
}

type Builder struct {
	land     PlotLocator
	econ     *economy.Economy
	gridSize float64
	objects  []models.Building
}

func New(plots PlotLocator, econ *economy.Economy) *Builder {
	return &Builder{land: plots, econ: econ, gridSize: 1}
}

func (b *Builder) Buildings() []models.Building {
	out := make([]models.Building, len(b.objects))
	copy(out, b.objects)
	return out
}

func (b *Builder) snap(v float64) float64 {
	return math.Round(v/b.gridSize) * b.gridSize
}

func (b *Builder) requireOwner(actor string, x, z float64) error {
	p, ok := b.land.PlotAt(x, z)
	if !ok || p.Owner != actor {
		return fmt.Errorf("(%.1f, %.1f): %w", x, z, land.ErrNotOwner)
	}
	return nil
}

// Place charges the prefab cost and puts a building on land owned by actor.
func (b *Builder) Place(actor, typ string, x, z, rotation float64) (models.Building, error) {
	prefab, err := Lookup(typ)
	if err != nil {
		return models.Building{}, err
	}
	x, z = b.snap(x), b.snap(z)
	if err := b.requireOwner(actor, x, z); err != nil {
		return models.Building{}, err
	}
	if err := b.econ.Spend(prefab.Cost); err != nil {
		return models.Building{}, err
	}
	if prefab.Income > 0 {
		b.econ.AddIncomeSource(prefab.Income)
	}
	bld := models.Building{Type: typ, X: x, Y: prefab.OffsetY, Z: z, Rotation: rotation}
	b.objects = append(b.objects, bld)
	return bld, nil
}

// Remove demolishes a building without refund and drops its income.
func (b *Builder) Remove(actor string, index int) (models.Building, error) {
	if index < 0 || index >= len(b.objects) {
		return models.Building{}, fmt.Errorf("%w: %d", ErrNoBuilding, index)
	}
	bld := b.objects[index]
	if err := b.requireOwner(actor, bld.X, bld.Z); err != nil {
		return models.Building{}, err
	}
	if prefab, err := Lookup(bld.Type); err == nil && prefab.Income > 0 {
		b.econ.AddIncomeSource(-prefab.Income)
	}
	b.objects = append(b.objects[:index], b.objects[index+1:]...)
	return bld, nil
}

func (b *Builder) Move(actor string, index int, x, z, rotation float64) (models.Building, error) {
	if index < 0 || index >= len(b.objects) {
		return models.Building{}, fmt.Errorf("%w: %d", ErrNoBuilding, index)
	}
	bld := b.objects[index]
	if err := b.requireOwner(actor, bld.X, bld.Z); err != nil {
		return models.Building{}, err
	}
	x, z = b.snap(x), b.snap(z)
	if err := b.requireOwner(actor, x, z); err != nil {
		return models.Building{}, err
	}
	bld.X, bld.Z, bld.Rotation = x, z, rotation
	b.objects[index] = bld
	return bld, nil
}

// Restore replaces the building list from a save without charging.
// Unknown prefab types are dropped.
func (b *Builder) Restore(buildings []models.Building) {
	b.objects = b.objects[:0]
	for _, bld := range buildings {
		if _, err := Lookup(bld.Type); err != nil {
			continue
		}
		b.objects = append(b.objects, bld)
	}
}
