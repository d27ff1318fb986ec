package location

import (
	"context"
	"sync"
)

// Lister fetches one tier. *Client implements it.
type Lister interface {
	List(ctx context.Context, tier Tier, parentTier Tier, parentCode string) ([]Area, error)
}

// Cascade is a dependent selection over the hierarchy. Choosing a code at
// one tier clears every tier below it and loads the options of the next.
//
// Fetches run outside the lock. A response that arrives after its parent
// selection has changed is dropped.
type Cascade struct {
	lister Lister

	mu        sync.Mutex
	selection Selection
	tiers     map[Tier]*TierState
	gen       map[Tier]uint64
}

// Snapshot is a copy of the cascade state.
type Snapshot struct {
	Selection Selection          `json:"selection"`
	Tiers     map[Tier]TierState `json:"tiers"`
}

// NewCascade creates an empty cascade.
func NewCascade(lister Lister) *Cascade {
	c := &Cascade{
		lister: lister,
		tiers:  make(map[Tier]*TierState, len(Tiers)),
		gen:    make(map[Tier]uint64, len(Tiers)),
	}
	for _, t := range Tiers {
		c.tiers[t] = &TierState{}
	}
	return c
}

// Load fetches the region list.
func (c *Cascade) Load(ctx context.Context) {
	c.load(ctx, TierRegion, "", "")
}

// SelectRegion chooses a region and loads its provinces.
func (c *Cascade) SelectRegion(ctx context.Context, code string) {
	c.choose(TierRegion, code)
	c.load(ctx, TierProvince, TierRegion, code)
}

// SelectProvince chooses a province and loads its districts. Provinces
// without districts get their cities loaded directly.
func (c *Cascade) SelectProvince(ctx context.Context, code string) {
	c.choose(TierProvince, code)
	if ok := c.load(ctx, TierDistrict, TierProvince, code); ok && len(c.State(TierDistrict).Data) == 0 {
		c.load(ctx, TierCity, TierProvince, code)
	}
}

// SelectDistrict chooses a district and loads its cities.
func (c *Cascade) SelectDistrict(ctx context.Context, code string) {
	c.choose(TierDistrict, code)
	c.load(ctx, TierCity, TierDistrict, code)
}

// SelectCity chooses a city or municipality and loads its barangays.
func (c *Cascade) SelectCity(ctx context.Context, code string) {
	c.choose(TierCity, code)
	c.load(ctx, TierBarangay, TierCity, code)
}

// SelectBarangay chooses a barangay.
func (c *Cascade) SelectBarangay(code string) {
	c.choose(TierBarangay, code)
}

// Selection returns the current selection.
func (c *Cascade) Selection() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// State returns a copy of one tier's state.
func (c *Cascade) State(t Tier) TierState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.tiers[t])
}

// Snapshot returns a copy of the whole cascade.
func (c *Cascade) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	tiers := make(map[Tier]TierState, len(c.tiers))
	for t, s := range c.tiers {
		tiers[t] = copyState(s)
	}
	return Snapshot{Selection: c.selection, Tiers: tiers}
}

// choose records code at tier t and resets every tier below it.
func (c *Cascade) choose(t Tier, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection.set(t, code)
	for _, below := range t.below() {
		c.selection.set(below, "")
		*c.tiers[below] = TierState{}
		c.gen[below]++
	}
}

// load fetches tier under parentCode. It reports whether the result was
// applied. An empty parentCode for a child tier leaves the tier empty.
func (c *Cascade) load(ctx context.Context, tier, parentTier Tier, parentCode string) bool {
	if tier != TierRegion && parentCode == "" {
		return false
	}

	c.mu.Lock()
	c.gen[tier]++
	gen := c.gen[tier]
	c.tiers[tier].Loading = true
	c.tiers[tier].Error = ""
	c.mu.Unlock()

	areas, err := c.lister.List(ctx, tier, parentTier, parentCode)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[tier] != gen {
		return false
	}
	state := c.tiers[tier]
	state.Loading = false
	if err != nil {
		state.Data = nil
		state.Error = err.Error()
		return false
	}
	state.Data = areas
	return true
}

func copyState(s *TierState) TierState {
	out := *s
	if s.Data != nil {
		out.Data = append([]Area(nil), s.Data...)
	}
	return out
}
