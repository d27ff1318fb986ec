package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type listCall struct {
	tier       Tier
	parentTier Tier
	parentCode string
}

type fakeLister struct {
	mu    sync.Mutex
	calls []listCall
	fail  map[Tier]error
	block chan struct{}
}

func (f *fakeLister) List(_ context.Context, tier, parentTier Tier, parentCode string) ([]Area, error) {
	f.mu.Lock()
	f.calls = append(f.calls, listCall{tier, parentTier, parentCode})
	block := f.block
	err := f.fail[tier]
	f.mu.Unlock()

	if block != nil && tier == TierProvince {
		<-block
	}
	if err != nil {
		return nil, err
	}
	if tier == TierDistrict && parentCode == "no-districts" {
		return []Area{}, nil
	}
	return []Area{{Code: parentCode + "/" + string(tier) + "/1", Name: string(tier) + " one"}}, nil
}

func TestCascade_SelectChain(t *testing.T) {
	fl := &fakeLister{}
	c := NewCascade(fl)
	ctx := context.Background()

	c.Load(ctx)
	c.SelectRegion(ctx, "r1")
	c.SelectProvince(ctx, "p1")
	c.SelectDistrict(ctx, "d1")
	c.SelectCity(ctx, "c1")
	c.SelectBarangay("b1")

	want := Selection{Region: "r1", Province: "p1", District: "d1", City: "c1", Barangay: "b1"}
	if got := c.Selection(); got != want {
		t.Errorf("selection = %+v, want %+v", got, want)
	}
	for _, tier := range []Tier{TierRegion, TierProvince, TierDistrict, TierCity, TierBarangay} {
		s := c.State(tier)
		if len(s.Data) != 1 || s.Loading || s.Error != "" {
			t.Errorf("%s state = %+v", tier, s)
		}
	}
	if last := fl.calls[len(fl.calls)-1]; last != (listCall{TierBarangay, TierCity, "c1"}) {
		t.Errorf("last call = %+v", last)
	}
}

func TestCascade_UpstreamChangeResetsDownstream(t *testing.T) {
	c := NewCascade(&fakeLister{})
	ctx := context.Background()

	c.Load(ctx)
	c.SelectRegion(ctx, "r1")
	c.SelectProvince(ctx, "p1")
	c.SelectDistrict(ctx, "d1")
	c.SelectCity(ctx, "c1")
	c.SelectBarangay("b1")

	c.SelectRegion(ctx, "r2")

	got := c.Selection()
	if got != (Selection{Region: "r2"}) {
		t.Errorf("selection = %+v, want only region", got)
	}
	if s := c.State(TierProvince); len(s.Data) != 1 || s.Data[0].Code != "r2/provinces/1" {
		t.Errorf("provinces = %+v, want reloaded for r2", s.Data)
	}
	for _, tier := range []Tier{TierDistrict, TierCity, TierBarangay} {
		if s := c.State(tier); len(s.Data) != 0 || s.Error != "" {
			t.Errorf("%s not reset: %+v", tier, s)
		}
	}
	if len(c.State(TierRegion).Data) != 1 {
		t.Error("region options cleared by region selection")
	}
}

func TestCascade_EmptySelectionClears(t *testing.T) {
	fl := &fakeLister{}
	c := NewCascade(fl)
	ctx := context.Background()

	c.SelectRegion(ctx, "r1")
	calls := len(fl.calls)
	c.SelectRegion(ctx, "")

	if got := c.State(TierProvince); len(got.Data) != 0 {
		t.Errorf("provinces = %+v, want empty", got.Data)
	}
	if len(fl.calls) != calls {
		t.Error("empty selection triggered a fetch")
	}
}

func TestCascade_ErrorSurfacesAsString(t *testing.T) {
	fl := &fakeLister{fail: map[Tier]error{TierProvince: errors.New("503 service unavailable")}}
	c := NewCascade(fl)

	c.SelectRegion(context.Background(), "r1")

	s := c.State(TierProvince)
	if s.Error != "503 service unavailable" {
		t.Errorf("error = %q", s.Error)
	}
	if s.Loading || s.Data != nil {
		t.Errorf("state = %+v", s)
	}
}

func TestCascade_ProvinceWithoutDistrictsLoadsCities(t *testing.T) {
	fl := &fakeLister{}
	c := NewCascade(fl)
	ctx := context.Background()

	c.SelectRegion(ctx, "r1")
	c.SelectProvince(ctx, "no-districts")

	cities := c.State(TierCity)
	if len(cities.Data) != 1 || cities.Data[0].Code != "no-districts/cities-municipalities/1" {
		t.Errorf("cities = %+v", cities.Data)
	}
	if last := fl.calls[len(fl.calls)-1]; last.parentTier != TierProvince {
		t.Errorf("cities fetched under %s, want provinces", last.parentTier)
	}
}

func TestCascade_StaleResponseDropped(t *testing.T) {
	block := make(chan struct{})
	fl := &fakeLister{block: block}
	c := NewCascade(fl)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.SelectRegion(ctx, "r1")
	}()

	waitFor(t, func() bool { return c.State(TierProvince).Loading })

	// The user picks another region before the first response arrives.
	fl.mu.Lock()
	fl.block = nil
	fl.mu.Unlock()
	c.SelectRegion(ctx, "r2")

	close(block)
	<-done

	s := c.State(TierProvince)
	if len(s.Data) != 1 || s.Data[0].Code != "r2/provinces/1" {
		t.Errorf("provinces = %+v, want r2 result", s.Data)
	}
	if s.Loading {
		t.Error("still loading")
	}
}

func TestCascade_SnapshotIsCopy(t *testing.T) {
	c := NewCascade(&fakeLister{})
	c.Load(context.Background())

	snap := c.Snapshot()
	snap.Tiers[TierRegion].Data[0].Name = "mutated"

	if c.State(TierRegion).Data[0].Name == "mutated" {
		t.Error("snapshot shares memory with cascade")
	}
	if len(snap.Tiers) != len(Tiers) {
		t.Errorf("snapshot tiers = %d", len(snap.Tiers))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met")
}
