// Package location fetches the Philippine Standard Geographic Code
// hierarchy (region, province, district, city or municipality, barangay)
// and tracks a cascading selection over it.
package location

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrUpstream      = errors.New("location upstream error")
	ErrInvalidTier   = errors.New("invalid location tier")
	ErrParentMissing = errors.New("parent code is required")
	ErrInvalidCode   = errors.New("invalid location code")
)

// Tier is one level of the hierarchy.
type Tier string

const (
	TierRegion   Tier = "regions"
	TierProvince Tier = "provinces"
	TierDistrict Tier = "districts"
	TierCity     Tier = "cities-municipalities"
	TierBarangay Tier = "barangays"
)

// Tiers lists the hierarchy top down.
var Tiers = []Tier{TierRegion, TierProvince, TierDistrict, TierCity, TierBarangay}

// ParseTier validates s as a tier name.
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

// String returns the string representation of the tier.
func (t Tier) String() string {
	return string(t)
}

// below returns the tiers under t.
func (t Tier) below() []Tier {
	for i, tier := range Tiers {
		if tier == t {
			return Tiers[i+1:]
		}
	}
	return nil
}

// Area is one entry returned by the upstream API. Only the fields the portal
// uses are decoded.
type Area struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	RegionCode   string `json:"regionCode,omitempty"`
	ProvinceCode string `json:"provinceCode,omitempty"`
	DistrictCode string `json:"districtCode,omitempty"`
	CityCode     string `json:"cityCode,omitempty"`
}

// TierState is what a dropdown renders: the options, whether a fetch is in
// flight, and the last error message.
type TierState struct {
	Data    []Area `json:"data"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Selection holds the chosen code per tier. The empty string means no
// selection.
type Selection struct {
	Region   string `json:"region"`
	Province string `json:"province"`
	District string `json:"district"`
	City     string `json:"city"`
	Barangay string `json:"barangay"`
}

func (s *Selection) set(t Tier, code string) {
	switch t {
	case TierRegion:
		s.Region = code
	case TierProvince:
		s.Province = code
	case TierDistrict:
		s.District = code
	case TierCity:
		s.City = code
	case TierBarangay:
		s.Barangay = code
	}
}

// Get returns the code chosen for t.
func (s Selection) Get(t Tier) string {
	switch t {
	case TierRegion:
		return s.Region
	case TierProvince:
		return s.Province
	case TierDistrict:
		return s.District
	case TierCity:
		return s.City
	case TierBarangay:
		return s.Barangay
	}
	return ""
}
