package projects

import (
	"fmt"
	"strings"
	"time"

	"github.com/abemis/portal/lifecycle"
)

// MockData is the static dataset behind the portal's dropdowns and the
// landing page's sample projects.
type MockData struct {
	Classifications []string  `json:"classifications"`
	Programs        []string  `json:"programs"`
	FundSources     []string  `json:"fundSources"`
	EquipmentTypes  []string  `json:"equipmentTypes"`
	Projects        []Project `json:"projects"`
}

type sampleProject struct {
	kind     Kind
	title    string
	program  string
	region   string
	province string
	city     string
	status   lifecycle.Stage
	progress []float64
	amount   float64
}

var samples = []sampleProject{
	{KindInfra, "Construction of Small Farm Reservoir", "Rice", "Central Luzon", "Nueva Ecija", "Cabanatuan City", lifecycle.StageImplementation, []float64{30, 25}, 4_500_000},
	{KindInfra, "Rehabilitation of Communal Irrigation System", "Rice", "Western Visayas", "Iloilo", "Pototan", lifecycle.StageCompleted, []float64{40, 35, 25}, 12_000_000},
	{KindMachinery, "Distribution of Four-Wheel Tractors", "Corn", "Cagayan Valley", "Isabela", "Ilagan City", lifecycle.StageForDelivery, nil, 8_750_000},
	{KindMachinery, "Provision of Combine Harvesters", "Rice", "Ilocos Region", "Pangasinan", "Urdaneta City", lifecycle.StageInventory, nil, 15_200_000},
	{KindFMR, "Concreting of Barangay Tagumpay Farm-to-Market Road", "High Value Crops", "Northern Mindanao", "Bukidnon", "Valencia City", lifecycle.StageProcurement, nil, 22_000_000},
	{KindFMR, "Upgrading of Sitio Maligaya Access Road", "Corn", "SOCCSKSARGEN", "South Cotabato", "Koronadal City", lifecycle.StageProposal, nil, 9_300_000},
	{KindRAED, "Greenhouse and Postharvest Facility Package", "High Value Crops", "CALABARZON", "Batangas", "Lipa City", lifecycle.StageImplementation, []float64{20}, 6_400_000},
	{KindRAED, "Livestock Production Support Package", "Livestock", "Bicol Region", "Camarines Sur", "Pili", lifecycle.StageInventory, []float64{50, 50}, 3_100_000},
}

// sampleSequenceBase keeps sample tracking codes clear of the sequence
// numbers the store hands out.
const sampleSequenceBase = 900_000

// NewMockData builds the sample dataset. Sample dates are fixed relative to
// the start of the given year.
func NewMockData(coder *TrackingCoder, year int) (*MockData, error) {
	start := time.Date(year, time.January, 15, 0, 0, 0, 0, time.UTC)
	out := &MockData{
		Classifications: []string{"Infrastructure", "Machinery", "Farm-to-Market Road", "RAED Package"},
		Programs:        []string{"Rice", "Corn", "High Value Crops", "Livestock", "Organic Agriculture"},
		FundSources:     []string{"GAA", "Local Government", "Foreign Assisted", "Others"},
		EquipmentTypes:  []string{"Four-Wheel Tractor", "Hand Tractor", "Combine Harvester", "Rice Transplanter", "Mechanical Dryer"},
	}

	for i, s := range samples {
		code, err := coder.Encode(s.kind, year, sampleSequenceBase+uint64(i+1))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		created := start.AddDate(0, 0, 7*i)
		target := start.AddDate(1, 0, 0)

		state, err := lifecycle.NewState(s.kind.Track(), target)
		if err != nil {
			return nil, err
		}
		state.Status = s.status
		state.Documents = map[lifecycle.Stage][]lifecycle.Document{}
		for _, st := range s.kind.Track().Stages()[:lifecycle.StageIndex(s.kind.Track(), s.status)+1] {
			state.Documents[st] = lifecycle.DefaultDocuments(st)
		}
		for j, pct := range s.progress {
			state.Accomplishments = append(state.Accomplishments, lifecycle.Accomplishment{
				ID:      fmt.Sprintf("sample-%d-%d", i+1, j+1),
				Date:    created.AddDate(0, 2*(j+1), 0),
				Percent: pct,
			})
		}

		out.Projects = append(out.Projects, Project{
			ID:           fmt.Sprintf("sample-%d", i+1),
			TrackingCode: code,
			Kind:         s.kind,
			Details: Draft{
				Title:            s.title,
				Classification:   s.kind.Label(),
				Program:          s.program,
				FundSource:       "GAA",
				BudgetYear:       year,
				AllocatedAmount:  s.amount,
				Location:         Location{Region: s.region, Province: s.province, City: s.city},
				TargetCompletion: target.Format(time.DateOnly),
			},
			Lifecycle: *state,
			CreatedAt: created,
			UpdatedAt: created,
		})
	}
	return out, nil
}

// TrackResult is one landing-page search hit.
type TrackResult struct {
	TrackingCode string          `json:"trackingCode"`
	Title        string          `json:"title"`
	Kind         Kind            `json:"kind"`
	Status       lifecycle.Stage `json:"status"`
	Progress     float64         `json:"progress"`
	Location     string          `json:"location"`
}

// Track searches projects by exact tracking code or title substring,
// case-insensitively. A blank query finds nothing.
func Track(query string, sets ...[]Project) []TrackResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	var out []TrackResult
	for _, set := range sets {
		for i := range set {
			p := &set[i]
			if !matches(p, query) {
				continue
			}
			out = append(out, TrackResult{
				TrackingCode: p.TrackingCode,
				Title:        p.Details.Title,
				Kind:         p.Kind,
				Status:       p.Lifecycle.Status,
				Progress:     p.Lifecycle.Progress(),
				Location:     joinNonEmpty(", ", p.Details.Location.City, p.Details.Location.Province, p.Details.Location.Region),
			})
		}
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
