package mock

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/tmap/internal/core/domain"
)

// BengaluruCenter is the default simulation origin.
var BengaluruCenter = domain.Location{Lat: 12.9716, Lng: 77.5946}

// Road names for realistic mock data
var roadNames = []string{
	"MG Road", "Outer Ring Road", "Hosur Road", "Bannerghatta Road",
	"Old Madras Road", "Tumkur Road", "Mysore Road", "Bellary Road",
	"Electronic City Expressway", "Airport Road", "Whitefield Road",
	"Sarjapur Road", "Hennur Road", "KR Puram Road", "Cunningham Road",
	"Richmond Road", "Residency Road",
}

var statuses = []domain.TrafficStatus{
	domain.StatusLow, domain.StatusMedium, domain.StatusHigh, domain.StatusSevere,
}

var (
	alertKinds = []domain.AlertType{
		domain.AlertAccident, domain.AlertConstruction, domain.AlertEvent,
		domain.AlertWeatherHazard, domain.AlertRoadClosure,
	}
	severities = []domain.AlertSeverity{domain.SeverityCritical, domain.SeverityMajor, domain.SeverityMinor}
	venues     = []string{"Freedom Park", "Cubbon Park", "Lalbagh", "Palace Grounds"}
	hazards    = []string{"Heavy rain", "Flooding", "Fallen tree"}
	closures   = []string{"metro construction", "bridge repair", "utility work"}
)

// Sensor is a simulated roadside sensor that reports one point per activity step.
type Sensor struct {
	ID       string
	Location domain.Location
	RoadName string
	Status   domain.TrafficStatus
	Speed    float64
}

// DataGenerator generates mock traffic data around a center location.
type DataGenerator struct {
	rand    *rand.Rand
	center  domain.Location
	radius  float64 // km
	sensors []*Sensor
	now     func() time.Time
}

// NewDataGenerator creates a generator placing sensors within radiusKm of center.
func NewDataGenerator(center domain.Location, radiusKm float64) *DataGenerator {
	return &DataGenerator{
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		center: center,
		radius: radiusKm,
		now:    time.Now,
	}
}

// RandomLocation returns a point uniformly spread by angle within the radius.
func (g *DataGenerator) RandomLocation() domain.Location {
	angle := g.rand.Float64() * 2 * math.Pi
	r := g.rand.Float64() * g.radius
	x := r * math.Cos(angle)
	y := r * math.Sin(angle)

	// 1 degree of latitude is about 111 km
	return domain.Location{
		Lat: g.center.Lat + y/111,
		Lng: g.center.Lng + x/(111*math.Cos(g.center.Lat*math.Pi/180)),
	}
}

// SpeedFor returns a plausible speed for the status.
func (g *DataGenerator) SpeedFor(status domain.TrafficStatus) float64 {
	switch status {
	case domain.StatusLow:
		return float64(40 + g.rand.Intn(20))
	case domain.StatusMedium:
		return float64(25 + g.rand.Intn(15))
	case domain.StatusHigh:
		return float64(10 + g.rand.Intn(15))
	case domain.StatusSevere:
		return float64(g.rand.Intn(10))
	default:
		return 30
	}
}

// GenerateSensor creates a sensor on a random road.
func (g *DataGenerator) GenerateSensor() *Sensor {
	s := &Sensor{
		ID:       fmt.Sprintf("sensor-%d", len(g.sensors)),
		Location: g.RandomLocation(),
		RoadName: roadNames[g.rand.Intn(len(roadNames))],
		Status:   g.weightedStatus([]float64{0.4, 0.3, 0.2, 0.1}),
	}
	g.sensors = append(g.sensors, s)
	return s
}

// GenerateScenario creates the sensors of a named scenario and returns how many exist.
func (g *DataGenerator) GenerateScenario(scenario string) int {
	var numSensors int
	switch scenario {
	case "quiet":
		numSensors = 10
	case "rush":
		numSensors = 60
	default:
		numSensors = 25
	}
	for i := 0; i < numSensors; i++ {
		s := g.GenerateSensor()
		if scenario == "rush" {
			s.Status = g.weightedStatus([]float64{0.1, 0.2, 0.35, 0.35})
		}
	}
	return len(g.sensors)
}

// Sensors returns all sensors.
func (g *DataGenerator) Sensors() []*Sensor {
	return g.sensors
}

// SimulateActivity drifts every sensor one status step at most and returns a reading per sensor.
func (g *DataGenerator) SimulateActivity() []domain.TrafficPoint {
	now := g.now().UTC()
	points := make([]domain.TrafficPoint, 0, len(g.sensors))
	for _, s := range g.sensors {
		// 30% chance to move one level up or down
		if g.rand.Float64() < 0.3 {
			rank := s.Status.Rank() + g.rand.Intn(3) - 1
			rank = min(max(rank, 0), len(statuses)-1)
			s.Status = statuses[rank]
		}
		s.Speed = g.SpeedFor(s.Status)
		points = append(points, domain.TrafficPoint{
			ID:        fmt.Sprintf("%s-%d", s.ID, now.UnixNano()),
			Location:  s.Location,
			Status:    s.Status,
			SpeedKmph: s.Speed,
			Timestamp: now,
			RoadName:  s.RoadName,
		})
	}
	return points
}

// GenerateMetrics folds the latest sensor readings into one record per road.
// Call it after SimulateActivity so speeds are current.
func (g *DataGenerator) GenerateMetrics() []domain.MetricsRecord {
	now := g.now().UTC()
	byRoad := make(map[string][]*Sensor)
	for _, s := range g.sensors {
		byRoad[s.RoadName] = append(byRoad[s.RoadName], s)
	}

	roads := make([]string, 0, len(byRoad))
	for road := range byRoad {
		roads = append(roads, road)
	}
	sort.Strings(roads)

	records := make([]domain.MetricsRecord, 0, len(roads))
	for _, road := range roads {
		sensors := byRoad[road]
		var speed, congestion float64
		vehicles := 0
		refs := make([]domain.Sensor, 0, len(sensors))
		for _, s := range sensors {
			speed += s.Speed
			congestion += s.Status.CongestionWeight()
			// Slower roads carry more queued vehicles
			vehicles += 50 + (s.Status.Rank()+1)*g.rand.Intn(60)
			refs = append(refs, domain.Sensor{ID: s.ID, Type: "loop", Status: domain.SensorActive})
		}
		n := float64(len(sensors))
		records = append(records, domain.MetricsRecord{
			ID:            uuid.NewString(),
			Timestamp:     now,
			Location:      sensors[0].Location,
			RoadSegmentID: segmentID(road),
			Metrics: domain.SegmentMetrics{
				AverageSpeed:    speed / n,
				VehicleCount:    vehicles,
				CongestionLevel: congestion / n,
				TrafficDensity:  float64(vehicles) / n,
			},
			Sensors: refs,
		})
	}
	return records
}

// GenerateAlert creates an incident on a random road that expires within two hours.
func (g *DataGenerator) GenerateAlert() domain.Alert {
	now := g.now().UTC()
	kind := alertKinds[g.rand.Intn(len(alertKinds))]

	var description string
	switch kind {
	case domain.AlertAccident:
		description = fmt.Sprintf("%d-vehicle collision", g.rand.Intn(3)+2)
	case domain.AlertConstruction:
		description = fmt.Sprintf("Road widening project - %d lanes closed", g.rand.Intn(3)+1)
	case domain.AlertEvent:
		description = "Public gathering at " + venues[g.rand.Intn(len(venues))]
	case domain.AlertWeatherHazard:
		description = hazards[g.rand.Intn(len(hazards))] + " causing slow traffic"
	default:
		description = "Full road closure for " + closures[g.rand.Intn(len(closures))]
	}

	roads := make([]string, g.rand.Intn(3)+1)
	for i := range roads {
		roads[i] = roadNames[g.rand.Intn(len(roadNames))]
	}
	end := now.Add(30*time.Minute + time.Duration(g.rand.Intn(90))*time.Minute)

	return domain.Alert{
		ID:            uuid.NewString(),
		Type:          kind,
		Location:      g.RandomLocation(),
		Description:   description,
		StartTime:     now.Add(-time.Duration(g.rand.Intn(60)) * time.Minute),
		EndTime:       &end,
		Severity:      severities[g.rand.Intn(len(severities))],
		AffectedRoads: roads,
		Source:        domain.SourceSensor,
	}
}

func segmentID(road string) string {
	return strings.ToLower(strings.ReplaceAll(road, " ", "-"))
}

func (g *DataGenerator) weightedStatus(weights []float64) domain.TrafficStatus {
	total := 0.0
	for _, w := range weights {
		total += w
	}

	r := g.rand.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return statuses[i]
		}
	}
	return statuses[0]
}
