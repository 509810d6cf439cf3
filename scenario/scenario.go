package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/costtable"
	"github.com/royalcat/egresscost/streetmode"
	"github.com/royalcat/egresscost/streets"
	"github.com/royalcat/egresscost/transit"
	"gopkg.in/yaml.v3"
)

// SnapMeters is how close a street end must be to an existing vertex to be
// joined to it instead of creating a new vertex.
const SnapMeters = 5

var ErrInvalid = errors.New("invalid scenario")

// Scenario is a set of additions to the street and transit network.
//
//	name: new bridge
//	streets:
//	  - coordinates: [[13.40, 52.50], [13.41, 52.50]]
//	    modes: [walk, bicycle]
//	stops:
//	  - id: bridge
//	    coordinates: [13.405, 52.50]
type Scenario struct {
	Name    string   `yaml:"name"`
	Streets []Street `yaml:"streets"`
	Stops   []Stop   `yaml:"stops"`
}

type Street struct {
	Coordinates [][2]float64            `yaml:"coordinates"`
	Modes       []streetmode.StreetMode `yaml:"modes"`
	SpeedKmh    int32                   `yaml:"speed_kmh"`
	Oneway      bool                    `yaml:"oneway"`
}

type Stop struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Coordinates [2]float64 `yaml:"coordinates"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	for i, street := range s.Streets {
		if len(street.Coordinates) < 2 {
			return fmt.Errorf("street %d needs at least 2 coordinates: %w", i, ErrInvalid)
		}
		if len(street.Modes) == 0 {
			return fmt.Errorf("street %d has no modes: %w", i, ErrInvalid)
		}
	}
	for i, stop := range s.Stops {
		if stop.ID == "" {
			return fmt.Errorf("stop %d has no id: %w", i, ErrInvalid)
		}
	}
	return nil
}

// Applied is the network with a scenario on top.
type Applied struct {
	Streets *streets.Layer
	Transit *transit.Layer
	// ModifiedEdges are the bounds of every added street.
	ModifiedEdges []orb.Bound
	// FirstNewStop is the id of the first stop added by the scenario.
	FirstNewStop int
}

// Apply adds the scenario to copies of the base layers, which are left
// untouched. Walk distance tables are recomputed only for stops that can
// walk to an added street, and for the added stops.
func (s *Scenario) Apply(ctx context.Context, baseStreets *streets.Layer, baseTransit *transit.Layer, limits streetmode.Table, threads int, log *slog.Logger) (*Applied, error) {
	layer := baseStreets.Extend()
	for _, street := range s.Streets {
		addStreet(layer, street)
	}

	tl := baseTransit.Extend(layer)
	firstNew := tl.StopCount()
	for _, stop := range s.Stops {
		tl.AddStop(transit.Stop{
			ID:    stop.ID,
			Name:  stop.Name,
			Point: orb.Point(stop.Coordinates),
		})
	}

	modified := layer.ScenarioEdgeBounds()
	zone, err := costtable.ComputeRebuildZone(true, streetmode.Walk, limits, modified)
	if err != nil {
		return nil, err
	}

	rebuilt := 0
	err = tl.BuildDistanceTables(ctx, threads, func(stop int, p orb.Point) bool {
		if stop >= firstNew || zone.Contains(p) {
			rebuilt++
			return true
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild walk tables: %w", err)
	}

	log.Info("scenario applied",
		"name", s.Name,
		"streets", len(s.Streets),
		"stops", len(s.Stops),
		"walk_tables_rebuilt", rebuilt,
	)
	return &Applied{
		Streets:       layer,
		Transit:       tl,
		ModifiedEdges: modified,
		FirstNewStop:  firstNew,
	}, nil
}

func addStreet(layer *streets.Layer, street Street) {
	var perms streets.Permission
	for _, mode := range street.Modes {
		perms |= streets.PermissionFor(mode)
	}
	speed := street.SpeedKmh
	if speed <= 0 {
		speed = 30
	}

	prev := streets.NoVertex
	for _, c := range street.Coordinates {
		p := orb.Point(c)
		v, _, err := layer.SnapVertex(p, SnapMeters)
		if err != nil {
			v = layer.AddVertex(p)
		}
		if prev != streets.NoVertex && prev != v {
			layer.AddStreet(prev, v, perms, streets.KmhToMillimetersPerSecond(speed), street.Oneway)
		}
		prev = v
	}
}
