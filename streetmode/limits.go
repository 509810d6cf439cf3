package streetmode

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// WalkDistanceLimitMeters bounds every precomputed stop to vertex walk search
	// on the network.
	WalkDistanceLimitMeters = 2000

	BicycleDistanceLinkingLimitMeters = 5000

	CarTimeLinkingLimitSeconds = 30 * 60
	// ~160 km/h
	MaxCarSpeedMetersPerSecond = 44

	// OffStreetSpeedMillimetersPerSecond is used for the last leg between the
	// street network and a destination point.
	OffStreetSpeedMillimetersPerSecond = 1300

	// LinkRadiusMeters is how far from the street network a point may be and
	// still be linked to it.
	LinkRadiusMeters = 300
)

// Limits holds everything the cost table builder needs to know about one mode.
type Limits struct {
	CostUnit CostUnit `yaml:"cost_unit"`

	// LinkingDistanceMeters bounds searches for distance based modes.
	LinkingDistanceMeters int `yaml:"linking_distance_meters,omitempty"`
	// TimeLimitSeconds bounds searches for duration based modes.
	TimeLimitSeconds        int `yaml:"time_limit_seconds,omitempty"`
	MaxSpeedMetersPerSecond int `yaml:"max_speed_meters_per_second,omitempty"`
}

// ZoneRadiusMeters is the distance beyond which a street change can't affect
// a stop's table. For time bounded modes it is the time limit at max speed, so
// MaxSpeedMetersPerSecond must be an upper bound of real speeds.
func (l Limits) ZoneRadiusMeters() int {
	if l.LinkingDistanceMeters > 0 {
		return l.LinkingDistanceMeters
	}
	return l.TimeLimitSeconds * l.MaxSpeedMetersPerSecond
}

// Table is the per mode configuration, resolved by lookup.
type Table map[StreetMode]Limits

func DefaultTable() Table {
	return Table{
		Walk: {
			CostUnit:              DistanceMillimeters,
			LinkingDistanceMeters: WalkDistanceLimitMeters,
		},
		Bicycle: {
			CostUnit:              DistanceMillimeters,
			LinkingDistanceMeters: BicycleDistanceLinkingLimitMeters,
		},
		// Car speeds vary per link, so time can't be derived from a distance
		// with a user chosen speed later.
		Car: {
			CostUnit:                DurationSeconds,
			TimeLimitSeconds:        CarTimeLinkingLimitSeconds,
			MaxSpeedMetersPerSecond: MaxCarSpeedMetersPerSecond,
		},
	}
}

func (t Table) Lookup(mode StreetMode) (Limits, bool) {
	l, ok := t[mode]
	return l, ok
}

// LoadTable reads limits overrides from a yaml file on top of DefaultTable.
//
//	car:
//	  cost_unit: duration_s
//	  time_limit_seconds: 1200
//	  max_speed_meters_per_second: 40
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read limits file: %w", err)
	}

	overrides := map[StreetMode]Limits{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse limits file %s: %w", path, err)
	}

	table := DefaultTable()
	for mode, l := range overrides {
		if err := l.validate(); err != nil {
			return nil, fmt.Errorf("invalid limits for %s: %w", mode, err)
		}
		table[mode] = l
	}
	return table, nil
}

func (l Limits) validate() error {
	switch l.CostUnit {
	case DistanceMillimeters:
		if l.LinkingDistanceMeters <= 0 {
			return fmt.Errorf("linking_distance_meters must be positive for %s", l.CostUnit)
		}
	case DurationSeconds:
		if l.TimeLimitSeconds <= 0 || l.MaxSpeedMetersPerSecond <= 0 {
			return fmt.Errorf("time_limit_seconds and max_speed_meters_per_second must be positive for %s", l.CostUnit)
		}
	default:
		return fmt.Errorf("cost_unit is required")
	}
	return nil
}
