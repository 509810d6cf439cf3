package streetmode

import (
	"fmt"
	"strings"
)

type StreetMode uint8

const (
	Walk StreetMode = iota + 1
	Bicycle
	Car
)

func (m StreetMode) String() string {
	switch m {
	case Walk:
		return "walk"
	case Bicycle:
		return "bicycle"
	case Car:
		return "car"
	}
	return fmt.Sprintf("streetmode(%d)", uint8(m))
}

func Parse(s string) (StreetMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "walk", "foot":
		return Walk, nil
	case "bicycle", "bike":
		return Bicycle, nil
	case "car", "drive":
		return Car, nil
	}
	return 0, fmt.Errorf("unknown street mode %q", s)
}

func (m StreetMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *StreetMode) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// CostUnit is the meaning of numbers stored in a linkage cost table.
type CostUnit uint8

const (
	DistanceMillimeters CostUnit = iota + 1
	DurationSeconds
)

func (u CostUnit) String() string {
	switch u {
	case DistanceMillimeters:
		return "distance_mm"
	case DurationSeconds:
		return "duration_s"
	}
	return fmt.Sprintf("costunit(%d)", uint8(u))
}

func (u CostUnit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *CostUnit) UnmarshalText(text []byte) error {
	switch string(text) {
	case "distance_mm":
		*u = DistanceMillimeters
	case "duration_s":
		*u = DurationSeconds
	default:
		return fmt.Errorf("unknown cost unit %q", text)
	}
	return nil
}
