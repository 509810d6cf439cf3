package server

import (
	"fmt"
	"slices"
	"strconv"
)

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

func skipSpace(data []byte, i int) int {
	for i < len(data) && isSpace(data[i]) {
		i++
	}
	return i
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}

// unmarshalPointsListFast parses [[lat, lon], ...] without reflection.
func unmarshalPointsListFast(data []byte, result *[][2]float64) error {
	n := len(data)
	*result = slices.Grow(*result, n/16) // n/16 is a heuristic

	i := skipSpace(data, 0)
	if i >= n || data[i] != '[' {
		return fmt.Errorf("invalid format: expected '['")
	}
	i = skipSpace(data, i+1)
	if i < n && data[i] == ']' {
		return nil
	}

	for {
		if i >= n || data[i] != '[' {
			return fmt.Errorf("invalid format: expected '[' for point at %d", i)
		}
		i++

		var point [2]float64
		for j := range point {
			i = skipSpace(data, i)
			start := i
			for i < n && isNumberByte(data[i]) {
				i++
			}
			if start == i {
				return fmt.Errorf("invalid format: expected number at %d", i)
			}
			num, err := strconv.ParseFloat(string(data[start:i]), 64)
			if err != nil {
				return fmt.Errorf("invalid number: %v", err)
			}
			point[j] = num

			i = skipSpace(data, i)
			if j == 0 {
				if i >= n || data[i] != ',' {
					return fmt.Errorf("invalid format: expected ',' between coordinates")
				}
				i++
			}
		}
		if i >= n || data[i] != ']' {
			return fmt.Errorf("invalid format: expected ']' at end of point")
		}
		if point[0] < -90 || point[0] > 90 || point[1] < -180 || point[1] > 180 {
			return fmt.Errorf("coordinates out of range: %v", point)
		}
		*result = append(*result, point)

		i = skipSpace(data, i+1)
		if i >= n {
			return fmt.Errorf("invalid format: unterminated list")
		}
		switch data[i] {
		case ',':
			i = skipSpace(data, i+1)
		case ']':
			return nil
		default:
			return fmt.Errorf("invalid format: expected ',' or ']' at %d", i)
		}
	}
}
