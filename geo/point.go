// Package geo transcodes between the backend's geography literal form and
// coordinate pairs. The row store serialises a location as
// "POINT(longitude latitude)"; the rest of the app only ever sees Point.
package geo

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64
	Longitude float64
}

// EncodePoint renders p as the wire literal, longitude first.
func EncodePoint(p Point) string {
	var b strings.Builder
	b.WriteString("POINT(")
	b.WriteString(strconv.FormatFloat(p.Longitude, 'f', -1, 64))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(p.Latitude, 'f', -1, 64))
	b.WriteByte(')')
	return b.String()
}

// DecodePoint parses a wire literal back into a Point.
func DecodePoint(s string) (Point, error) {
	inner, ok := strings.CutPrefix(s, "POINT(")
	if !ok {
		return Point{}, errors.Errorf("[geo.DecodePoint] not a point literal: %q", s)
	}
	inner, ok = strings.CutSuffix(inner, ")")
	if !ok {
		return Point{}, errors.Errorf("[geo.DecodePoint] unterminated point literal: %q", s)
	}

	fields := strings.Fields(inner)
	if len(fields) != 2 {
		return Point{}, errors.Errorf("[geo.DecodePoint] expected two coordinates, got %d", len(fields))
	}

	lng, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Point{}, errors.Wrap(err, "[geo.DecodePoint] longitude")
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Point{}, errors.Wrap(err, "[geo.DecodePoint] latitude")
	}

	return Point{Latitude: lat, Longitude: lng}, nil
}
