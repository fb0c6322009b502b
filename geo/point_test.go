package geo_test

import (
	"testing"

	"github.com/soulsako/fitlink/geo"
	"github.com/stretchr/testify/require"
)

func TestEncodePoint(t *testing.T) {
	tests := []struct {
		name  string
		point geo.Point
		want  string
	}{
		{"london", geo.Point{Latitude: 51.5, Longitude: -0.12}, "POINT(-0.12 51.5)"},
		{"origin", geo.Point{}, "POINT(0 0)"},
		{"southern hemisphere", geo.Point{Latitude: -33.8688, Longitude: 151.2093}, "POINT(151.2093 -33.8688)"},
		{"west of meridian", geo.Point{Latitude: 55.9533, Longitude: -3.1883}, "POINT(-3.1883 55.9533)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, geo.EncodePoint(tt.point))
		})
	}
}

func TestDecodePoint(t *testing.T) {
	p, err := geo.DecodePoint("POINT(151.2093 -33.8688)")
	require.NoError(t, err)
	require.InDelta(t, -33.8688, p.Latitude, 1e-9)
	require.InDelta(t, 151.2093, p.Longitude, 1e-9)
}

func TestDecodePointRejectsMalformedLiterals(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"wrong prefix", "POLYGON(0 0)"},
		{"unterminated", "POINT(1 2"},
		{"one coordinate", "POINT(1)"},
		{"three coordinates", "POINT(1 2 3)"},
		{"not numbers", "POINT(a b)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := geo.DecodePoint(tt.input)
			require.Error(t, err)
		})
	}
}

func TestPointRoundTrip(t *testing.T) {
	points := []geo.Point{
		{Latitude: 51.5, Longitude: -0.12},
		{Latitude: -0.0001, Longitude: 0.0001},
		{Latitude: 89.999999, Longitude: -179.999999},
		{Latitude: -89.999999, Longitude: 179.999999},
		{Latitude: 0, Longitude: 0},
		{Latitude: 10, Longitude: 20},
	}

	for _, p := range points {
		got, err := geo.DecodePoint(geo.EncodePoint(p))
		require.NoError(t, err)
		require.InDelta(t, p.Latitude, got.Latitude, 1e-12)
		require.InDelta(t, p.Longitude, got.Longitude, 1e-12)
	}
}
