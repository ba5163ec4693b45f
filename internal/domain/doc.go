// Package domain holds the shared vocabulary of the wildfire watch system:
// cell states, geographic mappings, typed sensor readings, station metadata,
// and the envelopes exchanged over the brokers.
//
// # Grid orientation
//
// Every grid is row-major with row 0 on the southern edge of the mapped
// bounding box. A cell's geographic anchor is its south-west corner:
//
//	lat = MinLat + y * (MaxLat - MinLat) / H
//	lon = MinLon + x * (MaxLon - MinLon) / W
//
// Satellite images use the usual image convention (row 0 is north) and are
// flipped vertically on decode.
//
// # Cell states
//
//	Vegetation 0 | AtRisk 1 | Burning 2 | Burnt 3
//
// The edge automaton only ever produces Vegetation, Burning and Burnt.
// AtRisk is a fusion-layer state meaning "forecast to ignite within the
// look-ahead horizon". Risk maps publish the numeric value.
//
// # Units
//
//	temperature    °C
//	humidity       %
//	air pressure   hPa
//	rain           mm
//	wind speed     km/h (saturates at 51 on the wire)
//	wind direction degrees, same angular frame as atan2(dy, dx)
//	battery        volts
//
// # Status bits
//
// Bit 0 of a reading's status byte is set while the station is charging.
// The remaining bits are reserved and pass through untouched.
package domain
