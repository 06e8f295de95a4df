package domain

// MissingCoordinate is the sentinel written in place of a null coordinate.
// Frontend consumers match on this exact string.
const MissingCoordinate = "N/A"

// CurrentOffset is the reserved snapshot offset for the latest telemetry.
const CurrentOffset = 0

// BalloonRecord is one balloon position taken from a telemetry snapshot.
//
// ID is the 1-based position of the point in the snapshot array. It is only
// meaningful within a single response; the feed does not carry identities.
type BalloonRecord struct {
	ID       int   `json:"id"`
	Lat      Value `json:"lat"`
	Lon      Value `json:"lon"`
	Alt      Value `json:"alt"`
	HoursAgo int   `json:"hours_ago,omitempty"`
}

// TransformStats summarizes one TransformBalloons pass.
type TransformStats struct {
	Points    int // elements in the snapshot array
	Records   int // records emitted
	Malformed int // elements skipped because they were not [lat, lon, alt]
}

// TransformBalloons converts a sanitized telemetry snapshot into balloon
// records. See TransformBalloonsWithStats.
func TransformBalloons(raw Value, hoursAgo int) []BalloonRecord {
	records, _ := TransformBalloonsWithStats(raw, hoursAgo)
	return records
}

// TransformBalloonsWithStats converts a sanitized telemetry snapshot into
// balloon records and reports how many elements were dropped.
//
// Every element of raw that is an array of exactly three entries produces a
// record whose ID is its position + 1; null entries become MissingCoordinate.
// Any other element is skipped without error. A non-array snapshot yields no
// records. hoursAgo > 0 tags each record as historical.
func TransformBalloonsWithStats(raw Value, hoursAgo int) ([]BalloonRecord, TransformStats) {
	stats := TransformStats{}
	records := []BalloonRecord{}
	if raw.Kind() != KindArray {
		return records, stats
	}

	points := raw.Items()
	stats.Points = len(points)
	for i, point := range points {
		if point.Kind() != KindArray || point.Len() != 3 {
			stats.Malformed++
			continue
		}
		coords := point.Items()
		rec := BalloonRecord{
			ID:  i + 1,
			Lat: coordinateOrSentinel(coords[0]),
			Lon: coordinateOrSentinel(coords[1]),
			Alt: coordinateOrSentinel(coords[2]),
		}
		if hoursAgo > CurrentOffset {
			rec.HoursAgo = hoursAgo
		}
		records = append(records, rec)
	}
	stats.Records = len(records)
	return records, stats
}

func coordinateOrSentinel(v Value) Value {
	if v.IsNull() {
		return String(MissingCoordinate)
	}
	return v
}
