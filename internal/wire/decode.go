package wire

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Point is a pixel coordinate in solver space: relative to the exact image
// bytes that were submitted to the solving service.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// coordRecord matches the JSON answer shape. The service sends the numeric
// fields as strings most of the time, but not always, so both are accepted.
type coordRecord struct {
	X json.Number `json:"x"`
	Y json.Number `json:"y"`
}

// Decode normalizes a raw solver answer into a list of points.
//
// The service returns one of two shapes with no stable guarantee: a delimited
// string ("x1,y1|x2,y2", sometimes with semicolons) or a JSON array of
// {"x": "...", "y": "..."} records. Malformed fragments and records are
// dropped rather than failing the batch; fully unusable input yields an empty
// slice, never an error.
func Decode(raw json.RawMessage) []Point {
	if len(raw) == 0 {
		return nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err == nil {
		return fromRecords(records)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return DecodeString(s)
	}

	// Not JSON at all; treat the payload as a bare delimited string.
	return DecodeString(string(raw))
}

// DecodeString parses the classic pipe-delimited coordinate answer.
// Semicolons are a known separator variant and are treated like pipes.
func DecodeString(s string) []Point {
	var points []Point
	for _, part := range strings.Split(strings.ReplaceAll(s, ";", "|"), "|") {
		halves := strings.Split(part, ",")
		if len(halves) != 2 {
			continue
		}
		x, errX := strconv.Atoi(strings.TrimSpace(halves[0]))
		y, errY := strconv.Atoi(strings.TrimSpace(halves[1]))
		if errX != nil || errY != nil {
			continue
		}
		if x < 0 || y < 0 {
			continue
		}
		points = append(points, Point{X: x, Y: y})
	}
	return points
}

// fromRecords decodes each record on its own so one malformed record cannot
// fail the batch.
func fromRecords(records []json.RawMessage) []Point {
	var points []Point
	for _, item := range records {
		var r coordRecord
		if err := json.Unmarshal(item, &r); err != nil {
			continue
		}
		if r.X == "" || r.Y == "" {
			continue
		}
		x, errX := strconv.Atoi(r.X.String())
		y, errY := strconv.Atoi(r.Y.String())
		if errX != nil || errY != nil {
			continue
		}
		if x < 0 || y < 0 {
			continue
		}
		points = append(points, Point{X: x, Y: y})
	}
	return points
}

// FilterBounds drops points outside the submitted image's dimensions.
// Out-of-range answers are discarded here, not clamped; clamping happens only
// later in viewport space against the live viewport.
func FilterBounds(points []Point, width, height int) []Point {
	if width <= 0 || height <= 0 {
		return points
	}
	kept := points[:0:0]
	for _, p := range points {
		if p.X < width && p.Y < height {
			kept = append(kept, p)
		}
	}
	return kept
}
