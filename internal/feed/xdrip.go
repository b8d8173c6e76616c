package feed

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/mrcode/glucose-calculator/internal/models"
)

// xDrip+ broadcast extra names
const (
	xdripPrefix   = "com.eveningoutpost.dexdrip.Extras."
	extraEstimate = "BgEstimate"
	extraTime     = "Time"
	extraDelta    = "BgDelta"
	extraSlope    = "BgSlope"
)

// Broadcast is a BG estimate as forwarded from xDrip+.
// It accepts short keys, bare extra names and fully qualified extra names;
// missing values stay zero.
type Broadcast struct {
	Glucose   float64 `json:"glucose"`
	Timestamp int64   `json:"timestamp"`
	Delta     float64 `json:"delta"`
	Slope     float64 `json:"slope"`
}

// UnmarshalJSON decodes any of the supported key styles. Numbers may be sent as strings.
func (b *Broadcast) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	getNum := func(keys ...string) float64 {
		for _, key := range keys {
			switch x := m[key].(type) {
			case float64:
				return x
			case string:
				if f, err := strconv.ParseFloat(x, 64); err == nil {
					return f
				}
			}
		}
		return 0
	}

	b.Glucose = getNum("glucose", extraEstimate, xdripPrefix+extraEstimate)
	b.Timestamp = int64(getNum("timestamp", extraTime, xdripPrefix+extraTime))
	b.Delta = getNum("delta", extraDelta, xdripPrefix+extraDelta)
	b.Slope = getNum("slope", extraSlope, xdripPrefix+extraSlope)
	return nil
}

// Reading converts the broadcast to a sensor reading. A zero timestamp becomes received.
func (b Broadcast) Reading(received time.Time, source string) models.SensorReading {
	ts := b.Timestamp
	if ts <= 0 {
		ts = received.UnixMilli()
	}
	return models.SensorReading{
		Glucose:   b.Glucose,
		Timestamp: ts,
		Delta:     b.Delta,
		Slope:     b.Slope,
		Source:    source,
	}
}
