package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mrcode/glucose-calculator/internal/advice"
	"github.com/mrcode/glucose-calculator/internal/dosing"
	"github.com/mrcode/glucose-calculator/internal/models"
)

type fakeWriteAPI struct {
	api.WriteAPI

	mu      sync.Mutex
	points  []*write.Point
	flushed int
	errs    chan error
}

func newFakeWriteAPI() *fakeWriteAPI {
	return &fakeWriteAPI{errs: make(chan error, 1)}
}

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriteAPI) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
}

func (f *fakeWriteAPI) Errors() <-chan error {
	return f.errs
}

func tagMap(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func fieldMap(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, field := range p.FieldList() {
		out[field.Key] = field.Value
	}
	return out
}

func TestResultToPoint(t *testing.T) {
	rec, err := dosing.Calculate(70, 100, 70, -10, dosing.TrendFall)
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	res := &advice.Result{
		ID:             "abc",
		Reading:        models.SensorReading{Glucose: 70, Delta: -10, Slope: -2.5, Source: "mqtt"},
		Trend:          dosing.TrendFall,
		TargetGlucose:  100,
		BodyWeight:     70,
		Recommendation: rec,
		Automatic:      true,
		CreatedAt:      created,
	}

	p := ResultToPoint(res)

	if p.Name() != Measurement {
		t.Errorf("Name() = %s, want %s", p.Name(), Measurement)
	}
	if !p.Time().Equal(created) {
		t.Errorf("Time() = %v, want %v", p.Time(), created)
	}

	tags := tagMap(p)
	wantTags := map[string]string{"trend": "fall", "automatic": "true", "stale": "false", "needed": "true", "source": "mqtt"}
	for k, v := range wantTags {
		if tags[k] != v {
			t.Errorf("tag %s = %q, want %q", k, tags[k], v)
		}
	}

	fields := fieldMap(p)
	if fields["dextrose_grams"] != rec.DextroseGrams {
		t.Errorf("dextrose_grams = %v, want %v", fields["dextrose_grams"], rec.DextroseGrams)
	}
	if fields["id"] != "abc" {
		t.Errorf("id = %v, want abc", fields["id"])
	}
}

func TestResultToPoint_NoCorrection(t *testing.T) {
	p := ResultToPoint(&advice.Result{
		Reading: models.SensorReading{Glucose: 130},
		Trend:   dosing.TrendStable,
	})

	fields := fieldMap(p)
	if _, ok := fields["dextrose_grams"]; ok {
		t.Error("dextrose_grams set for a result without recommendation")
	}
	if tagMap(p)["needed"] != "false" {
		t.Error("needed tag should be false")
	}
	if _, ok := tagMap(p)["source"]; ok {
		t.Error("empty source should not be tagged")
	}
}

func TestWriter(t *testing.T) {
	fake := newFakeWriteAPI()
	w := NewWriter(fake, nil)

	if err := w.Record(context.Background(), &advice.Result{Trend: dosing.TrendStable}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	w.Flush()

	if len(fake.points) != 1 || fake.flushed != 1 {
		t.Errorf("points = %d flushed = %d, want 1 and 1", len(fake.points), fake.flushed)
	}
	if w.Written() != 1 {
		t.Errorf("Written() = %d, want 1", w.Written())
	}
	if w.LastErrorAge() < time.Hour {
		t.Errorf("LastErrorAge() = %v, want long ago", w.LastErrorAge())
	}

	fake.errs <- errors.New("unauthorized")
	deadline := time.Now().Add(time.Second)
	for w.LastErrorAge() > time.Minute && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.LastErrorAge() > time.Minute {
		t.Error("write error was not tracked")
	}
}
