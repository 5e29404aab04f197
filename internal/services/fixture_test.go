package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"airquality-platform/internal/segmentation"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

var hour0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// fixtureSensors covers the default parameter allow-list for location 101
var fixtureSensors = []struct {
	id          string
	parameterID string
}{
	{"1001", "2"},
	{"1002", "1"},
	{"1003", "7"},
	{"1004", "10"},
	{"1005", "9"},
	{"1006", "8"},
}

func newTestDeps(t *testing.T) (*logging.StructuredLogger, *metrics.Collector, *prometheus.Registry) {
	t.Helper()
	logger := logging.NewStructuredLogger("airquality-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	reg := prometheus.NewRegistry()
	return logger, metrics.NewCollector("airquality", reg), reg
}

func fixtureParams() segmentation.Params {
	p := segmentation.DefaultParams()
	p.AnalysisStart = hour0
	p.Workers = 2
	return p
}

func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func ts(h int) string {
	return hour0.Add(time.Duration(h) * time.Hour).Format(time.RFC3339)
}

// writeExportFixture lays out one location with six sensors:
//
//	hours 0-9    all six sensors (perfect)
//	hours 12-13  three sensors, later trimmed
//	hours 20-29  all six sensors, a new segment after an 11 hour gap
//
// plus two malformed measurement rows, one malformed location row and a
// second measurement file carrying one stale and one newer update.
func writeExportFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "locations.csv"),
		"id,name,timezone,isMobile,isMonitor,coordinates.latitude,coordinates.longitude",
		"101,Central,Asia/Kolkata,false,true,28.63,77.22",
		",Nameless,,,,,",
	)

	sensorLines := []string{"id,location_id,name,parameter.id,parameter.name,parameter.units"}
	for _, s := range fixtureSensors {
		sensorLines = append(sensorLines, fmt.Sprintf("%s,101,sensor %s,%s,p%s,ppm", s.id, s.id, s.parameterID, s.parameterID))
	}
	writeFile(t, filepath.Join(dir, "sensors.csv"), sensorLines...)

	measurementLines := []string{"sensor_id,value,parameter_id,period.datetimeTo.utc,updated_at"}
	perfect := func(from, to int) {
		for h := from; h <= to; h++ {
			for _, s := range fixtureSensors {
				measurementLines = append(measurementLines,
					fmt.Sprintf("%s,%d.5,%s,%s,2024-03-02T00:00:00Z", s.id, h+1, s.parameterID, ts(h)))
			}
		}
	}
	perfect(0, 9)
	for h := 12; h <= 13; h++ {
		for _, s := range fixtureSensors[:3] {
			measurementLines = append(measurementLines,
				fmt.Sprintf("%s,4,%s,%s,2024-03-02T00:00:00Z", s.id, s.parameterID, ts(h)))
		}
	}
	perfect(20, 29)
	measurementLines = append(measurementLines,
		"1001,abc,2,"+ts(30)+",2024-03-02T00:00:00Z",
		"1001,3,2,2024-03-01T05:30:00Z,2024-03-02T00:00:00Z",
	)
	writeFile(t, filepath.Join(dir, "measurements", "part-001.csv"), measurementLines...)

	writeFile(t, filepath.Join(dir, "measurements", "part-002.csv"),
		"sensor_id,value,parameter_id,period.datetimeTo.utc,updated_at",
		"1001,999,2,"+ts(0)+",2024-03-01T00:00:00Z",
		"1001,42,2,"+ts(1)+",2024-03-03T00:00:00Z",
	)

	writeFile(t, filepath.Join(dir, "weather", "101.csv"),
		"location_id,datetimeto_utc,temperature_2m,relative_humidity_2m,precipitation",
		"101,"+ts(0)+",21.4,63,0",
		"101,"+ts(1)+",20.9,,0.2",
	)

	return dir
}
