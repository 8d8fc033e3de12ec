package train

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// MetricSink receives scalar training metrics ordered by step.
type MetricSink interface {
	Scalar(name string, value float64, step int)
}

// MetricFunc adapts a function to MetricSink.
type MetricFunc func(name string, value float64, step int)

func (f MetricFunc) Scalar(name string, value float64, step int) { f(name, value, step) }

// DiscardMetrics drops every metric.
var DiscardMetrics = MetricFunc(func(string, float64, int) {})

// CSVMetricSink appends metric,value,step rows to a CSV file, flushed per
// row so a killed run keeps its log.
type CSVMetricSink struct {
	f *os.File
	w *csv.Writer
}

func NewCSVMetricSink(path string) (*CSVMetricSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("metric log: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"metric", "value", "step"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("metric log: %w", err)
	}
	w.Flush()
	return &CSVMetricSink{f: f, w: w}, nil
}

func (s *CSVMetricSink) Scalar(name string, value float64, step int) {
	_ = s.w.Write([]string{name, strconv.FormatFloat(value, 'g', -1, 64), strconv.Itoa(step)})
	s.w.Flush()
}

func (s *CSVMetricSink) Close() error {
	s.w.Flush()
	return s.f.Close()
}
