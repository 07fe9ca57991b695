package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// RenderMetrics gathers g and writes one table row per series. Histograms
// show their sample count and mean.
func RenderMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})

	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Labels", "Value")

	for _, f := range families {
		for _, m := range f.GetMetric() {
			_ = table.Append(f.GetName(), labelString(m.GetLabel()), metricValue(f.GetType(), m))
		}
	}
	return table.Render()
}

func labelString(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	return strings.Join(parts, ",")
}

func metricValue(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return fmt.Sprintf("%g", m.GetCounter().GetValue())
	case dto.MetricType_GAUGE:
		return fmt.Sprintf("%g", m.GetGauge().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		n := h.GetSampleCount()
		if n == 0 {
			return "n=0"
		}
		return fmt.Sprintf("n=%d mean=%.4gs", n, h.GetSampleSum()/float64(n))
	default:
		return "-"
	}
}
