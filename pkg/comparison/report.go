package comparison

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"
)

// formatMetric renders a metric value the way it is shown to users:
// distances in cm with two decimals and PDD(10) in percent
func formatMetric(name string, v float64) string {
	if name == "PDD10" {
		return fmt.Sprintf("%.2f %%", v)
	}
	return fmt.Sprintf("%.2f cm", math.Round(v*10)/100)
}

func formatFound(name string, v float64, found bool) string {
	if !found {
		return "n/a"
	}
	return formatMetric(name, v)
}

// WriteReport prints the metrics and gamma statistics of a comparison
func WriteReport(w io.Writer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Profile:\t%s\n", r.Kind)
	fmt.Fprintf(tw, "Measured points:\t%d\n", len(r.Measured))
	fmt.Fprintf(tw, "Calculated points:\t%d\n", len(r.Convolved))
	normalized := "no"
	if r.Normalized {
		normalized = "yes"
	}
	fmt.Fprintf(tw, "Normalized:\t%s\n", normalized)

	m := r.Metric
	fmt.Fprintf(tw, "%s measured:\t%s\n", m.Name, formatFound(m.Name, m.Measured, m.MeasuredFound))
	fmt.Fprintf(tw, "%s calculated:\t%s\n", m.Name, formatFound(m.Name, m.Calculated, m.CalculatedFound))
	if diff, ok := m.Difference(); ok {
		fmt.Fprintf(tw, "%s difference:\t%s\n", m.Name, formatMetric(m.Name, diff))
	}

	s := r.Summary
	fmt.Fprintf(tw, "Evaluated points:\t%d\n", s.Evaluated)
	if s.Evaluated > 0 {
		fmt.Fprintf(tw, "\tLocal\tGlobal\n")
		fmt.Fprintf(tw, "Pass rate (%%):\t%.1f\t%.1f\n", s.Local.PassRate, s.Global.PassRate)
		if s.CentralAvailable {
			fmt.Fprintf(tw, "%s pass rate (%%):\t%.1f\t%.1f\n", s.Region.Label(),
				s.Local.CentralPassRate, s.Global.CentralPassRate)
		}
		fmt.Fprintf(tw, "Average gamma:\t%.2f\t%.2f\n", s.Local.Average, s.Global.Average)
		fmt.Fprintf(tw, "Max gamma:\t%.2f\t%.2f\n", s.Local.Max, s.Global.Max)
	}

	return tw.Flush()
}
