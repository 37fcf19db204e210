// Package report renders a heart-rate session summary for the terminal or
// as a machine-readable document.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/srg/pulse/internal/monitor"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Format is a summary output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts table, json or yaml in any case
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("invalid format '%s': must be one of [table json yaml]", s)
	}
}

// Session is what a summary is built from. Device is kept separately because
// the controller status no longer names the device once disconnected.
type Session struct {
	Device string
	Status monitor.Status
}

// Options controls rendering
type Options struct {
	// Color enables ANSI colors in table output
	Color bool

	// WithMeasurements includes every measurement, not only the aggregates
	WithMeasurements bool
}

// Render writes the summary of s to w in the given format
func Render(w io.Writer, s Session, format Format, opts Options) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(document(s, opts.WithMeasurements))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(document(s, opts.WithMeasurements)); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable, "":
		return renderTable(w, s, opts)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// document builds the summary with a stable key order. The average is
// published as heart_rate_avg, the field name workout records use.
func document(s Session, withMeasurements bool) *orderedmap.OrderedMap[string, any] {
	st := s.Status
	doc := orderedmap.New[string, any]()

	if s.Device != "" {
		doc.Set("device", s.Device)
	} else {
		doc.Set("device", nil)
	}
	doc.Set("connected", st.IsConnected)
	doc.Set("measurement_count", len(st.Measurements))
	doc.Set("heart_rate_avg", st.AverageHeartRate)
	doc.Set("heart_rate_max", st.MaxHeartRate)
	doc.Set("duration_minutes", st.SessionDurationMinutes)

	if n := len(st.Measurements); n > 0 {
		doc.Set("started_at", st.Measurements[0].CapturedAt.UTC().Format(time.RFC3339))
		doc.Set("ended_at", st.Measurements[n-1].CapturedAt.UTC().Format(time.RFC3339))
	}

	if withMeasurements {
		items := make([]*orderedmap.OrderedMap[string, any], 0, len(st.Measurements))
		for _, m := range st.Measurements {
			item := orderedmap.New[string, any]()
			item.Set("bpm", m.BPM)
			item.Set("captured_at", m.CapturedAt.UTC().Format(time.RFC3339))
			items = append(items, item)
		}
		doc.Set("measurements", items)
	}
	return doc
}

func renderTable(w io.Writer, s Session, opts Options) error {
	st := s.Status

	label := color.New(color.Bold)
	value := color.New(color.FgCyan)
	hot := color.New(color.FgRed, color.Bold)
	if opts.Color {
		label.EnableColor()
		value.EnableColor()
		hot.EnableColor()
	} else {
		label.DisableColor()
		value.DisableColor()
		hot.DisableColor()
	}

	device := s.Device
	if device == "" {
		device = "-"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(name string, c *color.Color, v any) {
		fmt.Fprintf(tw, "%s\t%s\n", label.Sprint(name), c.Sprint(v))
	}

	row("Device", value, device)
	if len(st.Measurements) == 0 {
		row("Measurements", value, 0)
		if err := tw.Flush(); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w, "No heart rate measurements recorded")
		return err
	}

	row("Measurements", value, len(st.Measurements))
	row("Average", value, fmt.Sprintf("%d bpm", st.AverageHeartRate))
	row("Max", hot, fmt.Sprintf("%d bpm", st.MaxHeartRate))
	row("Duration", value, fmt.Sprintf("%d min", st.SessionDurationMinutes))

	if opts.WithMeasurements {
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tBPM")
		for _, m := range st.Measurements {
			fmt.Fprintf(tw, "%s\t%d\n", m.CapturedAt.Format(time.TimeOnly), m.BPM)
		}
	}
	return tw.Flush()
}
