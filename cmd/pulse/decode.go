package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/pulse/internal/heartrate"
	"github.com/srg/pulse/internal/report"
	"gopkg.in/yaml.v3"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <hex-frame>...",
	Short: "Decode captured Heart Rate Measurement frames",
	Long: `Decodes Heart Rate Measurement (0x2A37) payloads given as hex strings.
Bytes may be separated by spaces, colons or dashes, and may carry a 0x prefix.

Exits with status 1 if any frame is malformed.

Examples:
  pulse decode 0048 "01 2c 01" 16:4b:00:11:02
  pulse decode --format json 0x0048
  pulse decode -f yaml 0x0048`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

var decodeFormat string

func init() {
	initDecodeFlags()
}

func initDecodeFlags() {
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", string(report.FormatTable), "Output format (table, json, yaml)")
}

type decodedFrame struct {
	Frame         string  `json:"frame" yaml:"frame"`
	BPM           *uint16 `json:"bpm,omitempty" yaml:"bpm,omitempty"`
	Format        string  `json:"format,omitempty" yaml:"format,omitempty"`
	SensorContact string  `json:"sensor_contact,omitempty" yaml:"sensor_contact,omitempty"`
	Error         string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// parseHexFrame accepts "0048", "0x0048", "00 48", "00:48" and "00-48"
func parseHexFrame(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return data, nil
}

func decodeFrame(arg string) decodedFrame {
	out := decodedFrame{Frame: arg}

	data, err := parseHexFrame(arg)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Frame = fmt.Sprintf("% x", data)

	frame, err := heartrate.Decode(data)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	bpm := frame.BPM
	out.BPM = &bpm
	out.Format = "uint8"
	if frame.Flags.Wide() {
		out.Format = "uint16"
	}
	switch {
	case !frame.Flags.SensorContactSupported():
		out.SensorContact = "unsupported"
	case frame.Flags.SensorContact():
		out.SensorContact = "detected"
	default:
		out.SensorContact = "not detected"
	}
	return out
}

func runDecode(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(decodeFormat)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	frames := make([]decodedFrame, 0, len(args))
	malformed := 0
	for _, arg := range args {
		f := decodeFrame(arg)
		if f.Error != "" {
			malformed++
		}
		frames = append(frames, f)
	}

	if err := writeFrames(cmd.OutOrStdout(), frames, format); err != nil {
		return err
	}

	if malformed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrMalformedFrames, malformed, len(frames))
	}
	return nil
}

func writeFrames(w io.Writer, frames []decodedFrame, format report.Format) error {
	switch format {
	case report.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(frames)
	case report.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(frames); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FRAME\tBPM\tFORMAT\tCONTACT")
	for _, f := range frames {
		if f.Error != "" {
			fmt.Fprintf(tw, "%s\t-\t%s\t\n", f.Frame, f.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", f.Frame, *f.BPM, f.Format, f.SensorContact)
	}
	return tw.Flush()
}
