package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jpfielding/flif.go/pkg/compress/flif"
	"github.com/jpfielding/flif.go/pkg/util"
	"github.com/spf13/cobra"
)

// NewAnalyzeCmd creates the analyze cobra command
func NewAnalyzeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze FLIF file structure",
		Long:  "Parses and displays the header, metadata chunks, pass structure and per-plane statistics of a FLIF file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath, _ := cmd.Flags().GetString("file")
			if filePath == "" && len(args) > 0 {
				filePath = args[0]
			}
			if filePath == "" {
				return fmt.Errorf("file path is required. Use --file flag or provide as argument")
			}
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			return runAnalyze(cmd.OutOrStdout(), data)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("file", "f", "", "FLIF file path to analyze")
	return cmd
}

// runAnalyze reports on data; a decode failure is reported, not returned,
// once the header has been shown.
func runAnalyze(w io.Writer, data []byte) error {
	fmt.Fprintf(w, "File: %d bytes, md5 %s\n\n", len(data), util.Md5ThenHex(data))

	h, err := flif.DecodeHeader(data, nil)
	if err != nil {
		return fmt.Errorf("header error (%s): %w", flif.Code(err), err)
	}
	fmt.Fprintln(w, "=== Header ===")
	fmt.Fprintf(w, "Dimensions: %dx%d\n", h.Width, h.Height)
	fmt.Fprintf(w, "Channels: %d\n", h.Channels)
	fmt.Fprintf(w, "BitDepth: %d\n", h.BitDepth)
	fmt.Fprintf(w, "Interlaced: %v\n", h.Interlaced)
	fmt.Fprintf(w, "Animated: %v (%d frames)\n", h.Animated, h.NumFrames)
	fmt.Fprintf(w, "Header id: %s\n", util.HashUUID(h))

	if len(h.Metadata) > 0 {
		fmt.Fprintln(w, "\n=== Metadata ===")
		for _, c := range h.Metadata {
			inflated, err := c.Inflate()
			if err != nil {
				fmt.Fprintf(w, "%s: %d bytes (inflate error: %v)\n", c.Name, len(c.Data), err)
				continue
			}
			fmt.Fprintf(w, "%s: %d bytes, %d inflated\n", c.Name, len(c.Data), len(inflated))
		}
	}

	passes := map[int]int{}
	opts := flif.DefaultOptions()
	opts.Observer = func(ev flif.PassEvent) {
		if ev.Frame == 0 && ev.State == flif.PassComplete {
			passes[ev.Plane]++
		}
	}
	img, err := flif.Decode(data, opts)
	if err != nil {
		fmt.Fprintf(w, "\nDecode error (%s): %v\n", flif.Code(err), err)
		return nil
	}

	fmt.Fprintln(w, "\n=== Coding ===")
	fmt.Fprintf(w, "Transforms: %v\n", img.Transforms)
	fmt.Fprintf(w, "Passes per frame: %d\n", img.Passes)
	for p := 0; p < h.Channels; p++ {
		fmt.Fprintf(w, "Plane %d: %d coded passes\n", p, passes[p])
	}

	maxFramesToShow := min(3, len(img.Frames))
	for i := 0; i < maxFramesToShow; i++ {
		fr := img.Frames[i]
		fmt.Fprintf(w, "\n--- Frame %d ---\n", i)
		if h.Animated {
			fmt.Fprintf(w, "Delay: %dms\n", fr.Delay)
		}
		for p, pl := range fr.Planes {
			minVal, maxVal := pl.Data[0], pl.Data[0]
			for _, v := range pl.Data {
				minVal = min(minVal, v)
				maxVal = max(maxVal, v)
			}
			fmt.Fprintf(w, "Plane %d range: min=%d, max=%d\n", p, minVal, maxVal)
		}
		fmt.Fprintf(w, "Content id: %s\n", util.ContentUUID(int(h.Width), int(h.Height), h.Channels, h.BitDepth, fr.Pix))
	}
	return nil
}
