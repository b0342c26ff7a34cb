package cmd

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"

	"github.com/jpfielding/flif.go/pkg/compress/flif"
	"github.com/jpfielding/flif.go/pkg/logging"
	"github.com/jpfielding/flif.go/pkg/util"
	"github.com/spf13/cobra"
)

// openLog opens the --log-file destination
var openLog = func(path string) io.WriteCloser {
	return logging.RotatingWriter(path, 10, 3)
}

// Execute runs flifctl with args (os.Args when nil) and closes the log file
// once the command returns.
func Execute(ctx context.Context, gitsha string, args []string) error {
	var logs io.WriteCloser
	root := newRoot(ctx, gitsha, &logs)
	if args != nil {
		root.SetArgs(args)
	}
	err := root.Execute()
	if logs != nil {
		slog.SetDefault(logging.Logger(os.Stderr, false, slog.LevelInfo))
		if cerr := logs.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing log file: %w", cerr)
		}
	}
	return err
}

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	return newRoot(ctx, gitsha, new(io.WriteCloser))
}

func newRoot(ctx context.Context, gitsha string, logs *io.WriteCloser) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flifctl",
		Short: "a CLI to decode and inspect FLIF images",
		Long:  "flifctl decodes FLIF images to PNG or raw samples and reports on their structure",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFile, _ := cmd.Flags().GetString("log-file")
			logJSON, _ := cmd.Flags().GetBool("log-json")

			// Parse log level
			var level slog.Level
			levelErr := level.UnmarshalText([]byte(strings.ToUpper(logLevel)))
			if levelErr != nil {
				level = slog.LevelInfo
			}
			var w io.Writer = os.Stderr
			if logFile != "" {
				*logs = openLog(logFile)
				w = *logs
			}
			slog.SetDefault(logging.Logger(w, logJSON, level))

			if levelErr != nil {
				slog.WarnContext(ctx, "Invalid log level, defaulting to INFO", "level", logLevel, "error", levelErr)
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd, 0)
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewDecodeCmd(ctx),
		NewAnalyzeCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-file", "", "Write logs to this file, rotated by size")
	pf.Bool("log-json", false, "Log as json")
	return cmd
}

func printCommandTree(cmd *cobra.Command, indent int) {
	fmt.Println(strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha and format version for this build",
		Long:  "git sha and format version for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s flif/%d\n", gitsha, flif.Version())
		},
	}
	return cmd
}

// openURI reads a file, stdin ("-") or an http(s) URL
func openURI(ctx context.Context, uri string, verbose bool) (io.ReadCloser, error) {
	uri = strings.TrimPrefix(uri, "file://")
	switch {
	case uri == "":
		return nil, fmt.Errorf("uri is required")
	case uri == "-":
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(uri, "http"):
		// TODO make InsecureSkipVerify a flag
		cl := &http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %v", err)
		}
		resp, err := cl.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download: %v", err)
		}
		if verbose {
			reqDump, _ := httputil.DumpRequest(req, true)
			os.Stderr.Write(reqDump)
			resDump, _ := httputil.DumpResponse(resp, false)
			os.Stderr.Write(resDump)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to download: %s", resp.Status)
		}
		return resp.Body, nil
	default:
		f, err := os.Open(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %v", err)
		}
		return f, nil
	}
}

// Summary is the json description of a decoded image
type Summary struct {
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Channels   int      `json:"channels"`
	BitDepth   int      `json:"bit_depth"`
	Interlaced bool     `json:"interlaced"`
	Frames     int      `json:"frames"`
	Loops      int      `json:"loops,omitempty"`
	Delays     []int    `json:"delays,omitempty"`
	Transforms []string `json:"transforms,omitempty"`
	Metadata   []string `json:"metadata,omitempty"`
	Content    string   `json:"content"`
}

func summarize(img *flif.DecodedImage) Summary {
	h := img.Header
	s := Summary{
		Width:      int(h.Width),
		Height:     int(h.Height),
		Channels:   h.Channels,
		BitDepth:   h.BitDepth,
		Interlaced: h.Interlaced,
		Frames:     len(img.Frames),
		Loops:      img.Loops,
		Transforms: img.Transforms,
		Content:    util.ContentUUID(int(h.Width), int(h.Height), h.Channels, h.BitDepth, img.Frames[0].Pix).String(),
	}
	if h.Animated {
		for _, f := range img.Frames {
			s.Delays = append(s.Delays, f.Delay)
		}
	}
	for _, c := range h.Metadata {
		s.Metadata = append(s.Metadata, c.Name)
	}
	return s
}

func NewDecodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "FLIF decode",
		Long:  "Decode a FLIF image and write one frame as png, raw interleaved samples, or a json summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, _ := cmd.Flags().GetString("uri")
			if uri == "" && len(args) > 0 {
				uri = args[0]
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			in, err := openURI(ctx, uri, verbose)
			if err != nil {
				return err
			}
			defer in.Close()
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read: %w", err)
			}

			opts := flif.DefaultOptions()
			if maxPixels, _ := cmd.Flags().GetInt("max-pixels"); maxPixels > 0 {
				opts.MaxPixels = maxPixels
			}
			ctx := logging.AppendCtx(ctx, slog.String("uri", uri))
			img, err := flif.Decode(data, opts)
			if err != nil {
				slog.ErrorContext(ctx, "decode failed", slog.String("code", flif.Code(err).String()), slog.Any("error", err))
				return err
			}
			slog.InfoContext(ctx, "decoded",
				slog.Int("width", int(img.Header.Width)),
				slog.Int("height", int(img.Header.Height)),
				slog.Int("frames", len(img.Frames)))

			frame, _ := cmd.Flags().GetInt("frame")
			if frame < 0 || frame >= len(img.Frames) {
				return fmt.Errorf("frame index %d out of bounds (0-%d)", frame, len(img.Frames)-1)
			}

			var out io.Writer = cmd.OutOrStdout()
			if outPath, _ := cmd.Flags().GetString("out"); outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			switch format, _ := cmd.Flags().GetString("format"); format {
			case "png":
				im, err := img.Image(frame)
				if err != nil {
					return err
				}
				return png.Encode(out, im)
			case "raw":
				_, err := out.Write(img.Frames[frame].Pix)
				return err
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summarize(img))
			default:
				return fmt.Errorf("unknown format %q (png|raw|json)", format)
			}
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("uri", "u", "", "FLIF URI: a path, - for stdin, or an http(s) URL")
	pf.StringP("out", "o", "-", "output path, - for stdout")
	pf.StringP("format", "f", "png", "output format (png|raw|json)")
	pf.Int("frame", 0, "frame to write")
	pf.Int("max-pixels", 0, "refuse images with more samples than this")
	pf.BoolP("verbose", "v", false, "dump http request/response")
	return cmd
}
