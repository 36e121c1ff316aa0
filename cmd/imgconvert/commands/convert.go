package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/local/imgconvert/internal/config"
	"github.com/local/imgconvert/internal/orchestrator"
	"github.com/local/imgconvert/internal/pipeline"
)

type convertOptions struct {
	format           string
	quality          int
	width            int
	targetSize       string
	removeBackground bool
	rembgOrder       string
	pdfPreset        string
	pdfScale         string
	pdfMarginMM      float64
	pdfMarginSet     bool
	pdfPaginate      bool
	jsonOutput       bool
}

var convertOpts convertOptions

// errRunFailed marks a request-level failure already reported to the user.
var errRunFailed = errors.New("conversion failed")

var convertCmd = &cobra.Command{
	Use:   "convert <source> <destination>",
	Short: "Convert a file or every supported file in a folder",
	Long: `Convert a single file or every supported file directly inside a folder.
Sources and destinations may be local paths or s3://bucket/prefix URLs.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := convertOpts
		opts.pdfMarginSet = cmd.Flags().Changed("pdf-margin-mm")
		return runConvert(cmd.Context(), cfg, opts, args[0], args[1], cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	f := convertCmd.Flags()
	f.StringVarP(&convertOpts.format, "format", "f", "jpeg", "output format: jpeg, png, ico, avif or pdf")
	f.IntVarP(&convertOpts.quality, "quality", "q", 0, "encoder quality 1-100 (default from config, 85)")
	f.IntVarP(&convertOpts.width, "width", "w", 0, "resize to this width, keeping aspect ratio")
	f.StringVar(&convertOpts.targetSize, "target-size", "", "target output size for jpeg/avif, e.g. 50KB")
	f.BoolVar(&convertOpts.removeBackground, "remove-background", false, "remove the background with rembg (png, avif)")
	f.StringVar(&convertOpts.rembgOrder, "rembg-order", "", "before_resize or after_resize (default from config)")
	f.StringVar(&convertOpts.pdfPreset, "pdf-preset", "", "PDF page preset, e.g. a4-auto, letter-portrait, original")
	f.StringVar(&convertOpts.pdfScale, "pdf-scale", "", "PDF scale mode: fit or fill")
	f.Float64Var(&convertOpts.pdfMarginMM, "pdf-margin-mm", 0, "PDF page margin in millimetres")
	f.BoolVar(&convertOpts.pdfPaginate, "pdf-paginate", false, "split tall images across several PDF pages")
	f.BoolVar(&convertOpts.jsonOutput, "json-output", false, "print the result as JSON")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(ctx context.Context, c config.Config, opts convertOptions, source, dest string, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.rembgOrder != "" {
		c.Pipeline.RembgOrder = opts.rembgOrder
	}
	b, _, err := pipeline.FromConfig(ctx, c)
	if err != nil {
		return err
	}

	req := orchestrator.Request{
		Source:           source,
		Destination:      dest,
		Format:           opts.format,
		Quality:          opts.quality,
		Width:            opts.width,
		RemoveBackground: opts.removeBackground,
		PDF: orchestrator.PDFOptions{
			Preset:   opts.pdfPreset,
			Scale:    opts.pdfScale,
			Paginate: opts.pdfPaginate,
		},
	}
	if req.Quality == 0 {
		req.Quality = c.Pipeline.Quality
	}
	if req.Width == 0 {
		req.Width = c.Pipeline.Width
	}
	if opts.pdfMarginSet {
		m := opts.pdfMarginMM
		req.PDF.MarginMM = &m
	}
	if req.TargetSize, err = b.TargetSize(opts.targetSize); err != nil {
		return fmt.Errorf("invalid --target-size: %w", err)
	}

	var progress orchestrator.ProgressFunc
	var bar *progressbar.ProgressBar
	if !opts.jsonOutput {
		progress = func(done, total int, file string) {
			if bar == nil {
				bar = newProgressBar(total, stderr)
			}
			bar.Describe(file)
			_ = bar.Set(done)
		}
	}

	res := b.Orchestrator(progress).Run(ctx, req)
	if bar != nil {
		_ = bar.Finish()
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "    ")
		if err := enc.Encode(orchestrator.NewReport(res)); err != nil {
			return err
		}
		if !res.IsSuccessful() {
			return errRunFailed
		}
		return nil
	}

	if !res.IsSuccessful() {
		return res.Err()
	}
	printSummary(stdout, res.Value())
	return nil
}

func newProgressBar(total int, w io.Writer) *progressbar.ProgressBar {
	if w == nil {
		w = os.Stderr
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(w, "\n") }),
	)
}

func printSummary(w io.Writer, s orchestrator.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "Summary: %d file(s) processed, %s, %s.\n",
		s.Total, green(fmt.Sprintf("%d converted", s.Successful)), red(fmt.Sprintf("%d error(s)", s.Failed)))
	for _, r := range s.Results {
		if r.Successful {
			fmt.Fprintf(w, "  %s %s -> %s (%d bytes)\n", green("ok"), r.Source, r.Destination, r.BytesWritten)
		} else {
			fmt.Fprintf(w, "  %s %s - Error: %s\n", red("failed"), r.File, r.Error)
		}
	}
	for _, a := range s.Advisories {
		fmt.Fprintf(w, "  %s %s\n", yellow("note"), a)
	}
}
