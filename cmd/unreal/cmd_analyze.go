package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/config"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/service"
	"github.com/ajharshal45/UnReal-Extension-sub001/pkg/logger"
)

type analyzeFlags struct {
	sourceURL string
	format    string
	offline   bool
	verbose   bool
}

var analyzeF analyzeFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Score a single image file",
	Long: `Runs the full detection pipeline on a local image and prints the verdict.

The external validator and local model are used when OPENAI_API_KEY and
LOCAL_MODEL_URL are set, unless --offline is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeF.sourceURL, "url", "", "page or CDN URL the image was taken from")
	f.StringVarP(&analyzeF.format, "output", "o", "text", "output format: text, markdown or json")
	f.BoolVar(&analyzeF.offline, "offline", false, "skip layers that call remote services")
	f.BoolVarP(&analyzeF.verbose, "verbose", "v", false, "include the decision trail")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	switch analyzeF.format {
	case "text", "markdown", "json":
	default:
		return fmt.Errorf("unknown output format %q", analyzeF.format)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	buf, format, err := imaging.DecodeLimited(data, cfg.MaxImagePixels)
	if err != nil {
		return fmt.Errorf("decode %s: %w", args[0], err)
	}
	prov := imaging.ScanProvenance(data)
	if prov.Format == "" {
		prov.Format = format
	}

	log := logger.New(cfg.LogLevel)
	if !analyzeF.verbose {
		log = logger.NopLogger()
	}
	opts, _, err := pipelineOptions(cfg, log, analyzeF.offline)
	if err != nil {
		return err
	}
	pipeline := service.NewPipeline(cfg.Pipeline, opts...)

	result := pipeline.Analyze(cmd.Context(), buf, imaging.ImageSignal{
		SourceURL:  analyzeF.sourceURL,
		Filename:   filepath.Base(args[0]),
		Provenance: &prov,
	})
	if result.Error != "" {
		return fmt.Errorf("analysis failed: %s", result.Error)
	}

	return writeResult(cmd.OutOrStdout(), result, analyzeF.format, analyzeF.verbose)
}

func writeResult(w io.Writer, res *service.FinalResult, format string, verbose bool) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err := io.WriteString(w, renderResult(res, format == "markdown", verbose))
	return err
}
