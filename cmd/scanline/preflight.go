package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanline/internal/api"
	"github.com/jackzampolin/scanline/internal/ingest"
	"github.com/jackzampolin/scanline/internal/jobcfg"
	"github.com/jackzampolin/scanline/internal/store"
	"github.com/jackzampolin/scanline/internal/workers"
)

// noRunner satisfies ingest.Runner for preflight, which never runs OCR.
type noRunner struct{}

func (noRunner) Do(context.Context, workers.Task) error { return workers.ErrClosed }

// discardSink satisfies store.Sink for preflight.
type discardSink struct{}

func (discardSink) Save(context.Context, store.Record) (*store.Document, error) {
	return nil, errors.New("preflight does not store documents")
}

var preflightCmd = &cobra.Command{
	Use:   "preflight <files...>",
	Short: "Check files against the configured limits without OCR",
	Long: `Check images and PDFs against the configured thresholds: resolution,
pixel area, file size, page count and current memory use.

The check is advisory. A page that fails it can still be submitted; the
pipeline will compress it on retries.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h)
		if err != nil {
			return err
		}
		builder := jobcfg.NewBuilder(cm)

		files, err := ingest.LoadFiles(args)
		if err != nil {
			return err
		}
		svc, err := ingest.NewService(builder.IngestConfig(noRunner{}, discardSink{}, newLogger()))
		if err != nil {
			return err
		}
		res, err := svc.Preflight(cmd.Context(), files)
		if err != nil {
			return err
		}

		if res.Valid {
			printOK("%d pages within limits", res.PageCount)
		} else {
			printWarn("%d pages, issues found", res.PageCount)
		}
		return api.Output(res)
	},
}

func init() {
	rootCmd.AddCommand(preflightCmd)
}
