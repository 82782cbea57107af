package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanline/internal/api"
	"github.com/jackzampolin/scanline/internal/ocr/tesseract"
	"github.com/jackzampolin/scanline/version"
)

type versionInfo struct {
	Release   string `json:"release" yaml:"release"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	Go        string `json:"go" yaml:"go"`
	Tesseract string `json:"tesseract" yaml:"tesseract"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and OCR library versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return api.Output(versionInfo{
			Release:   version.GitRelease,
			Commit:    version.GitCommit,
			Date:      version.GitCommitDate,
			Go:        version.GoInfo,
			Tesseract: tesseract.LibraryVersion(),
		})
	},
}
