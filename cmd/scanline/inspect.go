package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanline/internal/api"
	"github.com/jackzampolin/scanline/internal/searchpdf"
)

var inspectText bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <pdf>",
	Short: "Read back a searchable PDF",
	Long: `Inspect a PDF produced by scanline (or any other PDF).

Reports the page count, page image sizes and the length of each page's text
layer. With --text, prints the extracted text instead, pages separated by a
form feed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		if inspectText {
			pages, err := searchpdf.ReadText(data)
			if err != nil {
				return err
			}
			for i, text := range pages {
				if i > 0 {
					fmt.Print("\f")
				}
				fmt.Println(text)
			}
			return nil
		}

		ins, err := searchpdf.Inspect(data)
		if err != nil {
			return err
		}
		if !ins.Valid {
			printWarn("%s: %s", args[0], ins.Problem)
		}
		return api.Output(ins)
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectText, "text", false, "Print the text layer instead of the page summary")
	rootCmd.AddCommand(inspectCmd)
}
