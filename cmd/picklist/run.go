package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"picklist/internal"
	"picklist/internal/pipeline"
)

const maxInputBytes = 32 << 20

var (
	runInput  string
	runType   string
	runUser   string
	runOutput string
	runFormat string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate a picklist from an order document",
	Long: `Generate a picklist from an order document and export it.

Examples:
  # Plain text order from stdin, CSV to stdout
  cat order.txt | picklist run --user salon-7 --format csv

  # Forwarded order email to an XLSX file
  picklist run --input order.eml --user salon-7 --output out/order.xlsx`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		blob, inputType, err := readInput()
		if err != nil {
			return err
		}
		items, err := pipeline.ExtractItems(inputType, blob)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("no order items found in %s", orStdin(runInput))
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		pl := a.Processing.Generate(cmd.Context(), runUser, items)
		return writePicklist(pl)
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "-", "order document, - for stdin")
	runCmd.Flags().StringVar(&runType, "type", "", "text|csv|html|xlsx|pdf|eml (default: from extension)")
	runCmd.Flags().StringVar(&runUser, "user", "", "user whose learned preferences apply")
	runCmd.Flags().StringVar(&runOutput, "output", "", "output file (default: stdout for csv/json)")
	runCmd.Flags().StringVar(&runFormat, "format", "", "xlsx|csv|json (default: from output extension)")
}

func readInput() ([]byte, internal.ItemSource, error) {
	inputType := internal.ItemSource(strings.ToLower(runType))
	if runInput == "-" || runInput == "" {
		if inputType == "" {
			inputType = internal.SourceText
		}
		blob, err := pipeline.ReadAllLimited(os.Stdin, maxInputBytes)
		return blob, inputType, err
	}

	f, err := os.Open(runInput)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	if inputType == "" {
		inputType = pipeline.InputTypeFromPath(runInput)
	}
	blob, err := pipeline.ReadAllLimited(f, maxInputBytes)
	return blob, inputType, err
}

func writePicklist(pl internal.Picklist) error {
	format := strings.ToLower(runFormat)
	if format == "" {
		switch strings.ToLower(filepath.Ext(runOutput)) {
		case ".xlsx":
			format = "xlsx"
		case ".json":
			format = "json"
		default:
			format = "csv"
		}
	}

	if format == "xlsx" {
		if runOutput == "" {
			return fmt.Errorf("--output is required for xlsx")
		}
		if err := pipeline.ExportXLSX(pl, runOutput); err != nil {
			return err
		}
		logger.Info("picklist exported", zap.String("path", runOutput), zap.String("batchId", pl.BatchID))
		return nil
	}

	var w io.Writer = os.Stdout
	if runOutput != "" {
		f, err := os.Create(runOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "csv":
		return pipeline.ExportCSV(pl, w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(pl)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func orStdin(path string) string {
	if path == "" || path == "-" {
		return "stdin"
	}
	return path
}
