// Package analyze implements the one-shot analysis command.
package analyze

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hotspot-detector/geodetect/internal/app"
	"github.com/hotspot-detector/geodetect/internal/conf"
)

// Command creates the analyze command.
func Command(settings *conf.Settings) *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "analyze [input.tif]",
		Short: "Analyze a GeoTIFF and print the detections as JSON",
		Long:  "Run the detection pipeline once over a local GeoTIFF, the same way POST /analyze_geotiff does.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gateway := app.NewGateway(settings, nil)
			defer gateway.Close()

			if err := gateway.Load(cmd.Context()); err != nil {
				return fmt.Errorf("model not loaded: %w", err)
			}

			pipeline, err := app.NewPipeline(settings, gateway, nil)
			if err != nil {
				return err
			}

			result, err := pipeline.Analyze(cmd.Context(), args[0], filepath.Base(args[0]))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(result)
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, "Print JSON on a single line")

	return cmd
}
