// Package version implements the version command.
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hotspot-detector/geodetect/internal/buildinfo"
	"github.com/hotspot-detector/geodetect/internal/raster"
)

// Command creates the version command.
func Command(build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.String())
			fmt.Fprintf(cmd.OutOrStdout(), "raster readers: %v\n", raster.Readers())
		},
	}
}
