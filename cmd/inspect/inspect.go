// Package inspect implements the raster inspection command.
package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hotspot-detector/geodetect/internal/conf"
	"github.com/hotspot-detector/geodetect/internal/raster"
)

// Corner is one georeferenced pixel position.
type Corner struct {
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Report describes a raster's georeferencing.
type Report struct {
	File      string          `json:"file"`
	Reader    string          `json:"reader"`
	Metadata  raster.Metadata `json:"metadata"`
	Transform [6]float64      `json:"geotransform"` // GDAL order
	Corners   []Corner        `json:"corners"`
}

// Command creates the inspect command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [input.tif]",
		Short: "Print raster metadata, affine transform and corner coordinates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := Inspect(settings.Raster.Reader, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return report.WriteText(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}

// Inspect opens path with the named reader and builds its report.
func Inspect(reader, path string) (*Report, error) {
	opener, err := raster.NewOpener(reader)
	if err != nil {
		return nil, err
	}
	ds, err := opener.Open(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	meta := ds.Metadata()
	w, h := float64(meta.Width), float64(meta.Height)

	report := &Report{
		File:      path,
		Reader:    reader,
		Metadata:  meta,
		Transform: ds.Transform().GDAL(),
	}
	for _, c := range []struct {
		name string
		x, y float64
	}{
		{"upper left", 0, 0},
		{"upper right", w, 0},
		{"lower right", w, h},
		{"lower left", 0, h},
		{"center", w / 2, h / 2},
	} {
		lon, lat := ds.PixelToGeo(c.x, c.y)
		report.Corners = append(report.Corners, Corner{Name: c.name, X: c.x, Y: c.y, Longitude: lon, Latitude: lat})
	}
	return report, nil
}

// WriteText renders the report in a gdalinfo-like layout.
func (r *Report) WriteText(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "File:\t%s\n", r.File)
	fmt.Fprintf(tw, "Reader:\t%s\n", r.Reader)
	fmt.Fprintf(tw, "Size:\t%d x %d, %d band(s)\n", r.Metadata.Width, r.Metadata.Height, r.Metadata.Bands)
	crs := r.Metadata.CRS
	if crs == "" {
		crs = "unknown"
	}
	fmt.Fprintf(tw, "CRS:\t%s\n", crs)
	if r.Metadata.PixelIsPoint {
		fmt.Fprintf(tw, "Raster type:\tPixelIsPoint\n")
	}
	fmt.Fprintf(tw, "Geotransform:\t%v\n", r.Transform)
	fmt.Fprintln(tw, "Corners:")
	for _, c := range r.Corners {
		fmt.Fprintf(tw, "  %s\t(%g, %g)\t%.8f, %.8f\n", c.Name, c.X, c.Y, c.Longitude, c.Latitude)
	}

	return tw.Flush()
}
