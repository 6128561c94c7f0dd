package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"shielded-feed/internal/sampler"
)

// SampleOptions configure a one-off sampling pass.
type SampleOptions struct {
	WindowBlocks int64
	Stride       int64
	CSVPath      string
}

// Sample walks the configured window once and prints the series.
func (a *App) Sample(ctx context.Context, opts SampleOptions, out io.Writer) error {
	n, err := a.openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	window := a.Config.Sampler.WindowBlocks
	if opts.WindowBlocks > 0 {
		window = opts.WindowBlocks
	}
	stride := a.Config.Sampler.Stride
	if opts.Stride > 0 {
		stride = opts.Stride
	}

	series, err := n.sampler.Sample(ctx, window, stride)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("samples", len(series)).Int64("window", window).Int64("stride", stride).Msg("sampling pass complete")

	if opts.CSVPath != "" {
		return writeSeriesCSV(opts.CSVPath, series)
	}
	return printSeries(out, series)
}

func printSeries(out io.Writer, series sampler.Series) error {
	if len(series) == 0 {
		fmt.Fprintln(out, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Height\tTime (UTC)\tSprout\tSapling\tOrchard\tTotal")
	for _, s := range series {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s\n",
			s.Height,
			s.Timestamp.UTC().Format(time.RFC3339),
			formatDecimal(s.Sprout, 2),
			formatDecimal(s.Sapling, 2),
			formatDecimal(s.Orchard, 2),
			formatDecimal(s.Total, 2),
		)
	}
	return writer.Flush()
}

func writeSeriesCSV(path string, series sampler.Series) error {
	if len(series) == 0 {
		return errors.New("no samples to export")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"height", "block_ts", "sprout", "sapling", "orchard", "total"}); err != nil {
		return err
	}
	for _, s := range series {
		record := []string{
			strconv.FormatInt(s.Height, 10),
			s.Timestamp.UTC().Format(time.RFC3339),
			s.Sprout.String(),
			s.Sapling.String(),
			s.Orchard.String(),
			s.Total.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
