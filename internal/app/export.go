package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"tornwatch/internal/monitor"
)

// Export renders an item's recorded price history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.ItemID <= 0 {
		return errors.New("a positive --item id is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	points, err := monitor.History(ctx, st, opts.ItemID)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Int64("item_id", opts.ItemID).Msg("no recorded history for item")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, opts.ItemID, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func downsamplePoints(points []monitor.PricePoint, max int) []monitor.PricePoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]monitor.PricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, points []monitor.PricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"time", "median", "min", "max"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.Time.UTC().Format(time.RFC3339),
			formatOptional(p.Median),
			formatOptional(p.Min),
			formatOptional(p.Max),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writePointsPNG(path string, itemID int64, points []monitor.PricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	median := make([]float64, len(points))
	minSeries := make([]float64, len(points))
	maxSeries := make([]float64, len(points))

	for i, p := range points {
		x[i] = p.Time
		median[i] = optionalFloat(p.Median)
		minSeries[i] = optionalFloat(p.Min)
		maxSeries[i] = optionalFloat(p.Max)
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("Item %d listing prices", itemID),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price ($)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Median",
				XValues: x,
				YValues: median,
			},
			chart.TimeSeries{
				Name:    "Min",
				XValues: x,
				YValues: minSeries,
			},
			chart.TimeSeries{
				Name:    "Max",
				XValues: x,
				YValues: maxSeries,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatOptional(v *int64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(*v)
}

func optionalFloat(v *int64) float64 {
	if v == nil {
		return 0
	}
	return float64(*v)
}
