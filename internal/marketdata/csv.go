package marketdata

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
)

// CSVProvider reads bars from <dir>/<SYMBOL>_<tf>.csv files with a header of
// timestamp,open,high,low,close,volume and RFC 3339 timestamps.
type CSVProvider struct {
	dir string
}

// NewCSVProvider creates a provider over a directory.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir}
}

// Path returns the file read for symbol and tf.
func (p *CSVProvider) Path(symbol string, tf models.Timeframe) string {
	return filepath.Join(p.dir, fmt.Sprintf("%s_%s.csv", symbol, tf))
}

// Bars loads the file for the timeframe. A missing file yields ErrDataNotFound.
func (p *CSVProvider) Bars(ctx context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error) {
	if err := ctx.Err(); err != nil {
		return models.BarSeries{}, err
	}
	path := p.Path(symbol, tf)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return models.BarSeries{Timeframe: tf}, apperrors.NewDataError(symbol, tf, "no csv file", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return models.BarSeries{}, apperrors.NewProviderError("csv", "open", err)
	}
	defer f.Close()

	series, err := ReadCSV(f, tf)
	if err != nil {
		return models.BarSeries{}, apperrors.NewDataError(symbol, tf, path, err)
	}
	return series, nil
}

// ReadCSV decodes bars from r.
func ReadCSV(r io.Reader, tf models.Timeframe) (models.BarSeries, error) {
	var bars []models.Bar
	if err := gocsv.Unmarshal(r, &bars); err != nil {
		return models.BarSeries{}, apperrors.Wrap(err, "decode csv bars")
	}
	return models.NewBarSeries(tf, bars), nil
}

// LoadCSVFile decodes a single bar file.
func LoadCSVFile(path string, tf models.Timeframe) (models.BarSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.BarSeries{}, apperrors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadCSV(f, tf)
}

// WriteCSV encodes bars to w with the same header ReadCSV expects.
func WriteCSV(w io.Writer, series models.BarSeries) error {
	return apperrors.Wrap(gocsv.Marshal(series.Bars, w), "encode csv bars")
}
