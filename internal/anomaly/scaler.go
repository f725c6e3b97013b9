package anomaly

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// errDegenerate reports a feature matrix the model cannot be fit on: every
// column constant, or non-finite values present.
var errDegenerate = errors.New("degenerate feature matrix")

// standardScaler centers each column to zero mean and unit variance, fit on
// the same batch the model is fit on. Constant columns pass through with
// scale 1 so a single flat feature does not poison the batch.
type standardScaler struct {
	mean  []float64
	scale []float64
}

func fitScaler(rows [][]float64) (*standardScaler, error) {
	if len(rows) == 0 {
		return nil, errDegenerate
	}
	width := len(rows[0])
	s := &standardScaler{
		mean:  make([]float64, width),
		scale: make([]float64, width),
	}

	column := make([]float64, len(rows))
	varying := false
	for col := 0; col < width; col++ {
		for i, row := range rows {
			v := row[col]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errDegenerate
			}
			column[i] = v
		}
		s.mean[col] = stat.Mean(column, nil)
		std := stat.PopStdDev(column, nil)
		if std > 0 {
			s.scale[col] = std
			varying = true
		} else {
			s.scale[col] = 1
		}
	}

	if !varying {
		return nil, errDegenerate
	}
	return s, nil
}

func (s *standardScaler) transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled := make([]float64, len(row))
		for col, v := range row {
			scaled[col] = (v - s.mean[col]) / s.scale[col]
		}
		out[i] = scaled
	}
	return out
}
