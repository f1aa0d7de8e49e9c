package stats

import (
	"encoding/csv"
	"io"
	"strconv"

	"caevo/internal/model"
)

func WriteFitnessCSV(w io.Writer, history []model.FitnessRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"generation", "max_fitness", "good_fitness", "mean_fitness"}); err != nil {
		return err
	}
	for _, rec := range history {
		if err := writer.Write([]string{
			strconv.Itoa(rec.Generation),
			strconv.FormatFloat(rec.MaxFitness, 'f', -1, 64),
			strconv.FormatFloat(rec.GoodFitness, 'f', -1, 64),
			strconv.FormatFloat(rec.MeanFitness, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
