package setup

import (
	"encoding/json"
	"fmt"

	"github.com/airenas/tflow/internal/pkg/batch"
	"github.com/airenas/tflow/internal/pkg/utils"
	"go.uber.org/multierr"
)

// SaveResults writes successful item results as json files into dir
func SaveResults(dir string, s *batch.Summary) error {
	if dir == "" || s == nil {
		return nil
	}
	var res error
	for _, it := range s.Items {
		if it.Status != batch.Success || it.Result == nil {
			continue
		}
		data := []byte(it.Result.Raw)
		if len(data) == 0 {
			var err error
			if data, err = json.MarshalIndent(it.Result, "", "  "); err != nil {
				res = multierr.Append(res, fmt.Errorf("can't marshal %s: %w", it.Name, err))
				continue
			}
		}
		if err := utils.WriteFile(utils.ResultFileName(dir, it.Name), data); err != nil {
			res = multierr.Append(res, fmt.Errorf("can't save %s: %w", it.Name, err))
		}
	}
	return res
}
