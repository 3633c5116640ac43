package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/api"
)

// ResultFile is the name of the saved result document
const ResultFile = "result.json"

// FileSaver provides save file functionality
type FileSaver interface {
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
}

// Archiver keeps processing results in object storage
type Archiver struct {
	saver FileSaver
}

// NewArchiver creates archiver
func NewArchiver(saver FileSaver) (*Archiver, error) {
	if saver == nil {
		return nil, fmt.Errorf("no file saver")
	}
	return &Archiver{saver: saver}, nil
}

// SaveResult writes {requestID}/result.json, the server document is saved as received
func (a *Archiver) SaveResult(ctx context.Context, requestID string, res *api.ProcessingResult) error {
	if requestID == "" {
		return fmt.Errorf("no request ID")
	}
	if res == nil {
		return fmt.Errorf("no result")
	}
	data := []byte(res.Raw)
	if len(data) == 0 {
		var err error
		if data, err = json.Marshal(res); err != nil {
			return fmt.Errorf("can't marshal result: %w", err)
		}
	}
	name := path.Join(requestID, ResultFile)
	if err := a.saver.SaveFile(ctx, name, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("can't save %s: %w", name, err)
	}
	goapp.Log.Info().Str("ID", requestID).Str("file", name).Msg("archived")
	return nil
}
