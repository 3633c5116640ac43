package mocks

import (
	"context"
	"io"

	"github.com/airenas/tflow/internal/pkg/api"
	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/mock"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error {
	args := m.Called(ctx, name, r, fileSize)
	return args.Error(0)
}

// Clearer is server clear mock
type Clearer struct{ mock.Mock }

func (m *Clearer) Clear(ctx context.Context, IDs ...string) error {
	args := m.Called(ctx, IDs)
	return args.Error(0)
}

// Uploader is transcription client mock
type Uploader struct{ mock.Mock }

func (m *Uploader) Upload(ctx context.Context, requestID string, data *api.UploadRequest, onSent func()) (*api.ProcessingResult, error) {
	args := m.Called(ctx, requestID, data, onSent)
	return to[*api.ProcessingResult](args.Get(0)), args.Error(1)
}

// Archiver is result archive mock
type Archiver struct{ mock.Mock }

func (m *Archiver) SaveResult(ctx context.Context, requestID string, res *api.ProcessingResult) error {
	args := m.Called(ctx, requestID, res)
	return args.Error(0)
}

// Runner is upload task mock
type Runner struct{ mock.Mock }

func (m *Runner) Execute(ctx context.Context, req *api.UploadRequest) (string, *api.ProcessingResult, error) {
	args := m.Called(ctx, req)
	return args.String(0), to[*api.ProcessingResult](args.Get(1)), args.Error(2)
}

// EmailSender is email sender mock
type EmailSender struct{ mock.Mock }

func (m *EmailSender) Send(email *email.Email) error {
	args := m.Called(email)
	return args.Error(0)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
