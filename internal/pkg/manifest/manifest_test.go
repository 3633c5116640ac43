package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airenas/tflow/internal/pkg/api"
	"github.com/airenas/tflow/internal/pkg/test"
	"github.com/airenas/tflow/internal/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defOptions = Options{Language: "auto", SummaryMode: api.SummaryBullet}

func TestParse_Entries(t *testing.T) {
	m, err := Parse(strings.NewReader(`
language: lt
diarization: true
files:
  - path: a.mp3
  - path: /in/b.wav
    language: en
    summary_mode: minutes
    diarization: false
  - path: c.m4a
    speakers: 3
`), "dir")
	require.Nil(t, err)

	res, err := m.Entries(defOptions)

	require.Nil(t, err)
	require.Equal(t, 3, len(res))
	assert.Equal(t, Entry{Path: "dir/a.mp3", Options: Options{Language: "lt", SummaryMode: api.SummaryBullet, Diarization: true}}, res[0])
	assert.Equal(t, Entry{Path: "/in/b.wav", Options: Options{Language: "en", SummaryMode: api.SummaryMinutes}}, res[1])
	assert.Equal(t, Entry{Path: "dir/c.m4a", Options: Options{Language: "lt", SummaryMode: api.SummaryBullet, Diarization: true, Speakers: 3}}, res[2])
}

func TestParse_Fails(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "no files", data: "language: lt\n"},
		{name: "no path", data: "files:\n  - language: lt\n"},
		{name: "bad yaml", data: "files: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.data), "")
			assert.NotNil(t, err)
		})
	}
}

func TestEntries_Fails(t *testing.T) {
	m, err := Parse(strings.NewReader("files:\n  - path: a.mp3\n    summary_mode: olia\n"), "")
	require.Nil(t, err)
	_, err = m.Entries(defOptions)
	assert.NotNil(t, err)

	m, err = Parse(strings.NewReader("speakers: -1\nfiles:\n  - path: a.mp3\n"), "")
	require.Nil(t, err)
	_, err = m.Entries(defOptions)
	assert.NotNil(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "batch.yaml")
	require.Nil(t, os.WriteFile(file, []byte("files:\n  - path: a.mp3\n"), 0600))

	m, err := Load(file)

	require.Nil(t, err)
	res, err := m.Entries(defOptions)
	require.Nil(t, err)
	assert.Equal(t, filepath.Join(dir, "a.mp3"), res[0].Path)
	_, err = Load(filepath.Join(dir, "none.yaml"))
	assert.NotNil(t, err)
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, size int) string { return test.File(t, dir, name, size) }
	entries := []Entry{
		{Path: write("a.mp3", 10), Options: Options{Language: "lt"}},
		{Path: write("b.txt", 10)},
		{Path: filepath.Join(dir, "none.mp3")},
		{Path: write("c.wav", 20), Options: Options{Diarization: true, Speakers: 2}},
		{Path: write("d.ogg", 10)},
	}
	p := validator.DefaultPolicy()
	p.MaxFiles = 2

	res, vr := Build(entries, p)

	require.Equal(t, 2, len(res))
	assert.Equal(t, &api.UploadRequest{Path: entries[0].Path, DisplayName: "a.mp3", SizeBytes: 10,
		MIMEHint: res[0].MIMEHint, Language: "lt"}, res[0])
	assert.Equal(t, "c.wav", res[1].DisplayName)
	assert.True(t, res[1].Diarization)
	assert.Equal(t, 2, res[1].Speakers)
	require.Equal(t, 3, len(vr.Rejected))
	assert.Equal(t, "none.mp3", vr.Rejected[0].Candidate.Name)
	assert.ErrorIs(t, vr.Rejected[1], validator.ErrUnsupportedType)
	assert.ErrorIs(t, vr.Rejected[2], validator.ErrTooMany)
	assert.True(t, vr.HasTooMany())
}
