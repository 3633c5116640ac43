package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/airenas/tflow/internal/pkg/api"
	"github.com/airenas/tflow/internal/pkg/validator"
	"gopkg.in/yaml.v3"
)

// Options are the per file processing options
type Options struct {
	Language    string
	SummaryMode api.SummaryMode
	Diarization bool
	Speakers    int
}

// Request makes an upload request for the validated file
func (o Options) Request(c validator.Candidate) *api.UploadRequest {
	return &api.UploadRequest{Path: c.Path, DisplayName: c.Name, SizeBytes: c.Size, MIMEHint: c.MIME,
		Language: o.Language, SummaryMode: o.SummaryMode, Diarization: o.Diarization, Speakers: o.Speakers}
}

// Overrides are optional values replacing the inherited ones
type Overrides struct {
	Language    *string `yaml:"language"`
	SummaryMode *string `yaml:"summary_mode"`
	Diarization *bool   `yaml:"diarization"`
	Speakers    *int    `yaml:"speakers"`
}

// Item is one file of the manifest
type Item struct {
	Path      string `yaml:"path"`
	Overrides `yaml:",inline"`
}

// Manifest is a batch description
type Manifest struct {
	Overrides `yaml:",inline"`
	Files     []Item `yaml:"files"`

	dir string
}

// Entry is a resolved manifest file
type Entry struct {
	Path    string
	Options Options
}

// Load reads manifest file, relative file paths are resolved against the manifest dir
func Load(file string) (*Manifest, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("can't open manifest: %w", err)
	}
	defer f.Close()
	return Parse(f, filepath.Dir(file))
}

// Parse reads manifest
func Parse(r io.Reader, dir string) (*Manifest, error) {
	res := &Manifest{dir: dir}
	if err := yaml.NewDecoder(r).Decode(res); err != nil {
		return nil, fmt.Errorf("can't decode manifest: %w", err)
	}
	if len(res.Files) == 0 {
		return nil, fmt.Errorf("no files in manifest")
	}
	for i, f := range res.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("no path for file %d", i+1)
		}
	}
	return res, nil
}

// Entries applies manifest level and then file level values over the defaults
func (m *Manifest) Entries(def Options) ([]Entry, error) {
	base, err := m.Overrides.apply(def)
	if err != nil {
		return nil, err
	}
	res := make([]Entry, 0, len(m.Files))
	for _, f := range m.Files {
		o, err := f.Overrides.apply(base)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		p := f.Path
		if !filepath.IsAbs(p) && m.dir != "" {
			p = filepath.Join(m.dir, p)
		}
		res = append(res, Entry{Path: p, Options: o})
	}
	return res, nil
}

func (ov Overrides) apply(o Options) (Options, error) {
	if ov.Language != nil {
		o.Language = *ov.Language
	}
	if ov.SummaryMode != nil {
		sm, err := api.ParseSummaryMode(*ov.SummaryMode)
		if err != nil {
			return o, err
		}
		o.SummaryMode = sm
	}
	if ov.Diarization != nil {
		o.Diarization = *ov.Diarization
	}
	if ov.Speakers != nil {
		if *ov.Speakers < 0 {
			return o, fmt.Errorf("wrong speakers %d", *ov.Speakers)
		}
		o.Speakers = *ov.Speakers
	}
	return o, nil
}

// Build stats and validates entries, accepted files become upload requests in input order.
// Files that can't be read are reported as rejected.
func Build(entries []Entry, p validator.Policy) ([]*api.UploadRequest, *validator.Result) {
	var cands []validator.Candidate
	var opts []Options
	var unreadable []*validator.Rejection
	for _, e := range entries {
		c, err := validator.FromPath(e.Path)
		if err != nil {
			unreadable = append(unreadable, &validator.Rejection{
				Candidate: validator.Candidate{Path: e.Path, Name: filepath.Base(e.Path)}, Err: err})
			continue
		}
		cands = append(cands, c)
		opts = append(opts, e.Options)
	}
	vr := p.Validate(cands)
	var res []*api.UploadRequest
	next := 0
	for i, c := range cands {
		if next < len(vr.Accepted) && vr.Accepted[next] == c {
			res = append(res, opts[i].Request(c))
			next++
		}
	}
	vr.Rejected = append(unreadable, vr.Rejected...)
	return res, vr
}
