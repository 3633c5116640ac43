package validator

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrEmpty file has no name
	ErrEmpty = errors.New("no file")
	// ErrUnsupportedType file extension and MIME type are both not allowed
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrTooLarge file exceeds size limit
	ErrTooLarge = errors.New("file too large")
	// ErrTooMany file is beyond batch limit
	ErrTooMany = errors.New("too many files")
)

// Candidate is a file offered for processing
type Candidate struct {
	Path string
	Name string
	Size int64
	MIME string
}

// Rejection explains why a candidate was not accepted
type Rejection struct {
	Candidate Candidate
	Err       error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %v", r.Candidate.Name, r.Err)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Policy for accepting files
type Policy struct {
	MaxSize    int64
	MaxFiles   int
	Extensions []string
	MIMETypes  []string
}

// DefaultPolicy returns audio upload policy
func DefaultPolicy() Policy {
	return Policy{MaxSize: 25 * 1024 * 1024, MaxFiles: 10,
		Extensions: []string{".mp3", ".wav", ".m4a", ".ogg"},
		MIMETypes: []string{"audio/mpeg", "audio/mp3", "audio/wav", "audio/x-wav", "audio/wave",
			"audio/mp4", "audio/x-m4a", "audio/m4a", "audio/ogg"}}
}

// Result of validation
type Result struct {
	Accepted []Candidate
	Rejected []*Rejection
}

// HasTooMany returns true if some files were rejected because of the batch limit
func (r *Result) HasTooMany() bool {
	for _, rj := range r.Rejected {
		if errors.Is(rj.Err, ErrTooMany) {
			return true
		}
	}
	return false
}

// Validate splits files into accepted and rejected ones, order is preserved
func (p Policy) Validate(files []Candidate) *Result {
	res := &Result{}
	for _, f := range files {
		if err := p.check(f); err != nil {
			res.Rejected = append(res.Rejected, &Rejection{Candidate: f, Err: err})
			continue
		}
		if p.MaxFiles > 0 && len(res.Accepted) >= p.MaxFiles {
			res.Rejected = append(res.Rejected, &Rejection{Candidate: f,
				Err: errors.Wrapf(ErrTooMany, "max %d files", p.MaxFiles)})
			continue
		}
		res.Accepted = append(res.Accepted, f)
	}
	return res
}

// Check validates one file ignoring the batch limit
func (p Policy) Check(f Candidate) error {
	if err := p.check(f); err != nil {
		return &Rejection{Candidate: f, Err: err}
	}
	return nil
}

func (p Policy) check(f Candidate) error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmpty
	}
	if !p.typeAllowed(f) {
		return ErrUnsupportedType
	}
	if p.MaxSize > 0 && f.Size > p.MaxSize {
		return errors.Wrapf(ErrTooLarge, "%d > %d bytes", f.Size, p.MaxSize)
	}
	return nil
}

func (p Policy) typeAllowed(f Candidate) bool {
	ext := strings.ToLower(filepath.Ext(f.Name))
	for _, e := range p.Extensions {
		if ext != "" && ext == strings.ToLower(e) {
			return true
		}
	}
	mt := mimeBase(f.MIME)
	for _, m := range p.MIMETypes {
		if mt != "" && mt == strings.ToLower(m) {
			return true
		}
	}
	return false
}

func mimeBase(s string) string {
	if s == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return mt
}

// FromPath makes candidate from a local file
func FromPath(path string) (Candidate, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Candidate{}, fmt.Errorf("can't stat '%s': %w", path, err)
	}
	if st.IsDir() {
		return Candidate{}, fmt.Errorf("'%s' is a directory", path)
	}
	return Candidate{Path: path, Name: filepath.Base(path), Size: st.Size(),
		MIME: mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))}, nil
}
