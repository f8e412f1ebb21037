package download

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
)

var ErrValidation = errors.New("downloaded artifact is invalid")

// Class describes what a valid artifact of one kind looks like.
type Class struct {
	Name     string
	Pattern  string
	MinBytes int64
}

var (
	ClassBundle   = Class{Name: "bundle patch", Pattern: "*.asar", MinBytes: 128 << 10}
	ClassSetup    = Class{Name: "installer", Pattern: "*.{exe,msi}", MinBytes: 1 << 20}
	ClassPortable = Class{Name: "portable executable", Pattern: "*.exe", MinBytes: 1 << 20}
)

type ValidationError struct {
	Path   string
	Class  Class
	Size   int64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Class.Name, e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validate checks the extension and the size floor of a downloaded artifact.
// Files below the floor are treated as corrupt downloads.
func Validate(path string, class Class) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, &ValidationError{Path: path, Class: class, Reason: fmt.Sprintf("stat: %v", err)}
	}
	if st.IsDir() {
		return 0, &ValidationError{Path: path, Class: class, Reason: "is a directory"}
	}
	name := strings.ToLower(filepath.Base(path))
	if ok, _ := doublestar.Match(class.Pattern, name); !ok {
		return st.Size(), &ValidationError{Path: path, Class: class, Size: st.Size(), Reason: fmt.Sprintf("name does not match %s", class.Pattern)}
	}
	if st.Size() < class.MinBytes {
		return st.Size(), &ValidationError{
			Path:   path,
			Class:  class,
			Size:   st.Size(),
			Reason: fmt.Sprintf("size %s below minimum %s", humanize.IBytes(uint64(st.Size())), humanize.IBytes(uint64(class.MinBytes))),
		}
	}
	return st.Size(), nil
}
