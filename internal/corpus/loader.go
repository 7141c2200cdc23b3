package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/linematch/pkg/errors"
)

// Loader produces a fresh snapshot of the file at path.
type Loader interface {
	Load(path string) (*Snapshot, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string) (*Snapshot, error)

func (f LoaderFunc) Load(path string) (*Snapshot, error) { return f(path) }

// FileLoader reads the corpus from the local filesystem.
type FileLoader struct{}

// Load opens path, reads every line and returns them sorted. Open and read
// failures are reported as ErrFileUnavailable.
func (FileLoader) Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrFileUnavailable, "corpus.load", "opening %s: %v", path, err)
	}
	defer f.Close()

	var sizeHint int64
	if info, err := f.Stat(); err == nil {
		sizeHint = info.Size()
	}
	lines, err := ReadLines(f, sizeHint)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrFileUnavailable, "corpus.load", "reading %s: %v", path, err)
	}
	return NewSnapshot(path, lines), nil
}

// ReadLines splits r into lines with their "\n" or "\r\n" terminators
// removed. A final line without terminator is kept; the empty string after a
// trailing newline is not. sizeHint, when positive, pre-sizes the result.
func ReadLines(r io.Reader, sizeHint int64) ([]string, error) {
	capHint := 0
	if sizeHint > 0 {
		// Rough guess of 16 bytes per line, capped to stay cheap on huge files.
		capHint = int(min(sizeHint/16, 1<<22))
	}
	lines := make([]string, 0, capHint)
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			lines = append(lines, trimTerminator(line))
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", len(lines)+1, err)
		}
	}
}

func trimTerminator(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
