package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/script2video/internal/errs"
)

// Source yields the raw text of a lesson script.
type Source interface {
	LoadScript(path string) (string, error)
}

var scriptExtensions = []string{".txt", ".md", ".pdf"}

// FileSource reads plain-text scripts from disk and extracts the text of
// PDF scripts page by page.
type FileSource struct{}

func (FileSource) LoadScript(path string) (string, error) {
	const op = "source.load"

	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errs.E(errs.KindNotFound, op, "%s: %w", path, err)
		}
		return "", errs.Wrap(errs.KindInput, op, err)
	}
	if fi.IsDir() {
		return "", errs.E(errs.KindInput, op, "%s is a directory", path)
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := pdfText(path)
		if err != nil {
			return "", errs.Wrap(errs.KindInput, op, err)
		}
		return text, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errs.Wrap(errs.KindInput, op, err)
	}
	if !utf8.Valid(data) {
		return "", errs.E(errs.KindInput, op, "%s is not valid UTF-8", path)
	}
	return strings.TrimPrefix(string(data), "\uFEFF"), nil
}

func pdfText(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

// FindLatestScript returns the most recently modified script file in dir.
func FindLatestScript(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !isScript(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", errs.E(errs.KindNotFound, "source.latest", "no script files in %s", dir)
	}
	return latestFile, nil
}

func isScript(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range scriptExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
