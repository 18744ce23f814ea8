package storyboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/script2video/internal/errs"
)

// docScene mirrors Scene with pointers so missing required fields are
// distinguishable from zero values on load.
type docScene struct {
	ID           *int     `json:"scene_id" yaml:"scene_id"`
	Text         *string  `json:"text" yaml:"text"`
	DurationSecs *float64 `json:"duration_secs" yaml:"duration_secs"`
	Type         string   `json:"type" yaml:"type"`
	BgColor      string   `json:"bg_color" yaml:"bg_color"`
	VisualHint   string   `json:"visual_hint" yaml:"visual_hint"`
}

type document struct {
	Title  *string     `json:"title" yaml:"title"`
	Scenes *[]docScene `json:"scenes" yaml:"scenes"`
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Marshal encodes the storyboard as pretty-printed JSON, leaving non-ASCII
// and HTML characters unescaped.
func Marshal(sb *Storyboard) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sb); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes and validates a JSON storyboard document.
func Unmarshal(data []byte) (*Storyboard, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.E(errs.KindFormat, "storyboard.decode", "malformed json: %w", err)
	}
	return doc.toStoryboard()
}

// WriteStoryboard persists sb at path. The document is written to a temp
// file in the same directory and renamed, so readers never see a partial one.
func WriteStoryboard(sb *Storyboard, path string) error {
	const op = "storyboard.write"

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(sb)
	} else {
		data, err = Marshal(sb)
	}
	if err != nil {
		return errs.Wrap(errs.KindFormat, op, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.Wrap(errs.KindStorage, op, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errs.Wrap(errs.KindStorage, op, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindStorage, op, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindStorage, op, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.KindStorage, op, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return errs.Wrap(errs.KindStorage, op, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errs.Wrap(errs.KindStorage, op, err)
	}
	return nil
}

// ReadStoryboard loads the storyboard at path, JSON or YAML by extension.
func ReadStoryboard(path string) (*Storyboard, error) {
	const op = "storyboard.read"

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.E(errs.KindNotFound, op, "%s: %w", path, err)
		}
		return nil, errs.Wrap(errs.KindStorage, op, err)
	}

	if !isYAML(path) {
		return Unmarshal(data)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.E(errs.KindFormat, op, "malformed yaml: %w", err)
	}
	return doc.toStoryboard()
}

func (d document) toStoryboard() (*Storyboard, error) {
	const op = "storyboard.validate"

	if d.Title == nil {
		return nil, errs.E(errs.KindFormat, op, "missing title")
	}
	if d.Scenes == nil {
		return nil, errs.E(errs.KindFormat, op, "missing scenes")
	}

	sb := &Storyboard{Title: *d.Title, Scenes: make([]Scene, 0, len(*d.Scenes))}
	for i, ds := range *d.Scenes {
		switch {
		case ds.ID == nil:
			return nil, errs.E(errs.KindFormat, op, "scene %d: missing scene_id", i+1)
		case ds.Text == nil:
			return nil, errs.E(errs.KindFormat, op, "scene %d: missing text", i+1)
		case ds.DurationSecs == nil:
			return nil, errs.E(errs.KindFormat, op, "scene %d: missing duration_secs", i+1)
		}
		if *ds.ID != i+1 {
			return nil, errs.E(errs.KindFormat, op, "scene %d: scene_id %d out of sequence", i+1, *ds.ID)
		}
		if strings.TrimSpace(*ds.Text) == "" {
			return nil, errs.E(errs.KindFormat, op, "scene %d: empty text", i+1)
		}
		if *ds.DurationSecs <= 0 {
			return nil, errs.E(errs.KindFormat, op, "scene %d: non-positive duration %v", i+1, *ds.DurationSecs)
		}

		kind := SceneType(ds.Type)
		switch kind {
		case "":
			kind = TypeStandard
		case TypeStandard, TypeExample, TypeDefinition, TypeSummary:
		default:
			return nil, errs.E(errs.KindFormat, op, "scene %d: unknown type %q", i+1, ds.Type)
		}

		sb.Scenes = append(sb.Scenes, Scene{
			ID:           *ds.ID,
			Text:         *ds.Text,
			DurationSecs: *ds.DurationSecs,
			Type:         kind,
			BgColor:      ds.BgColor,
			VisualHint:   ds.VisualHint,
		})
	}
	return sb, nil
}

// Path returns where the storyboard of videoID lives under dir.
func Path(dir, videoID string) string {
	return filepath.Join(dir, videoID+".json")
}
