package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/internal/domain/textnorm"
)

const (
	frontMatterDelim = "---"
	slugMaxLen       = 50
	fileExt          = ".md"
	hashSuffixLen    = 8
)

// FileStore keeps one Markdown file per record: YAML front matter followed
// by the description as body. New records are written to the root
// directory; extra directories are only read.
type FileStore struct {
	root  string
	extra []string

	mu     sync.Mutex
	closed bool
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithReadDirs adds directories (published or archived records) that List
// scans in addition to the root.
func WithReadDirs(dirs ...string) FileOption {
	return func(s *FileStore) {
		for _, d := range dirs {
			if d != "" {
				s.extra = append(s.extra, d)
			}
		}
	}
}

// NewFileStore opens a Markdown store rooted at dir, creating it if needed.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "filestore: create %s", dir)
	}
	s := &FileStore{root: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FileName returns the file name a record is stored under.
func FileName(rec *model.EventRecord) string {
	slug := textnorm.Slug(rec.Title, slugMaxLen)
	if slug == "" {
		slug = rec.Hash()
	}
	return rec.Date.String() + "-" + slug + fileExt
}

// hashedFileName is the fallback name for a record whose dated slug is
// taken by a different occurrence.
func hashedFileName(rec *model.EventRecord) string {
	name := strings.TrimSuffix(FileName(rec), fileExt)
	return name + "-" + rec.Hash()[:hashSuffixLen] + fileExt
}

// targetFor picks the file rec is written to. A taken name only counts as
// a collision when the file there holds the same identity hash.
func (s *FileStore) targetFor(rec *model.EventRecord) (string, error) {
	hash := rec.Hash()
	var path string
	for _, name := range []string{FileName(rec), hashedFileName(rec)} {
		path = filepath.Join(s.root, name)
		_, err := os.Lstat(path)
		if os.IsNotExist(err) {
			return path, nil
		}
		if err != nil {
			return path, eris.Wrapf(err, "filestore: stat %s", path)
		}
		if existing, err := readRecord(path); err == nil && existing.Hash() == hash {
			return path, fmt.Errorf("%s: %w", path, ErrAlreadyExists)
		}
	}
	return path, fmt.Errorf("%s: %w", path, ErrNameTaken)
}

// List implements Store. Directories are walked in lexical order; missing
// extra directories are skipped.
func (s *FileStore) List(ctx context.Context) (Catalog, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Catalog{}, ErrClosed
	}

	var out Catalog
	for _, dir := range append([]string{s.root}, s.extra...) {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) && path == dir {
					return filepath.SkipDir
				}
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || filepath.Ext(path) != fileExt || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			rec, err := readRecord(path)
			if err != nil {
				if model.IsParseFailure(err) || isFrontMatterError(err) {
					out.Failures = append(out.Failures, LoadFailure{Target: path, Err: err})
					return nil
				}
				return err
			}
			out.Entries = append(out.Entries, Entry{Record: rec, Target: path})
			return nil
		})
		if err != nil {
			return Catalog{}, eris.Wrapf(err, "filestore: list %s", dir)
		}
	}
	return out, nil
}

// Put implements Store. The file is written to a temporary name and renamed
// into place so readers never see a partial document. Records sharing a
// date and title but not an identity hash get a hash suffix on the name.
func (s *FileStore) Put(ctx context.Context, rec model.EventRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.targetFor(&rec)
	if err != nil {
		return path, err
	}

	doc, err := encodeDocument(&rec)
	if err != nil {
		return path, err
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*"+fileExt)
	if err != nil {
		return path, eris.Wrap(err, "filestore: create temp")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return path, eris.Wrapf(err, "filestore: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return path, eris.Wrapf(err, "filestore: close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return path, eris.Wrapf(err, "filestore: rename %s", path)
	}
	return path, nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type frontMatterError struct {
	path string
	err  error
}

func (e *frontMatterError) Error() string {
	return fmt.Sprintf("%s: front matter: %v", e.path, e.err)
}

func (e *frontMatterError) Unwrap() error { return e.err }

func isFrontMatterError(err error) bool {
	var fm *frontMatterError
	return errors.As(err, &fm)
}

func readRecord(path string) (model.EventRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.EventRecord{}, err
	}
	front, body, ok := splitFrontMatter(data)
	if !ok {
		return model.EventRecord{}, &frontMatterError{path: path, err: fmt.Errorf("missing %q delimiters", frontMatterDelim)}
	}
	var raw model.RawEvent
	if err := yaml.Unmarshal(front, &raw); err != nil {
		return model.EventRecord{}, &frontMatterError{path: path, err: err}
	}
	if raw.Description == "" {
		raw.Description = strings.TrimSpace(string(body))
	}
	rec, err := model.ParseRawEvent(raw)
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

func splitFrontMatter(data []byte) (front, body []byte, ok bool) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if !bytes.HasPrefix(data, []byte(frontMatterDelim+"\n")) {
		return nil, nil, false
	}
	rest := data[len(frontMatterDelim)+1:]
	end := bytes.Index(rest, []byte("\n"+frontMatterDelim))
	if end < 0 {
		return nil, nil, false
	}
	front = rest[:end+1]
	body = rest[end+1+len(frontMatterDelim):]
	return front, body, true
}

func encodeDocument(rec *model.EventRecord) ([]byte, error) {
	raw := model.ToRaw(rec)
	description := raw.Description
	raw.Description = ""

	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(raw); err != nil {
		return nil, eris.Wrap(err, "filestore: encode front matter")
	}
	if err := enc.Close(); err != nil {
		return nil, eris.Wrap(err, "filestore: encode front matter")
	}
	buf.WriteString(frontMatterDelim + "\n")
	if description != "" {
		buf.WriteString("\n" + description + "\n")
	}
	return buf.Bytes(), nil
}
