package polito

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"politodown/lib/polito/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// File is a downloadable leaf. Properties holds whatever was scraped
// alongside it (extension and size for material files, the server's
// descriptive table for video lessons). The server-confirmed
// attributes Filename/Size/ModTime/ETag only exist after the first
// Save; reading them earlier is ErrUnresolved, not a zero value.
type File struct {
	session *session.Session

	parent   Node
	name     string
	download *url.URL

	Properties map[string]string
	// video lessons only
	Date      time.Time
	Arguments []string

	resolved bool
	filename string
	size     int64
	modTime  time.Time
	etag     string
}

func newFile(s *session.Session, parent Node, name string, download *url.URL, properties map[string]string) *File {
	if properties == nil {
		properties = map[string]string{}
	}
	return &File{
		session:    s,
		parent:     parent,
		name:       name,
		download:   download,
		Properties: properties,
	}
}

func (f *File) Name() string {
	return f.name
}

func (f *File) RelativePath() string {
	return filepath.Join(f.parent.RelativePath(), SanitizeFilename(f.name))
}

func (f *File) DownloadURL() *url.URL {
	return f.download
}

// Filename is the name the server reports in Content-Disposition.
func (f *File) Filename() (string, error) {
	if !f.resolved {
		return "", ErrUnresolved
	}
	return f.filename, nil
}

// Size is the byte size the server reports in Content-Length.
func (f *File) Size() (int64, error) {
	if !f.resolved {
		return 0, ErrUnresolved
	}
	return f.size, nil
}

// ModTime is the server-reported Last-Modified timestamp.
func (f *File) ModTime() (time.Time, error) {
	if !f.resolved {
		return time.Time{}, ErrUnresolved
	}
	return f.modTime, nil
}

// ETag is the server-reported entity tag.
func (f *File) ETag() (string, error) {
	if !f.resolved {
		return "", ErrUnresolved
	}
	return f.etag, nil
}

// FilenameFunc produces the local file name for a download. It runs
// after the server-confirmed attributes are resolved, so it may use
// them. Returning an empty or blank string skips the download.
type FilenameFunc func(*File) string

type SaveResult int

const (
	// the file was streamed to disk
	SaveDownloaded SaveResult = iota
	// the filename generator declined the file
	SaveSkipped
	// the local copy already matches the server's size and date
	SaveUnchanged
)

type SaveOptions struct {
	// redownload even when the local copy looks current
	Overwrite bool
	// called with the byte count of every chunk written
	Progress func(written int64)
}

var contentDispositionRegex = regexp.MustCompile(`filename="(.+)"`)

// Save streams the file into dir under the name produced by gen,
// writing through a temporary sibling that is atomically renamed into
// place and stamped with the server's modification time. A local copy
// whose size and mtime already match is left alone unless Overwrite
// is set.
func (f *File) Save(ctx context.Context, dir string, gen FilenameFunc, opts SaveOptions) (SaveResult, error) {
	ctx, span := tracer.Start(ctx, "file:Save")
	defer span.End()
	span.SetAttributes(attribute.String("url", f.download.String()))

	stream, err := f.session.Stream(ctx, http.MethodGet, f.download.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return 0, err
	}
	defer stream.Close()

	if stream.StatusCode == http.StatusForbidden {
		span.SetStatus(codes.Error, "file not found")
		return 0, fmt.Errorf("%s: %w", f.download, ErrNotFound)
	}
	if err := stream.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download answered with an error")
		return 0, err
	}

	err = f.resolveAttributes(stream)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve file attributes")
		return 0, err
	}

	filename := SanitizeFilename(gen(f))
	if strings.TrimSpace(filename) == "" {
		span.SetAttributes(attribute.String("result", "skipped"))
		return SaveSkipped, nil
	}
	path := filepath.Join(dir, filename)

	if !opts.Overwrite && f.localCopyCurrent(path) {
		span.SetAttributes(attribute.String("result", "unchanged"))
		return SaveUnchanged, nil
	}

	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return 0, err
	}

	err = f.writeAtomically(path, stream.Body, opts.Progress)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write file")
		return 0, err
	}
	span.SetAttributes(attribute.String("result", "downloaded"))
	return SaveDownloaded, nil
}

func (f *File) resolveAttributes(stream *session.Stream) error {
	disposition := stream.Header.Get("Content-Disposition")
	filename := f.name
	if groups := contentDispositionRegex.FindStringSubmatch(disposition); groups != nil {
		filename = groups[1]
	}

	rawSize := stream.Header.Get("Content-Length")
	size, err := strconv.ParseInt(rawSize, 10, 64)
	if err != nil {
		return fmt.Errorf("content length %q: %w", rawSize, ErrParse)
	}

	rawDate := stream.Header.Get("Last-Modified")
	modTime, err := http.ParseTime(rawDate)
	if err != nil {
		return fmt.Errorf("last modified %q: %w", rawDate, ErrParse)
	}

	f.filename = filename
	f.size = size
	f.modTime = modTime
	f.etag = stream.Header.Get("ETag")
	f.resolved = true
	return nil
}

func (f *File) localCopyCurrent(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	return stat.Size() == f.size && stat.ModTime().Equal(f.modTime)
}

func (f *File) writeAtomically(path string, body io.Reader, progress func(int64)) error {
	tmpPath := path + ".tmp"

	tmp, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	writer := io.Writer(tmp)
	if progress != nil {
		writer = io.MultiWriter(tmp, progressWriter(progress))
	}
	_, err = io.Copy(writer, body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	err = tmp.Sync()
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	err = tmp.Close()
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Chtimes(path, f.modTime, f.modTime)
}

type progressWriter func(int64)

func (w progressWriter) Write(p []byte) (int, error) {
	w(int64(len(p)))
	return len(p), nil
}
