package polito

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"politodown/lib/htmlutil"
	"politodown/lib/polito/session"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// Material is a subject's didactic material for one year. Its children
// are the subject's assignments, folders in everything but name.
type Material struct {
	session *session.Session

	Year int
	name string

	incarichi   *url.URL
	assignments map[string]*Folder
}

func newMaterial(s *session.Session, year int, name, typ, mat string) *Material {
	incarichi := s.Didattica.JoinPath(incarichiPath)
	incarichi.RawQuery = url.Values{
		"mat": {mat},
		"aa":  {strconv.Itoa(year)},
		"typ": {typ},
	}.Encode()

	return &Material{
		session:   s,
		Year:      year,
		name:      name,
		incarichi: incarichi,
	}
}

func (m *Material) Name() string {
	return m.name
}

func (m *Material) RelativePath() string {
	return filepath.Join(strconv.Itoa(m.Year), SanitizeFilename(m.name))
}

// Assignments fetches the subject's assignments once and caches them.
// The cache is replaced wholesale when forceUpdate is set.
func (m *Material) Assignments(ctx context.Context, forceUpdate bool) (map[string]*Folder, error) {
	if len(m.assignments) > 0 && !forceUpdate {
		return m.assignments, nil
	}

	ctx, span := tracer.Start(ctx, "material:Assignments")
	defer span.End()

	res, err := m.session.Send(ctx, http.MethodGet, m.incarichi.String(), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch assignments")
		return nil, err
	}
	if err := res.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment listing answered with an error")
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	assignments := map[string]*Folder{}
	for _, anchor := range htmlutil.GetAnchors(ctx, doc.Find("a.policorpo")) {
		groups := folderRegex.FindStringSubmatch(anchor.Href)
		if groups == nil {
			continue
		}
		assignments[anchor.Name] = newFolder(
			m.session, m, KindAssignment, anchor.Name,
			groups[1], groups[2], groups[3],
		)
	}

	m.assignments = assignments
	return m.assignments, nil
}
