package polito

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"politodown/lib/htmlutil"
	"politodown/lib/polito/session"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Videostore is one edition of a course's video-lesson catalog. Two
// portal generations serve these: the current one addressed by a cor
// identifier and the legacy e-learning platform addressed by a token
// obtained from a JSON side channel. Both construction paths produce
// the same type, only the markup parsing differs.
type Videostore struct {
	session *session.Session

	Year     int
	Category string
	name     string

	vis    *url.URL
	legacy bool

	videolessons map[string]*File
}

func newVideostore(s *session.Session, year int, category, name, cor string) *Videostore {
	vis := s.Didattica.JoinPath(videoListPath)
	vis.RawQuery = url.Values{"cor": {cor}}.Encode()

	return &Videostore{
		session:  s,
		Year:     year,
		Category: category,
		name:     name,
		vis:      vis,
	}
}

func newVideostoreLegacy(ctx context.Context, s *session.Session, year int, category, name, onclick string) (*Videostore, error) {
	groups := dokeosIncRegex.FindStringSubmatch(onclick)
	if groups == nil {
		return nil, fmt.Errorf("legacy videostore onclick %q: %w", onclick, ErrParse)
	}
	inc := groups[1]

	utente, data, token, err := fetchDokeosParams(ctx, s, inc)
	if err != nil {
		return nil, err
	}

	vis := s.Elearning.JoinPath(legacyVideoPath)
	vis.RawQuery = url.Values{
		"inc":    {inc},
		"utente": {utente},
		"data":   {data},
		"token":  {token},
	}.Encode()

	return &Videostore{
		session:  s,
		Year:     year,
		Category: category,
		name:     name,
		vis:      vis,
		legacy:   true,
	}, nil
}

func (v *Videostore) Name() string {
	return v.name
}

func (v *Videostore) RelativePath() string {
	return filepath.Join(strconv.Itoa(v.Year), SanitizeFilename(v.name))
}

type videolessonEntry struct {
	name      string
	date      time.Time
	arguments []string
	detail    *url.URL
}

// Videolessons fetches the catalog once and caches it, keyed by lesson
// name. Each lesson needs its own detail page for the actual video
// link and file metadata; those fetches are issued together and joined
// before the mapping is returned.
func (v *Videostore) Videolessons(ctx context.Context, forceUpdate bool) (map[string]*File, error) {
	if len(v.videolessons) > 0 && !forceUpdate {
		return v.videolessons, nil
	}

	ctx, span := tracer.Start(ctx, "videostore:Videolessons")
	defer span.End()
	span.SetAttributes(attribute.String("url", v.vis.String()))

	entries, err := v.fetchEntries(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch videolesson listing")
		return nil, err
	}

	var (
		lessons = map[string]*File{}
		errList []error
		mu      sync.Mutex
		wg      sync.WaitGroup
	)
	for _, entry := range entries {
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()

			file, err := v.fetchVideolessonInfo(ctx, entry)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errList = append(errList, err)
				return
			}
			lessons[entry.name] = file
		}()
	}
	wg.Wait()

	if len(errList) > 0 {
		err := errors.Join(errList...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch videolesson details")
		return nil, err
	}

	v.videolessons = lessons
	return v.videolessons, nil
}

func (v *Videostore) listingBase() *url.URL {
	if v.legacy {
		return withTrailingSlash(v.session.Elearning, "gadgets/video/")
	}
	return withTrailingSlash(v.session.Didattica, "pls/portal30/")
}

func withTrailingSlash(base *url.URL, suffix string) *url.URL {
	joined := *base
	joined.Path = strings.TrimSuffix(joined.Path, "/") + "/" + suffix
	return &joined
}

func (v *Videostore) fetchEntries(ctx context.Context) ([]videolessonEntry, error) {
	res, err := v.session.Send(ctx, http.MethodGet, v.vis.String(), nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, err
	}

	var lessons, dates, argGroups *goquery.Selection
	dateLayout := "02/01/2006"
	if v.legacy {
		summary := doc.Find("ul.lezioni").First()
		lessons = summary.Find("a")
		dates = summary.Find("span.small")
		argGroups = summary.Find("li.argEspansi1")
		dateLayout = "2006-01-02"
	} else {
		lessons = doc.Find(`a[style="color:#003576;"]`)
		dates = doc.Find("span.small")
		argGroups = doc.Find("li.argomentiEspansi")
	}

	count := min(lessons.Length(), dates.Length(), argGroups.Length())
	entries := make([]videolessonEntry, 0, count)

	for i := 0; i < count; i++ {
		name := htmlutil.CleanText(lessons.Eq(i).Text())

		// the date reads "del <date>"
		rawDate := strings.TrimSpace(dates.Eq(i).Text())
		if len(rawDate) > 4 {
			rawDate = rawDate[4:]
		}
		date, err := time.Parse(dateLayout, strings.TrimSpace(rawDate))
		if err != nil {
			return nil, fmt.Errorf("videolesson date %q: %w", rawDate, ErrParse)
		}

		var arguments []string
		argGroups.Eq(i).Find("a.argoLink").Each(func(_ int, arg *goquery.Selection) {
			arguments = append(arguments, htmlutil.CleanText(arg.Text()))
		})

		detail, err := v.listingBase().Parse(lessons.Eq(i).AttrOr("href", ""))
		if err != nil {
			return nil, err
		}

		entries = append(entries, videolessonEntry{
			name:      name,
			date:      date,
			arguments: arguments,
			detail:    detail,
		})
	}

	return entries, nil
}

func (v *Videostore) fetchVideolessonInfo(ctx context.Context, entry videolessonEntry) (*File, error) {
	res, err := v.session.Send(ctx, http.MethodGet, entry.detail.String(), nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, err
	}

	videoAnchor := doc.Find("a").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return htmlutil.CleanText(sel.Text()) == "Video"
	}).First()
	if videoAnchor.Length() == 0 {
		return nil, fmt.Errorf("%s: no video link: %w", entry.detail, ErrParse)
	}

	base := v.session.Didattica
	if v.legacy {
		base = v.listingBase()
	}
	download, err := base.Parse(videoAnchor.AttrOr("href", ""))
	if err != nil {
		return nil, err
	}

	var info *goquery.Selection
	if v.legacy {
		info = doc.Find("div#tooltip1").First()
		if info.Length() == 0 {
			return nil, fmt.Errorf("%s: no video info: %w", entry.detail, ErrParse)
		}
	} else {
		info, err = findInlineVideoInfo(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.detail, err)
		}
	}

	properties := map[string]string{"name": entry.name}
	info.Find("tr").Each(func(_ int, row *goquery.Selection) {
		tds := row.Find("td")
		if tds.Length() < 2 {
			return
		}
		label := strings.ToLower(strings.TrimSpace(tds.Eq(0).Text()))
		properties[label] = strings.TrimSpace(tds.Eq(1).Text())
	})

	filename := properties["file"]
	if filename == "" {
		return nil, fmt.Errorf("%s: no file name in video info: %w", entry.detail, ErrParse)
	}

	file := newFile(v.session, v, filename, download, properties)
	file.Date = entry.date
	file.Arguments = entry.arguments
	return file, nil
}

// the current platform hides the video metadata in a js variable
// holding a multi-line html string, one quoted line per source line
const videoInfoLines = 7

func findInlineVideoInfo(doc *goquery.Document) (*goquery.Selection, error) {
	for _, script := range doc.Find("script").Nodes {
		text := htmlutil.GetText(script)
		if !strings.Contains(text, "tmpTitle") {
			continue
		}

		lines := strings.Split(text, "\n")
		for i, line := range lines {
			if !strings.Contains(line, "tmpTitle = ") {
				continue
			}
			if i+videoInfoLines > len(lines) {
				break
			}

			var fragment strings.Builder
			for _, quoted := range lines[i : i+videoInfoLines] {
				fragment.WriteString(unquoteInfoLine(quoted))
			}
			parsed, err := goquery.NewDocumentFromReader(strings.NewReader(fragment.String()))
			if err != nil {
				return nil, err
			}
			return parsed.Selection, nil
		}
	}
	return nil, fmt.Errorf("no video info script: %w", ErrParse)
}

// every line of the tmpTitle assignment carries 23 characters of js
// noise up front and a trailing quote
func unquoteInfoLine(line string) string {
	if len(line) <= 24 {
		return ""
	}
	return line[23 : len(line)-1]
}
