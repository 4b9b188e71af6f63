// Package polito models the PoliTo didactic portal as a tree of
// lazily-fetched nodes: subjects with their assignments, folders and
// files, plus the video-lesson catalog. Every fetch goes through a
// session.Session, which hides the federated login underneath.
package polito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"politodown/lib/htmlutil"
	"politodown/lib/polito/session"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

const (
	listPath      = "pls/portal30/sviluppo.materiale.elenco"
	incarichiPath = "pls/portal30/sviluppo.materiale.incarichi"
	nextLevelPath = "pls/portal30/sviluppo.materiale.next_level"
	downloadPath  = "pls/portal30/sviluppo.materiale.download"
	videoListPath = "pls/portal30/sviluppo.videolezioni.vis"
	dokeosParPath = "pls/portal30/sviluppo.materiale.json_dokeos_par"

	legacyVideoPath = "gadgets/video/template_video.php"
)

var accessDeniedBody = []byte("Access denied!\n")

func listEndpoint(s *session.Session, year int, kind string) string {
	endpoint := s.Didattica.JoinPath(listPath)
	endpoint.RawQuery = url.Values{
		"a": {strconv.Itoa(year)},
		"t": {kind},
	}.Encode()
	return endpoint.String()
}

func fetchListing(ctx context.Context, s *session.Session, year int, kind string) (*goquery.Document, error) {
	res, err := s.Send(ctx, http.MethodGet, listEndpoint(s, year, kind), nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	if bytes.Equal(res.Body, accessDeniedBody) {
		return nil, fmt.Errorf("%s: %w", res.URL, ErrAccessDenied)
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
}

var materialRegex = regexp.MustCompile(`'(\d+)','(\w+)','\d+','(\d+)'`)

// GetMaterial returns the subjects with didactic material available
// for the given year, keyed by subject name.
func GetMaterial(ctx context.Context, s *session.Session, year int) (map[string]*Material, error) {
	ctx, span := tracer.Start(ctx, "GetMaterial")
	defer span.End()

	doc, err := fetchListing(ctx, s, year, "M")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch material listing")
		return nil, err
	}

	material := map[string]*Material{}
	for _, anchor := range htmlutil.GetAnchors(ctx, doc.Find("a.policorpolink")) {
		groups := materialRegex.FindStringSubmatch(anchor.Href)
		if groups == nil {
			continue
		}
		aa, err := strconv.Atoi(groups[1])
		if err != nil {
			continue
		}
		material[anchor.Name] = newMaterial(s, aa, anchor.Name, groups[2], groups[3])
	}

	return material, nil
}

var (
	videostoreDispatchRegex = regexp.MustCompile(`^(?:(sviluppo\.videolezioni\.vis\?cor=(\d+))|(javascript:void\(null\);))`)
	videotecaAnchorRegex    = regexp.MustCompile(`showDivVideoteca\('\w+'\)`)
	dokeosIncRegex          = regexp.MustCompile(`^dokeosLez\('(\d+)'\)`)
)

// GetVideostores returns the video-lesson catalogs available for the
// given year, keyed by course name and then by edition name. Editions
// live either on the current platform or on the legacy e-learning one;
// both come back as the same Videostore type.
func GetVideostores(ctx context.Context, s *session.Session, year int) (map[string]map[string]*Videostore, error) {
	ctx, span := tracer.Start(ctx, "GetVideostores")
	defer span.End()

	doc, err := fetchListing(ctx, s, year, "E")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch videostore listing")
		return nil, err
	}

	stores := doc.Find("a[onclick]").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return videotecaAnchorRegex.MatchString(sel.AttrOr("onclick", ""))
	})
	groups := doc.Find("div.policorpo")

	videostores := map[string]map[string]*Videostore{}
	count := stores.Length()
	if groups.Length() < count {
		count = groups.Length()
	}

	for i := 0; i < count; i++ {
		store := stores.Eq(i)
		storeName := htmlutil.CleanText(store.Text())
		editions := map[string]*Videostore{}

		var editionErr error
		groups.Eq(i).Find("a.policorpolink").EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
			href := anchor.AttrOr("href", "")
			name := htmlutil.CleanText(anchor.Text())

			match := videostoreDispatchRegex.FindStringSubmatch(href)
			if match == nil {
				slog.InfoContext(
					ctx, "skipping unsupported videostore",
					"store", storeName, "edition", name,
				)
				return true
			}

			if match[2] != "" {
				editions[name] = newVideostore(s, year, storeName, name, match[2])
				return true
			}

			legacy, err := newVideostoreLegacy(ctx, s, year, storeName, name, anchor.AttrOr("onclick", ""))
			if err != nil {
				editionErr = err
				return false
			}
			editions[name] = legacy
			return true
		})
		if editionErr != nil {
			span.RecordError(editionErr)
			span.SetStatus(codes.Error, "failed to resolve legacy videostore")
			return nil, editionErr
		}

		videostores[storeName] = editions
	}

	return videostores, nil
}

// the legacy platform wants per-edition auth parameters which only
// exist behind a JSON side channel
func fetchDokeosParams(ctx context.Context, s *session.Session, inc string) (utente, data, token string, err error) {
	endpoint := s.Didattica.JoinPath(dokeosParPath)
	endpoint.RawQuery = url.Values{"inc": {inc}}.Encode()

	res, err := s.Send(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", "", "", err
	}
	if err := res.Err(); err != nil {
		return "", "", "", err
	}

	var params struct {
		Utente string `json:"utente"`
		Data   string `json:"data"`
		Token  string `json:"token"`
	}
	err = json.Unmarshal(res.Body, &params)
	if err != nil {
		return "", "", "", fmt.Errorf("dokeos parameters: %w", err)
	}
	return params.Utente, params.Data, params.Token, nil
}
