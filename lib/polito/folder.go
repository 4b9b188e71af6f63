package polito

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"

	"politodown/lib/htmlutil"
	"politodown/lib/polito/session"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

type FolderKind int

const (
	KindFolder FolderKind = iota
	// assignments behave exactly like folders, the kind only exists
	// so callers can tell them apart
	KindAssignment
)

type Folder struct {
	session *session.Session

	parent Node
	kind   FolderKind
	name   string

	nextLevel *url.URL
	children  map[string]Node
}

func newFolder(s *session.Session, parent Node, kind FolderKind, name, inc, nod, doc string) *Folder {
	nextLevel := s.Didattica.JoinPath(nextLevelPath)
	nextLevel.RawQuery = url.Values{
		"inc": {inc},
		"nod": {nod},
		"doc": {doc},
	}.Encode()

	return &Folder{
		session:   s,
		parent:    parent,
		kind:      kind,
		name:      name,
		nextLevel: nextLevel,
	}
}

func (f *Folder) Name() string {
	return f.name
}

func (f *Folder) Kind() FolderKind {
	return f.kind
}

func (f *Folder) RelativePath() string {
	return filepath.Join(f.parent.RelativePath(), SanitizeFilename(f.name))
}

var (
	folderRegex = regexp.MustCompile(`'(\d+)','(\d+)','(\d+)'`)
	fileRegex   = regexp.MustCompile(`(\d+)$`)

	// file type may be absent, hence \w*
	fileInfoRegex = regexp.MustCompile(`(\w*) *\[([\w ]+)\]`)
)

// Children fetches the folder's next level once and caches it. The
// mapping is either empty or fully populated, a refetch replaces it
// wholesale. Anchors carrying three numeric identifiers become child
// folders, anchors with one trailing numeric identifier become files.
func (f *Folder) Children(ctx context.Context, forceUpdate bool) (map[string]Node, error) {
	if len(f.children) > 0 && !forceUpdate {
		return f.children, nil
	}

	ctx, span := tracer.Start(ctx, "folder:Children")
	defer span.End()

	res, err := f.session.Send(ctx, http.MethodGet, f.nextLevel.String(), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch folder")
		return nil, err
	}
	if err := res.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "folder listing answered with an error")
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	children := map[string]Node{}
	for _, n := range doc.Find("a").Nodes {
		name := htmlutil.CleanText(htmlutil.GetText(n))
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
			}
		}

		if groups := folderRegex.FindStringSubmatch(href); groups != nil {
			children[name] = newFolder(
				f.session, f, KindFolder, name,
				groups[1], groups[2], groups[3],
			)
			continue
		}

		groups := fileRegex.FindStringSubmatch(href)
		if groups == nil {
			continue
		}
		download := f.session.Didattica.JoinPath(downloadPath)
		download.RawQuery = url.Values{"nod": {groups[1]}}.Encode()

		// the portal writes "name [TYPE]" three siblings after
		// the anchor
		properties := map[string]string{}
		info := fileInfoRegex.FindStringSubmatch(htmlutil.FollowingText(n, 3))
		if info != nil {
			properties["extension"] = info[1]
			properties["size"] = info[2]
		}

		children[name] = newFile(f.session, f, name, download, properties)
	}

	f.children = children
	return f.children, nil
}

// WalkFiles calls fn for every file of the folder, own files first in
// name order, then (when recursive) the files of each child folder,
// depth first. A non-nil error from fn stops the walk. Walking again
// re-reads each folder's cache, nothing is fetched twice.
func (f *Folder) WalkFiles(ctx context.Context, recursive, forceUpdate bool, fn func(*File) error) error {
	children, err := f.Children(ctx, forceUpdate)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		file, ok := children[name].(*File)
		if !ok {
			continue
		}
		err := fn(file)
		if err != nil {
			return err
		}
	}

	if !recursive {
		return nil
	}
	for _, name := range names {
		folder, ok := children[name].(*Folder)
		if !ok {
			continue
		}
		err := folder.WalkFiles(ctx, true, forceUpdate, fn)
		if err != nil {
			return err
		}
	}
	return nil
}
