package polito

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// videoInfoScript reproduces the js assignment the current platform
// hides the lesson metadata in: one quoted line per source line, 23
// characters of noise up front and a closing quote on each.
func videoInfoScript(filename string) string {
	rows := []string{
		"<table>",
		"<tr><td>Data</td><td>12/03/2024</td></tr>",
		"<tr><td>Durata</td><td>01:30:00</td></tr>",
		"<tr><td>File</td><td>" + filename + "</td></tr>",
		"<tr><td>Dimensione</td><td>300 MB</td></tr>",
		"<tr><td>Qualita</td><td>alta</td></tr>",
		"</table>",
	}
	lines := []string{"   var tmpTitle = tmp+'" + rows[0] + "'"}
	for _, row := range rows[1:] {
		lines = append(lines, "            tmp = tmp+'"+row+"'")
	}
	return "<script>\n" + strings.Join(lines, "\n") + "\n</script>"
}

// fakeVideoteca serves the videostore listing for both platform
// generations, the dokeos side channel and the per-lesson detail pages.
type fakeVideoteca struct{}

func (p *fakeVideoteca) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	switch r.URL.Path {
	case "/pls/portal30/sviluppo.materiale.elenco":
		fmt.Fprint(w, `<html><body>
<a onclick="showDivVideoteca('x1')">Analisi I</a>
<div class="policorpo">
<a class="policorpolink" href="sviluppo.videolezioni.vis?cor=7">Edizione 2024</a>
<a class="policorpolink" href="javascript:void(null);" onclick="dokeosLez('55')">Edizione 2019</a>
</div>
</body></html>`)
	case "/pls/portal30/sviluppo.materiale.json_dokeos_par":
		if query.Get("inc") != "55" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"utente":"u1","data":"d1","token":"t1"}`)
	case "/pls/portal30/sviluppo.videolezioni.vis":
		if query.Get("cor") != "7" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body>
<a style="color:#003576;" href="lesson1">Lezione 1</a>
<span class="small">del 12/03/2024</span>
<li class="argomentiEspansi"><a class="argoLink" href="#">Integrali</a><a class="argoLink" href="#">Serie</a></li>
<a style="color:#003576;" href="lesson2">Lezione 2</a>
<span class="small">del 14/03/2024</span>
<li class="argomentiEspansi"></li>
</body></html>`)
	case "/pls/portal30/lesson1":
		fmt.Fprint(w, `<html><body>
<a href="/video/lesson1.mp4">Video</a>
`+videoInfoScript("lesson1.mp4")+`
</body></html>`)
	case "/pls/portal30/lesson2":
		fmt.Fprint(w, `<html><body>
<a href="/video/lesson2.mp4">Video</a>
`+videoInfoScript("lesson2.mp4")+`
</body></html>`)
	case "/gadgets/video/template_video.php":
		if query.Get("inc") != "55" || query.Get("utente") != "u1" ||
			query.Get("data") != "d1" || query.Get("token") != "t1" {
			http.Error(w, "bad auth parameters", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `<html><body>
<ul class="lezioni">
<li><a href="legacy1">Lezione legacy</a><span class="small">del 2019-05-20</span></li>
<li class="argEspansi1"><a class="argoLink" href="#">Tema</a></li>
</ul>
</body></html>`)
	case "/gadgets/video/legacy1":
		fmt.Fprint(w, `<html><body>
<a href="content/lesson.mp4">Video</a>
<div id="tooltip1"><table>
<tr><td>File</td><td>legacy.mp4</td></tr>
<tr><td>Durata</td><td>01:00:00</td></tr>
</table></div>
</body></html>`)
	default:
		http.NotFound(w, r)
	}
}

func videostoreEditions(t *testing.T, srv *httptest.Server) map[string]*Videostore {
	s := newPortalSession(t, srv)

	stores, err := GetVideostores(context.Background(), s, 2024)
	require.NoError(t, err)
	require.Len(t, stores, 1)

	editions := stores["Analisi I"]
	require.Len(t, editions, 2)
	return editions
}

func TestGetVideostores(t *testing.T) {
	srv := httptest.NewServer(&fakeVideoteca{})
	defer srv.Close()

	editions := videostoreEditions(t, srv)

	current := editions["Edizione 2024"]
	require.NotNil(t, current)
	require.False(t, current.legacy)
	require.Equal(t, "Analisi I", current.Category)
	require.Equal(t, "2024/Edizione 2024", current.RelativePath())

	legacy := editions["Edizione 2019"]
	require.NotNil(t, legacy)
	require.True(t, legacy.legacy)
}

func TestVideolessons(t *testing.T) {
	srv := httptest.NewServer(&fakeVideoteca{})
	defer srv.Close()

	editions := videostoreEditions(t, srv)
	lessons, err := editions["Edizione 2024"].Videolessons(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, lessons, 2)

	first := lessons["Lezione 1"]
	require.NotNil(t, first)
	require.Equal(t, "lesson1.mp4", first.Name())
	require.Equal(t, "lesson1.mp4", first.Properties["file"])
	require.Equal(t, "Lezione 1", first.Properties["name"])
	require.Equal(t, "01:30:00", first.Properties["durata"])
	require.Equal(t, []string{"Integrali", "Serie"}, first.Arguments)
	require.True(t, first.Date.Equal(time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, srv.URL+"/video/lesson1.mp4", first.DownloadURL().String())

	second := lessons["Lezione 2"]
	require.NotNil(t, second)
	require.Equal(t, "lesson2.mp4", second.Name())
	require.Empty(t, second.Arguments)
}

func TestVideolessonsLegacy(t *testing.T) {
	srv := httptest.NewServer(&fakeVideoteca{})
	defer srv.Close()

	editions := videostoreEditions(t, srv)
	lessons, err := editions["Edizione 2019"].Videolessons(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, lessons, 1)

	lesson := lessons["Lezione legacy"]
	require.NotNil(t, lesson)
	require.Equal(t, "legacy.mp4", lesson.Properties["file"])
	require.Equal(t, []string{"Tema"}, lesson.Arguments)
	require.True(t, lesson.Date.Equal(time.Date(2019, time.May, 20, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, srv.URL+"/gadgets/video/content/lesson.mp4", lesson.DownloadURL().String())
}
