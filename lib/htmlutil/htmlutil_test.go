package htmlutil

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	testCases := []struct {
		in     string
		expect string
	}{
		{in: "  Analisi   Matematica I \n", expect: "Analisi Matematica I"},
		{in: "one\ttwo", expect: "one two"},
		{in: "plain", expect: "plain"},
	}
	for _, test := range testCases {
		require.Equal(t, test.expect, CleanText(test.in))
	}
}

func TestGetAnchors(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>
<a class="policorpolink" href="javascript:materiale('2024','T','0','4567')">  Analisi   Matematica I </a>
<a class="policorpolink" href="sviluppo.materiale.download?nod=987">notes.pdf</a>
<a class="other" href="#">ignored</a>
</body></html>`))
	require.NoError(t, err)

	anchors := GetAnchors(context.Background(), doc.Find("a.policorpolink"))
	require.Equal(t, []Anchor{
		{Name: "Analisi Matematica I", Href: "javascript:materiale('2024','T','0','4567')"},
		{Name: "notes.pdf", Href: "sviluppo.materiale.download?nod=987"},
	}, anchors)
}

func TestFollowingText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><a href="#">file</a><br><i></i>pdf [2 MB]</body></html>`,
	))
	require.NoError(t, err)

	anchor := doc.Find("a").Nodes[0]
	require.Equal(t, "pdf [2 MB]", FollowingText(anchor, 3))
	require.Equal(t, "", FollowingText(anchor, 10))
}

func TestFormInputs(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>
<form action="/Shibboleth.sso/SAML2/POST" method="post">
<input type="hidden" name="SAMLResponse" value="resp"/>
<input type="hidden" name="RelayState" value="state"/>
<input type="submit" value="Continue"/>
</form>
</body></html>`))
	require.NoError(t, err)

	action, values, ok := FormInputs(doc)
	require.True(t, ok)
	require.Equal(t, "/Shibboleth.sso/SAML2/POST", action)
	require.Equal(t, url.Values{
		"SAMLResponse": {"resp"},
		"RelayState":   {"state"},
	}, values)
}

func TestFormInputsWithoutForm(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><p>nothing here</p></body></html>`,
	))
	require.NoError(t, err)

	_, _, ok := FormInputs(doc)
	require.False(t, ok)
}
