package dav

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"davgate/internal/auth"
	"davgate/internal/store"
)

// newTestServer creates a gateway backed by a temporary local store.
func newTestServer(t *testing.T, authenticator auth.AuthEngine) *httptest.Server {
	t.Helper()

	local, err := store.NewLocal(t.TempDir())
	require.NoError(t, err, "NewLocal error")
	t.Cleanup(func() { _ = local.Close() })

	srv, err := NewServer(Config{Store: local, Authenticator: authenticator})
	require.NoError(t, err, "NewServer error")

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	return httpSrv
}

func doRequest(t *testing.T, client *http.Client, method string, url string, body string, header http.Header) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err, "creating %s request", method)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	require.NoErrorf(t, err, "%s %s error", method, url)
	return resp
}

func putObject(t *testing.T, client *http.Client, url string, body string) {
	t.Helper()

	resp := doRequest(t, client, http.MethodPut, url, body, nil)
	defer resp.Body.Close()
	require.Equalf(t, http.StatusCreated, resp.StatusCode, "PUT %s status", url)
}

// Minimal namespace-agnostic decode targets for 207 documents.
type msDoc struct {
	Responses []msResponse `xml:"response"`
}

type msResponse struct {
	Href string `xml:"href"`
	Prop msProp `xml:"propstat>prop"`
}

type msProp struct {
	DisplayName   string `xml:"displayname"`
	ContentLength string `xml:"getcontentlength"`
	ContentType   string `xml:"getcontenttype"`
	ETag          string `xml:"getetag"`
	ResourceType  struct {
		Collection *struct{} `xml:"collection"`
	} `xml:"resourcetype"`
}

func decodeMultistatus(t *testing.T, resp *http.Response) msDoc {
	t.Helper()

	require.Equal(t, http.StatusMultiStatus, resp.StatusCode, "expected 207 Multi-Status")

	var doc msDoc
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&doc), "decoding multistatus XML")
	return doc
}

func hrefs(doc msDoc) []string {
	out := make([]string, 0, len(doc.Responses))
	for _, r := range doc.Responses {
		out = append(out, r.Href)
	}
	return out
}

func TestGetAndDeleteMissingObject(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	resp, err := client.Get(httpSrv.URL + "/no/such/key.txt")
	require.NoError(t, err, "GET error")
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "GET missing object status")

	resp = doRequest(t, client, http.MethodDelete, httpSrv.URL+"/no/such/key.txt", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "DELETE missing object status")
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	body := "hello gateway"
	sum := sha256.Sum256([]byte(body))
	wantETag := `"` + hex.EncodeToString(sum[:]) + `"`

	resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/docs/report.txt", body, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, "PUT status")
	require.Equal(t, wantETag, resp.Header.Get("ETag"), "PUT ETag")
	require.Equal(t, "/docs/report.txt", resp.Header.Get("Location"), "PUT Location")

	resp, err := client.Get(httpSrv.URL + "/docs/report.txt")
	require.NoError(t, err, "GET error")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode, "GET status")
	require.Equal(t, "text/plain", resp.Header.Get("Content-Type"), "content type inferred from extension")
	require.Equal(t, wantETag, resp.Header.Get("ETag"), "GET ETag")
	require.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"), "Accept-Ranges")

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "reading GET body")
	require.Equal(t, body, string(got), "payload round trip")
}

func TestPutOverwriteReplacesContent(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	putObject(t, client, httpSrv.URL+"/note.txt", "first")
	putObject(t, client, httpSrv.URL+"/note.txt", "second version")

	resp, err := client.Get(httpSrv.URL + "/note.txt")
	require.NoError(t, err, "GET error")
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "reading GET body")
	require.Equal(t, "second version", string(got), "latest payload wins")

	// The key still maps to a single resource.
	resp = doRequest(t, client, "PROPFIND", httpSrv.URL+"/", "", nil)
	defer resp.Body.Close()
	doc := decodeMultistatus(t, resp)
	require.Len(t, doc.Responses, 2, "root self plus one member")
}

func TestHeadObject(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	putObject(t, client, httpSrv.URL+"/blob.bin", "0123456789")

	resp, err := client.Head(httpSrv.URL + "/blob.bin")
	require.NoError(t, err, "HEAD error")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode, "HEAD status")
	require.Equal(t, "10", resp.Header.Get("Content-Length"), "Content-Length")
	require.NotEmpty(t, resp.Header.Get("ETag"), "ETag present")

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "reading HEAD body")
	require.Empty(t, got, "HEAD carries no body")
}

func TestRangeRequests(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	putObject(t, client, httpSrv.URL+"/data.bin", "0123456789")

	tests := []struct {
		name      string
		header    string
		wantBody  string
		wantRange string
	}{
		{name: "interior", header: "bytes=2-5", wantBody: "2345", wantRange: "bytes 2-5/10"},
		{name: "open ended", header: "bytes=7-", wantBody: "789", wantRange: "bytes 7-9/10"},
		{name: "suffix", header: "bytes=-3", wantBody: "789", wantRange: "bytes 7-9/10"},
		{name: "single byte", header: "bytes=0-0", wantBody: "0", wantRange: "bytes 0-0/10"},
		{name: "end clamped", header: "bytes=4-99", wantBody: "456789", wantRange: "bytes 4-9/10"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, client, http.MethodGet, httpSrv.URL+"/data.bin", "",
				http.Header{"Range": {tc.header}})
			defer resp.Body.Close()

			require.Equal(t, http.StatusPartialContent, resp.StatusCode, "status")
			require.Equal(t, tc.wantRange, resp.Header.Get("Content-Range"), "Content-Range")

			got, err := io.ReadAll(resp.Body)
			require.NoError(t, err, "reading body")
			require.Equal(t, tc.wantBody, string(got), "range payload")
		})
	}
}

func TestMalformedRangeReturnsFullContent(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	putObject(t, client, httpSrv.URL+"/data.bin", "0123456789")

	for _, header := range []string{"bytes=abc", "bytes=5-2", "bytes=12-", "chunks=0-1"} {
		resp := doRequest(t, client, http.MethodGet, httpSrv.URL+"/data.bin", "",
			http.Header{"Range": {header}})

		require.Equalf(t, http.StatusOK, resp.StatusCode, "status for Range %q", header)
		require.Empty(t, resp.Header.Get("Content-Range"), "no Content-Range on full delivery")

		got, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err, "reading body")
		require.Equalf(t, "0123456789", string(got), "full payload for Range %q", header)
	}
}

func TestMkcol(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	resp := doRequest(t, client, "MKCOL", httpSrv.URL+"/photos", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, "first MKCOL status")

	// A second MKCOL on the same name must fail.
	resp = doRequest(t, client, "MKCOL", httpSrv.URL+"/photos", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "repeat MKCOL status")

	// Request bodies are not part of the supported MKCOL surface.
	resp = doRequest(t, client, "MKCOL", httpSrv.URL+"/albums", "<mkcol/>", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode, "MKCOL with body status")

	// The new collection is visible to PROPFIND.
	resp = doRequest(t, client, "PROPFIND", httpSrv.URL+"/photos", "", http.Header{"Depth": {"0"}})
	defer resp.Body.Close()
	doc := decodeMultistatus(t, resp)
	require.Len(t, doc.Responses, 1, "depth 0 yields the self entry alone")
	require.Equal(t, "/photos/", doc.Responses[0].Href, "collection href")
	require.NotNil(t, doc.Responses[0].Prop.ResourceType.Collection, "resourcetype is a collection")
}

func TestDeleteCollection(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	putObject(t, client, httpSrv.URL+"/dir/x.txt", "x")
	putObject(t, client, httpSrv.URL+"/dir/sub/y.txt", "y")
	putObject(t, client, httpSrv.URL+"/other.txt", "z")

	resp := doRequest(t, client, http.MethodDelete, httpSrv.URL+"/dir", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "collection DELETE status")

	for _, key := range []string{"/dir/x.txt", "/dir/sub/y.txt"} {
		r, err := client.Get(httpSrv.URL + key)
		require.NoError(t, err, "GET error")
		r.Body.Close()
		require.Equalf(t, http.StatusNotFound, r.StatusCode, "GET %s after collection delete", key)
	}

	// Siblings outside the prefix are untouched.
	resp, err := client.Get(httpSrv.URL + "/other.txt")
	require.NoError(t, err, "GET error")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "sibling survives collection delete")

	resp = doRequest(t, client, "PROPFIND", httpSrv.URL+"/", "", nil)
	defer resp.Body.Close()
	doc := decodeMultistatus(t, resp)
	require.ElementsMatch(t, []string{"/", "/other.txt"}, hrefs(doc), "root listing after delete")
}

func TestDeleteSingleObject(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	putObject(t, client, httpSrv.URL+"/file.txt", "data")

	resp := doRequest(t, client, http.MethodDelete, httpSrv.URL+"/file.txt", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode, "object DELETE status")

	resp, err := client.Get(httpSrv.URL + "/file.txt")
	require.NoError(t, err, "GET error")
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "GET after delete")
}

func TestPropfindDepthOne(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	putObject(t, client, httpSrv.URL+"/a.txt", "alpha")
	putObject(t, client, httpSrv.URL+"/b/c.txt", "gamma")

	resp := doRequest(t, client, "PROPFIND", httpSrv.URL+"/", "", http.Header{"Depth": {"1"}})
	defer resp.Body.Close()
	doc := decodeMultistatus(t, resp)

	require.ElementsMatch(t, []string{"/", "/a.txt", "/b/"}, hrefs(doc),
		"depth 1 lists immediate members only")

	for _, r := range doc.Responses {
		switch r.Href {
		case "/a.txt":
			require.Nil(t, r.Prop.ResourceType.Collection, "a.txt is a plain resource")
			require.Equal(t, "5", r.Prop.ContentLength, "a.txt content length")
			require.Equal(t, "a.txt", r.Prop.DisplayName, "a.txt display name")
			require.NotEmpty(t, r.Prop.ETag, "a.txt etag")
		case "/b/":
			require.NotNil(t, r.Prop.ResourceType.Collection, "b is a collection")
		}
	}
}

func TestPropfindDepthZeroAndInfinity(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	putObject(t, client, httpSrv.URL+"/a.txt", "alpha")

	resp := doRequest(t, client, "PROPFIND", httpSrv.URL+"/", "", http.Header{"Depth": {"0"}})
	defer resp.Body.Close()
	doc := decodeMultistatus(t, resp)
	require.Equal(t, []string{"/"}, hrefs(doc), "depth 0 yields the self entry alone")

	resp = doRequest(t, client, "PROPFIND", httpSrv.URL+"/", "", http.Header{"Depth": {"infinity"}})
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err, "reading 403 body")
	require.Equal(t, http.StatusForbidden, resp.StatusCode, "infinite depth is rejected")
	require.Contains(t, string(body), "propfind-finite-depth", "precondition error body")
}

func TestPropfindFile(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	putObject(t, client, httpSrv.URL+"/docs/report.txt", "hello")

	resp := doRequest(t, client, "PROPFIND", httpSrv.URL+"/docs/report.txt", "", nil)
	defer resp.Body.Close()
	doc := decodeMultistatus(t, resp)

	require.Len(t, doc.Responses, 1, "a file target describes just that file")
	require.Equal(t, "/docs/report.txt", doc.Responses[0].Href, "file href")
	require.Equal(t, "report.txt", doc.Responses[0].Prop.DisplayName, "display name")
	require.Equal(t, "text/plain", doc.Responses[0].Prop.ContentType, "content type")
	require.Nil(t, doc.Responses[0].Prop.ResourceType.Collection, "not a collection")
}

func TestOptionsAdvertisesCompliance(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	resp := doRequest(t, client, http.MethodOptions, httpSrv.URL+"/", "", nil)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode, "OPTIONS status")
	require.Equal(t, "1, 2", resp.Header.Get("DAV"), "DAV compliance classes")
	require.Contains(t, resp.Header.Get("Allow"), "PROPFIND", "Allow lists PROPFIND")
	require.Contains(t, resp.Header.Get("Allow"), "MKCOL", "Allow lists MKCOL")
}

func TestUnsupportedMethod(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	for _, method := range []string{"LOCK", "UNLOCK", "PROPPATCH", "COPY", "MOVE"} {
		resp := doRequest(t, client, method, httpSrv.URL+"/a.txt", "", nil)
		resp.Body.Close()
		require.Equalf(t, http.StatusMethodNotAllowed, resp.StatusCode, "%s status", method)
		require.NotEmptyf(t, resp.Header.Get("Allow"), "%s response advertises Allow", method)
	}
}

func TestPutToRootRejected(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/", "data", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "PUT to root status")

	resp = doRequest(t, client, http.MethodDelete, httpSrv.URL+"/", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "DELETE of root status")
}

func TestBrowserListing(t *testing.T) {
	t.Parallel()

	httpSrv := newTestServer(t, nil)
	client := httpSrv.Client()

	putObject(t, client, httpSrv.URL+"/dir/file.txt", "content")
	putObject(t, client, httpSrv.URL+"/dir/nested/deep.txt", "content")

	resp, err := client.Get(httpSrv.URL + "/dir")
	require.NoError(t, err, "GET error")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode, "listing status")
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html", "listing content type")

	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "reading listing body")
	require.Contains(t, string(page), "file.txt", "file member shown")
	require.Contains(t, string(page), "nested/", "sub-collection shown")
	require.NotContains(t, string(page), "deep.txt", "grandchildren are not shown")
}

func TestBasicAuthGate(t *testing.T) {
	t.Parallel()

	engine := auth.NewCompoundAuthEngine(auth.NewBasicAuthEngine("alice", "secret"))
	httpSrv := newTestServer(t, engine)
	client := httpSrv.Client()

	resp, err := client.Get(httpSrv.URL + "/a.txt")
	require.NoError(t, err, "GET error")
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "no credentials status")
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), `Basic realm=`, "challenge header")

	req, err := http.NewRequest(http.MethodGet, httpSrv.URL+"/a.txt", nil)
	require.NoError(t, err, "creating GET request")
	req.SetBasicAuth("alice", "wrong")
	resp, err = client.Do(req)
	require.NoError(t, err, "GET error")
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "bad credentials status")

	req, err = http.NewRequest(http.MethodPut, httpSrv.URL+"/a.txt", strings.NewReader("alpha"))
	require.NoError(t, err, "creating PUT request")
	req.SetBasicAuth("alice", "secret")
	resp, err = client.Do(req)
	require.NoError(t, err, "PUT error")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, "valid credentials status")
}
