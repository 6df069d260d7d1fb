package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/reportpipe/internal/config"
)

// fakeWiki is an in-memory stand-in for the content REST API, enough to
// exercise lookup, create, versioned update and attachment replacement.
type fakeWiki struct {
	mu          sync.Mutex
	nextID      int
	pages       map[string]*fakePage         // keyed by page ID
	attachments map[string]map[string]string // page ID -> file name -> attachment ID
}

type fakePage struct {
	ID      string
	Title   string
	Space   string
	Version int
	Body    string
}

func newFakeWiki() *fakeWiki {
	return &fakeWiki{
		nextID:      100,
		pages:       make(map[string]*fakePage),
		attachments: make(map[string]map[string]string),
	}
}

func (w *fakeWiki) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/content", w.handleContent)
	mux.HandleFunc("/rest/api/content/", w.handleContentID)
	return mux
}

func (w *fakeWiki) allocID() string {
	w.nextID++
	return strconv.Itoa(w.nextID)
}

func (w *fakeWiki) handleContent(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		title := r.URL.Query().Get("title")
		results := []map[string]any{}
		for _, p := range w.pages {
			if p.Title == title {
				results = append(results, map[string]any{
					"id": p.ID, "title": p.Title,
					"version": map[string]int{"number": p.Version},
				})
			}
		}
		json.NewEncoder(rw).Encode(map[string]any{"results": results})
	case http.MethodPost:
		var in struct {
			Title string `json:"title"`
			Space struct {
				Key string `json:"key"`
			} `json:"space"`
			Body struct {
				Storage struct {
					Value string `json:"value"`
				} `json:"storage"`
			} `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		p := &fakePage{ID: w.allocID(), Title: in.Title, Space: in.Space.Key, Version: 1, Body: in.Body.Storage.Value}
		w.pages[p.ID] = p
		rw.WriteHeader(http.StatusOK)
		json.NewEncoder(rw).Encode(map[string]any{
			"id": p.ID, "version": map[string]int{"number": 1},
		})
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (w *fakeWiki) handleContentID(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.Path, "/rest/api/content/")
	parts := strings.Split(rest, "/")
	id := parts[0]

	// POST /content/{id}/data replaces attachment data.
	if len(parts) == 2 && parts[1] == "data" && r.Method == http.MethodPost {
		rw.WriteHeader(http.StatusOK)
		json.NewEncoder(rw).Encode(map[string]any{"id": id})
		return
	}

	// child/attachment listing and upload.
	if len(parts) == 3 && parts[1] == "child" && parts[2] == "attachment" {
		switch r.Method {
		case http.MethodGet:
			filename := r.URL.Query().Get("filename")
			results := []map[string]any{}
			if attID, ok := w.attachments[id][filename]; ok {
				results = append(results, map[string]any{"id": attID})
			}
			json.NewEncoder(rw).Encode(map[string]any{"results": results})
		case http.MethodPost:
			if r.Header.Get("X-Atlassian-Token") != "no-check" {
				http.Error(rw, "XSRF check failed", http.StatusForbidden)
				return
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(rw, err.Error(), http.StatusBadRequest)
				return
			}
			fh := r.MultipartForm.File["file"]
			if len(fh) == 0 {
				http.Error(rw, "no file part", http.StatusBadRequest)
				return
			}
			name := fh[0].Filename
			if w.attachments[id] == nil {
				w.attachments[id] = make(map[string]string)
			}
			if _, exists := w.attachments[id][name]; exists {
				http.Error(rw,
					fmt.Sprintf("Cannot add a new attachment with same file name as an existing attachment: %s", name),
					http.StatusBadRequest)
				return
			}
			attID := w.allocID()
			w.attachments[id][name] = attID
			rw.WriteHeader(http.StatusOK)
			json.NewEncoder(rw).Encode(map[string]any{
				"results": []map[string]any{{"id": attID}},
			})
		default:
			rw.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	// PUT /content/{id} is the versioned page update.
	if r.Method == http.MethodPut {
		p, ok := w.pages[id]
		if !ok {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		var in struct {
			Version struct {
				Number int `json:"number"`
			} `json:"version"`
			Body struct {
				Storage struct {
					Value string `json:"value"`
				} `json:"storage"`
			} `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		if in.Version.Number != p.Version+1 {
			http.Error(rw, "version conflict", http.StatusConflict)
			return
		}
		p.Version = in.Version.Number
		p.Body = in.Body.Storage.Value
		rw.WriteHeader(http.StatusOK)
		json.NewEncoder(rw).Encode(map[string]any{
			"id": p.ID, "version": map[string]int{"number": p.Version},
		})
		return
	}

	rw.WriteHeader(http.StatusNotFound)
}

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return NewClient(config.ConfluenceConfig{
		Enabled:   true,
		BaseURL:   serverURL,
		Space:     "SEC",
		Username:  "ci-bot",
		APIToken:  "token",
		PageTitle: "webapp security report",
		Timeout:   5 * time.Second,
	}, zaptest.NewLogger(t))
}

func TestClientCreateFindUpdate(t *testing.T) {
	wiki := newFakeWiki()
	srv := httptest.NewServer(wiki.handler())
	t.Cleanup(srv.Close)
	c := testClient(t, srv.URL)
	ctx := context.Background()

	missing, err := c.FindPage(ctx, "webapp security report")
	require.NoError(t, err)
	assert.Nil(t, missing, "an absent title resolves to no page, not an error")

	created, err := c.CreatePage(ctx, "webapp security report", "<p>v1</p>", "")
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)

	found, err := c.FindPage(ctx, "webapp security report")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	updated, err := c.UpdatePage(ctx, found, "<p>v2</p>")
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "<p>v2</p>", wiki.pages[created.ID].Body)
}

func TestClientUpdateSurfacesVersionConflict(t *testing.T) {
	wiki := newFakeWiki()
	srv := httptest.NewServer(wiki.handler())
	t.Cleanup(srv.Close)
	c := testClient(t, srv.URL)
	ctx := context.Background()

	created, err := c.CreatePage(ctx, "webapp security report", "<p>v1</p>", "")
	require.NoError(t, err)

	// Another writer bumps the page underneath us.
	wiki.mu.Lock()
	wiki.pages[created.ID].Version = 5
	wiki.mu.Unlock()

	_, err = c.UpdatePage(ctx, created, "<p>stale</p>")
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestClientFinishesInFlightWriteAfterCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(300 * time.Millisecond)
		rw.WriteHeader(http.StatusOK)
		json.NewEncoder(rw).Encode(map[string]any{
			"id": "777", "version": map[string]int{"number": 1},
		})
	}))
	t.Cleanup(srv.Close)
	c := testClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	page, err := c.CreatePage(ctx, "webapp security report", "<p>v1</p>", "")
	require.NoError(t, err, "a write already on the wire must run to completion")
	assert.Equal(t, "777", page.ID)
}

func TestClientAttachmentReplacesDuplicate(t *testing.T) {
	wiki := newFakeWiki()
	srv := httptest.NewServer(wiki.handler())
	t.Cleanup(srv.Close)
	c := testClient(t, srv.URL)
	ctx := context.Background()

	page, err := c.CreatePage(ctx, "webapp security report", "<p>v1</p>", "")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, os.WriteFile(file, []byte("<html>run one</html>"), 0o644))
	require.NoError(t, c.UploadAttachment(ctx, page.ID, file))

	require.NoError(t, os.WriteFile(file, []byte("<html>run two</html>"), 0o644))
	require.NoError(t, c.UploadAttachment(ctx, page.ID, file),
		"a same-named attachment is replaced, not rejected")

	wiki.mu.Lock()
	defer wiki.mu.Unlock()
	assert.Len(t, wiki.attachments[page.ID], 1, "replacement must not duplicate the attachment")
}
