// Package confluence delivers the rendered report to a Confluence-style
// wiki: a stable title-keyed page updated in place with optimistic
// version control, plus the rendered artifacts as page attachments.
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reportpipe/internal/config"
)

// ErrVersionConflict is returned when a page update loses the optimistic
// concurrency check against another writer.
var ErrVersionConflict = errors.New("page version conflict")

// errDuplicateAttachment marks the API's same-file-name rejection; the
// caller resolves the existing attachment and replaces its data.
var errDuplicateAttachment = errors.New("attachment with the same file name exists")

// Page is the subset of page metadata the publisher needs.
type Page struct {
	ID      string
	Title   string
	Version int
}

// Client is a minimal REST client for the content API.
type Client struct {
	base   string
	space  string
	user   string
	token  string
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg config.ConfluenceConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// A dedicated transport per client: the publisher owns its own
	// connection pool and timeouts, nothing is shared with the other sink.
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		space:  cfg.Space,
		user:   cfg.Username,
		token:  cfg.APIToken,
		http:   &http.Client{Transport: transport, Timeout: timeout},
		logger: logger.Named("confluence"),
	}
}

// newRequest detaches the request from the run context: once a write is
// on the wire it is allowed to finish so the page is never left half
// updated. The client timeout still bounds every call; cancellation is
// honored by the publisher between steps, not mid-request.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.token)
	return req, nil
}

// FindPage looks a page up by its title within the configured space.
// Returns (nil, nil) when no page carries the title.
func (c *Client) FindPage(ctx context.Context, title string) (*Page, error) {
	q := url.Values{}
	q.Set("spaceKey", c.space)
	q.Set("title", title)
	q.Set("expand", "version")

	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("page lookup", resp)
	}

	var out struct {
		Results []struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Version struct {
				Number int `json:"number"`
			} `json:"version"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("page lookup: decoding response: %w", err)
	}
	if len(out.Results) == 0 {
		return nil, nil
	}
	r := out.Results[0]
	return &Page{ID: r.ID, Title: r.Title, Version: r.Version.Number}, nil
}

// CreatePage creates a new page in the configured space. parentID is
// optional; when set the page is created as a child.
func (c *Client) CreatePage(ctx context.Context, title, body, parentID string) (*Page, error) {
	payload := map[string]any{
		"type":  "page",
		"title": title,
		"space": map[string]string{"key": c.space},
		"body": map[string]any{
			"storage": map[string]string{"value": body, "representation": "storage"},
		},
	}
	if parentID != "" {
		payload["ancestors"] = []map[string]string{{"id": parentID}}
	}

	resp, err := c.postJSON(ctx, http.MethodPost, "/rest/api/content", payload)
	if err != nil {
		return nil, fmt.Errorf("page create: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, apiError("page create", resp)
	}

	var out struct {
		ID      string `json:"id"`
		Version struct {
			Number int `json:"number"`
		} `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("page create: decoding response: %w", err)
	}
	version := out.Version.Number
	if version == 0 {
		version = 1
	}
	c.logger.Info("Created wiki page", zap.String("title", title), zap.String("page_id", out.ID))
	return &Page{ID: out.ID, Title: title, Version: version}, nil
}

// UpdatePage submits new content tagged version = current+1. A version
// mismatch surfaces as ErrVersionConflict so the publisher can re-fetch
// and retry once.
func (c *Client) UpdatePage(ctx context.Context, page *Page, body string) (*Page, error) {
	next := page.Version + 1
	payload := map[string]any{
		"id":      page.ID,
		"type":    "page",
		"title":   page.Title,
		"version": map[string]int{"number": next},
		"body": map[string]any{
			"storage": map[string]string{"value": body, "representation": "storage"},
		},
	}

	resp, err := c.postJSON(ctx, http.MethodPut, "/rest/api/content/"+page.ID, payload)
	if err != nil {
		return nil, fmt.Errorf("page update: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		c.logger.Info("Updated wiki page",
			zap.String("page_id", page.ID), zap.Int("version", next))
		return &Page{ID: page.ID, Title: page.Title, Version: next}, nil
	case http.StatusConflict:
		return nil, ErrVersionConflict
	default:
		return nil, apiError("page update", resp)
	}
}

// UploadAttachment attaches a file to the page, replacing the data of an
// existing attachment that carries the same file name.
func (c *Client) UploadAttachment(ctx context.Context, pageID, path string) error {
	err := c.postAttachment(ctx, "/rest/api/content/"+pageID+"/child/attachment", path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errDuplicateAttachment) {
		return err
	}

	// Same file name already attached: resolve its id and replace the data.
	attachmentID, err := c.findAttachment(ctx, pageID, filepath.Base(path))
	if err != nil {
		return err
	}
	if err := c.postAttachment(ctx, "/rest/api/content/"+attachmentID+"/data", path); err != nil {
		return fmt.Errorf("replacing attachment data: %w", err)
	}
	c.logger.Info("Replaced existing attachment",
		zap.String("page_id", pageID), zap.String("file", filepath.Base(path)))
	return nil
}

func (c *Client) findAttachment(ctx context.Context, pageID, filename string) (string, error) {
	q := url.Values{}
	q.Set("filename", filename)
	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content/"+pageID+"/child/attachment?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("attachment lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("attachment lookup", resp)
	}
	var out struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("attachment lookup: decoding response: %w", err)
	}
	if len(out.Results) == 0 {
		return "", fmt.Errorf("attachment %q reported as duplicate but not found", filename)
	}
	return out.Results[0].ID, nil
}

func (c *Client) postAttachment(ctx context.Context, path, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("opening attachment: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	// Required by the API for multipart uploads.
	req.Header.Set("X-Atlassian-Token", "no-check")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("attachment upload: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusBadRequest, http.StatusConflict:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if strings.Contains(strings.ToLower(string(body)), "same file name") || resp.StatusCode == http.StatusConflict {
			return errDuplicateAttachment
		}
		return fmt.Errorf("attachment upload: status %d: %s", resp.StatusCode, string(body))
	default:
		return apiError("attachment upload", resp)
	}
}

func (c *Client) postJSON(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
