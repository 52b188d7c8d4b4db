// Package client talks to a songshare API over HTTP.
package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strconv"
	"time"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
)

const userAgent = "songctl/1.0"

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status int
	Code   string
	Detail string
	Fields map[string]string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Detail, e.Status)
}

type Client struct {
	http *req.Client
}

// New returns a client for the API at baseURL. timeout <= 0 keeps req's
// default.
func New(baseURL string, timeout time.Duration) *Client {
	c := req.C().
		SetBaseURL(baseURL).
		SetUserAgent(userAgent)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{http: c}
}

type UploadRequest struct {
	Path        string
	Title       string
	Artist      string
	Description string
	// Progress, when set, is called while the file is sent.
	Progress func(sent, total int64)
}

// Upload sends a song and returns the created record.
func (c *Client) Upload(ctx context.Context, in UploadRequest) (gjson.Result, error) {
	r := c.http.R().
		SetContext(ctx).
		SetFile("file", in.Path).
		SetFormData(map[string]string{
			"title":       in.Title,
			"artist":      in.Artist,
			"description": in.Description,
		})
	if in.Progress != nil {
		r.SetUploadCallbackWithInterval(func(info req.UploadInfo) {
			in.Progress(info.UploadedSize, info.FileSize)
		}, 100*time.Millisecond)
	}
	resp, err := r.Post("/api/songs")
	return decode(resp, err)
}

// Info resolves a token to its metadata. The server counts it as a view.
func (c *Client) Info(ctx context.Context, token string) (gjson.Result, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/api/songs/" + url.PathEscape(token))
	return decode(resp, err)
}

// List returns the most recent songs. limit <= 0 uses the server default.
func (c *Client) List(ctx context.Context, limit int) (gjson.Result, error) {
	r := c.http.R().SetContext(ctx)
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := r.Get("/api/songs")
	return decode(resp, err)
}

func (c *Client) Stats(ctx context.Context) (gjson.Result, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/api/analytics")
	return decode(resp, err)
}

// Download is an open download. Body must be closed.
type Download struct {
	Body     io.ReadCloser
	Size     int64 // -1 when the server sent no length
	FileName string
	Checksum string
}

// Download opens the audio behind token. The server counts it as a download.
func (c *Client) Download(ctx context.Context, token string) (*Download, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		Get("/api/songs/" + url.PathEscape(token) + "/download")
	if err != nil {
		return nil, err
	}
	if resp.IsErrorState() {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, apiError(resp.StatusCode, body)
	}

	dl := &Download{Body: resp.Body, Size: resp.ContentLength}
	if _, params, err := mime.ParseMediaType(resp.GetHeader("Content-Disposition")); err == nil {
		dl.FileName = params["filename"]
	}
	if etag := resp.GetHeader("ETag"); len(etag) > 2 {
		dl.Checksum = etag[1 : len(etag)-1]
	}
	return dl, nil
}

func decode(resp *req.Response, err error) (gjson.Result, error) {
	if err != nil {
		return gjson.Result{}, err
	}
	body, err := resp.ToBytes()
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.IsErrorState() {
		return gjson.Result{}, apiError(resp.StatusCode, body)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("api: invalid JSON response (status %d)", resp.StatusCode)
	}
	return gjson.ParseBytes(body), nil
}

func apiError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	if !gjson.ValidBytes(body) {
		return e
	}
	parsed := gjson.ParseBytes(body)
	e.Code = parsed.Get("code").String()
	e.Detail = parsed.Get("detail").String()
	if fields := parsed.Get("fields"); fields.IsObject() {
		e.Fields = map[string]string{}
		fields.ForEach(func(k, v gjson.Result) bool {
			e.Fields[k.String()] = v.String()
			return true
		})
	}
	return e
}
