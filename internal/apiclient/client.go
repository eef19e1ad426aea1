// Package apiclient talks to the marketplace REST API on behalf of the
// terminal client.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/Cross4solution/MedGama-sub003/internal/attachments"
	"github.com/Cross4solution/MedGama-sub003/internal/chat"
	"github.com/Cross4solution/MedGama-sub003/internal/kv"
	"github.com/Cross4solution/MedGama-sub003/internal/models"
	"github.com/Cross4solution/MedGama-sub003/internal/realtime"
)

var ErrUnauthorized = errors.New("apiclient: unauthorized")

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apiclient: %s %s returned %d", e.Method, e.Path, e.Code)
}

// Client is a REST client. The bearer token is read from the kv store on
// every request so a new login is picked up immediately.
type Client struct {
	base   string
	http   *http.Client
	tokens kv.Store
}

var (
	_ chat.Sender   = (*Client)(nil)
	_ chat.Uploader = (*Client)(nil)
)

func New(baseURL string, httpClient *http.Client, tokens kv.Store) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient, tokens: tokens}
}

type threadsResponse struct {
	Threads []models.Thread `json:"threads"`
}

type messagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// Threads lists the caller's conversations.
func (c *Client) Threads(ctx context.Context) ([]models.Thread, error) {
	var out threadsResponse
	if err := c.do(ctx, http.MethodGet, "/threads", nil, "", &out); err != nil {
		return nil, err
	}
	if out.Threads == nil {
		out.Threads = []models.Thread{}
	}
	return out.Threads, nil
}

// Messages returns the messages of one thread, oldest first.
func (c *Client) Messages(ctx context.Context, threadID string) ([]models.Message, error) {
	var out messagesResponse
	if err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/messages", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage posts a message and returns the server's copy.
func (c *Client) SendMessage(ctx context.Context, threadID string, req chat.SendRequest) (models.Message, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Upload sends one file as multipart form field "file".
func (c *Client) Upload(ctx context.Context, cand attachments.Candidate) (models.Attachment, error) {
	if cand.Open == nil {
		return models.Attachment{}, fmt.Errorf("apiclient: %s has no content", cand.Name)
	}
	src, err := cand.Open()
	if err != nil {
		return models.Attachment{}, err
	}
	defer src.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreatePart(filePartHeader(cand))
		if err == nil {
			_, err = io.Copy(part, src)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var att models.Attachment
	if err := c.do(ctx, http.MethodPost, "/uploads", pr, mw.FormDataContentType(), &att); err != nil {
		pr.CloseWithError(err)
		return models.Attachment{}, err
	}
	if att.FileName == "" {
		att.FileName = cand.Name
	}
	if att.FileType == "" {
		att.FileType = cand.MIMEType
	}
	if att.FileSize == 0 {
		att.FileSize = cand.Size
	}
	return att, nil
}

func filePartHeader(cand attachments.Candidate) map[string][]string {
	return map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, cand.Name)},
		"Content-Type":        {cand.MIMEType},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := kv.GetString(ctx, c.tokens, realtime.TokenKey); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode %s: %w", path, err)
	}
	return nil
}
