// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	glerrors "github.com/stacklok/glassgate/pkg/errors"
	"github.com/stacklok/glassgate/pkg/idp"
	"github.com/stacklok/glassgate/pkg/logger"
)

const (
	// DefaultBaseURL is the production Mirror API endpoint.
	DefaultBaseURL = "https://www.googleapis.com/mirror/v1"

	// DefaultTimeout bounds each API call.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxRetries is the number of retries of a GET after a transient failure.
	DefaultMaxRetries uint = 3

	maxErrorBodySize  = 64 << 10
	maxAttachmentSize = 32 << 20
)

// APIError is a non-2xx response from the Mirror API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mirror api returned %d: %s", e.StatusCode, e.Message)
}

// HTTPClient implements Client over HTTP. The wrapped *http.Client is
// expected to authorize requests, normally through oauth2.NewClient.
type HTTPClient struct {
	baseURL    string
	uploadURL  string
	client     *http.Client
	timeout    time.Duration
	maxRetries uint
	newBackOff func() backoff.BackOff
}

var _ Client = (*HTTPClient)(nil)

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a GET is retried after a transient failure.
func WithMaxRetries(n uint) HTTPClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithBackOff sets the retry schedule. fn is called once per retried call.
func WithBackOff(fn func() backoff.BackOff) HTTPClientOption {
	return func(c *HTTPClient) {
		c.newBackOff = fn
	}
}

// NewHTTPClient creates a client for the API rooted at baseURL. Media
// uploads go to the same path under /upload.
func NewHTTPClient(baseURL string, client *http.Client, opts ...HTTPClientOption) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid mirror base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid mirror base URL %q", baseURL)
	}
	upload := *u
	upload.Path = "/upload" + u.Path

	c := &HTTPClient{
		baseURL:    u.String(),
		uploadURL:  upload.String(),
		client:     client,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// GetLocation returns a location by ID. "latest" is the most recent fix.
func (c *HTTPClient) GetLocation(ctx context.Context, id string) (*Location, error) {
	var loc Location
	if err := c.get(ctx, c.endpoint("locations", id), decodeInto(&loc)); err != nil {
		return nil, err
	}
	return &loc, nil
}

// ListTimeline returns the newest items on the timeline.
func (c *HTTPClient) ListTimeline(ctx context.Context, maxResults int) (*TimelineList, error) {
	u := c.endpoint("timeline") + "?maxResults=" + strconv.Itoa(maxResults)
	var list TimelineList
	if err := c.get(ctx, u, decodeInto(&list)); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetTimelineItem returns a timeline item by ID.
func (c *HTTPClient) GetTimelineItem(ctx context.Context, id string) (*TimelineItem, error) {
	var item TimelineItem
	if err := c.get(ctx, c.endpoint("timeline", id), decodeInto(&item)); err != nil {
		return nil, err
	}
	return &item, nil
}

// InsertTimelineItem inserts a metadata-only item.
func (c *HTTPClient) InsertTimelineItem(ctx context.Context, item *TimelineItem) (*TimelineItem, error) {
	var out TimelineItem
	if err := c.sendJSON(ctx, http.MethodPost, c.endpoint("timeline"), item, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InsertTimelineItemWithMedia inserts item with media as its attachment.
func (c *HTTPClient) InsertTimelineItemWithMedia(
	ctx context.Context, item *TimelineItem, contentType string, media io.Reader,
) (*TimelineItem, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	meta, err := json.Marshal(item)
	if err != nil {
		return nil, glerrors.NewInternalError("failed to encode timeline item", err)
	}
	if err := writePart(mw, "application/json; charset=UTF-8", bytes.NewReader(meta)); err != nil {
		return nil, err
	}
	if err := writePart(mw, contentType, io.LimitReader(media, maxAttachmentSize)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, glerrors.NewInternalError("failed to finish multipart body", err)
	}

	var out TimelineItem
	u := c.uploadURL + "/timeline?uploadType=multipart"
	if err := c.do(ctx, http.MethodPost, u, &buf, "multipart/related; boundary="+mw.Boundary(), decodeInto(&out)); err != nil {
		return nil, err
	}
	return &out, nil
}

func writePart(mw *multipart.Writer, contentType string, body io.Reader) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	pw, err := mw.CreatePart(h)
	if err != nil {
		return glerrors.NewInternalError("failed to create multipart part", err)
	}
	if _, err := io.Copy(pw, body); err != nil {
		return glerrors.NewInternalError("failed to write multipart part", err)
	}
	return nil
}

// PatchTimelineItem updates only the fields set in patch.
func (c *HTTPClient) PatchTimelineItem(ctx context.Context, id string, patch *TimelineItem) (*TimelineItem, error) {
	var out TimelineItem
	if err := c.sendJSON(ctx, http.MethodPatch, c.endpoint("timeline", id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTimelineItem deletes a timeline item.
func (c *HTTPClient) DeleteTimelineItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("timeline", id), nil, "", nil)
}

// GetAttachmentContent downloads an attachment. The metadata lookup gives
// the content URL and type; the bytes are then fetched from that URL.
func (c *HTTPClient) GetAttachmentContent(ctx context.Context, itemID, attachmentID string) (*AttachmentContent, error) {
	var meta Attachment
	if err := c.get(ctx, c.endpoint("timeline", itemID, "attachments", attachmentID), decodeInto(&meta)); err != nil {
		return nil, err
	}
	if meta.IsProcessingContent {
		return nil, glerrors.NewTransientError("attachment is still being processed", nil)
	}
	if meta.ContentURL == "" {
		return nil, glerrors.NewNotFoundError("attachment has no content URL", nil)
	}

	content := &AttachmentContent{}
	err := c.get(ctx, meta.ContentURL, func(resp *http.Response) error {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize+1))
		if err != nil {
			return glerrors.NewTransientError("failed to read attachment", err)
		}
		if len(data) > maxAttachmentSize {
			return glerrors.NewFatalError("attachment exceeds size limit", nil)
		}
		content.Data = data
		content.ContentType = meta.ContentType
		if content.ContentType == "" {
			content.ContentType = resp.Header.Get("Content-Type")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// InsertSubscription subscribes the callback URL to a collection.
func (c *HTTPClient) InsertSubscription(ctx context.Context, sub *Subscription) (*Subscription, error) {
	var out Subscription
	if err := c.sendJSON(ctx, http.MethodPost, c.endpoint("subscriptions"), sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSubscription removes a subscription.
func (c *HTTPClient) DeleteSubscription(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("subscriptions", id), nil, "", nil)
}

// InsertContact inserts a share target.
func (c *HTTPClient) InsertContact(ctx context.Context, contact *Contact) (*Contact, error) {
	var out Contact
	if err := c.sendJSON(ctx, http.MethodPost, c.endpoint("contacts"), contact, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) sendJSON(ctx context.Context, method, rawURL string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return glerrors.NewInternalError("failed to encode request body", err)
	}
	return c.do(ctx, method, rawURL, bytes.NewReader(body), "application/json", decodeInto(out))
}

// get performs a GET, retrying transient failures with exponential backoff.
func (c *HTTPClient) get(ctx context.Context, rawURL string, handle func(*http.Response) error) error {
	attempt := func() (struct{}, error) {
		err := c.do(ctx, http.MethodGet, rawURL, nil, "", handle)
		if err != nil && !glerrors.IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxRetries+1),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Debugw("retrying mirror request", "url", rawURL, "backoff", d, "error", err)
		}),
	)
	return err
}

func (c *HTTPClient) do(
	ctx context.Context, method, rawURL string, body io.Reader, contentType string, handle func(*http.Response) error,
) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return glerrors.NewInternalError("failed to build mirror request", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Token refresh failures surface here wrapped in *url.Error.
		return idp.Classify(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
		_ = resp.Body.Close()
	}()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if handle == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return handle(resp)
}

func decodeInto(out any) func(*http.Response) error {
	return func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return glerrors.NewFatalError("failed to decode mirror response", err)
		}
		return nil
	}
}

// checkResponse maps a non-2xx response to a tagged error. The message is
// taken from the error.message field of the JSON error body when present.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	msg := gjson.GetBytes(data, "error.message").String()
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: msg}

	// A 401 is fatal, not revoked: only a refresh rejected with invalid_grant
	// sends the user back through consent.
	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		return glerrors.NewNotFoundError("mirror resource not found", apiErr)
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return glerrors.NewTransientError("mirror api unavailable", apiErr)
	default:
		return glerrors.NewFatalError("mirror api request failed", apiErr)
	}
}
