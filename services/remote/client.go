package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/interfaces"
	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
	"github.com/customeros/mailmirror/internal/tracing"
)

type Config struct {
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

type client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg Config) interfaces.RemoteAPI {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.Timeout})
}

func NewClientWithHTTP(cfg Config, httpClient *http.Client) interfaces.RemoteAPI {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = 60 * time.Second
	}
	return &client{httpClient: httpClient, limiter: rate.NewLimiter(limit, burst)}
}

// BasicAuthorization builds the header value used by sync calls.
func BasicAuthorization(token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
}

func (c *client) ListFolders(ctx context.Context, endpoint dto.Endpoint) ([]dto.RawRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "remoteClient.ListFolders")
	defer span.Finish()
	tracing.TagComponentRemoteClient(span)

	body, err := c.do(ctx, span, "listFolders", http.MethodGet, endpoint, "/v1/folders", nil, nil)
	if err != nil {
		return nil, err
	}

	records, ok, err := decodeRecords(body, "folders")
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, &mirrorerrors.NetworkError{Op: "listFolders", Err: err}
	}
	if !ok {
		return nil, nil
	}
	return records, nil
}

func (c *client) ListMessages(ctx context.Context, endpoint dto.Endpoint, folder string, page, limit int) ([]dto.RawRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "remoteClient.ListMessages")
	defer span.Finish()
	tracing.TagComponentRemoteClient(span)
	tracing.TagFolder(span, folder)
	span.LogKV("page", page, "limit", limit)

	query := url.Values{}
	query.Set("folder", folder)
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, span, "listMessages", http.MethodGet, endpoint, "/v1/messages", query, nil)
	if err != nil {
		return nil, err
	}

	// only a bare array is a page, anything else ends paging
	records, ok, err := decodeRecords(body, "")
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, &mirrorerrors.NetworkError{Op: "listMessages", Err: err}
	}
	if !ok {
		span.LogKV("nonSequence", true)
		return nil, nil
	}
	span.LogKV("received", len(records))
	return records, nil
}

func (c *client) GetMessage(ctx context.Context, endpoint dto.Endpoint, id, folder string) (dto.RawRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "remoteClient.GetMessage")
	defer span.Finish()
	tracing.TagComponentRemoteClient(span)
	tracing.TagEntity(span, id)

	query := url.Values{}
	if folder != "" {
		query.Set("folder", folder)
	}

	body, err := c.do(ctx, span, "getMessage", http.MethodGet, endpoint, "/v1/messages/"+url.PathEscape(id), query, nil)
	if err != nil {
		return nil, err
	}

	var record dto.RawRecord
	if err := json.Unmarshal(body, &record); err != nil || record == nil {
		if err == nil {
			err = errors.New("empty message payload")
		}
		tracing.TraceErr(span, err)
		return nil, &mirrorerrors.NetworkError{Op: "getMessage", Err: errors.Wrap(err, "failed to decode message")}
	}
	return record, nil
}

func (c *client) UpdateMessage(ctx context.Context, endpoint dto.Endpoint, id, folder string, update dto.MessageUpdate) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "remoteClient.UpdateMessage")
	defer span.Finish()
	tracing.TagComponentRemoteClient(span)
	tracing.TagEntity(span, id)
	tracing.LogObjectAsJson(span, "update", update)

	payload, err := json.Marshal(update)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to marshal payload")
	}

	query := url.Values{}
	if folder != "" {
		query.Set("folder", folder)
	}

	_, err = c.do(ctx, span, "updateMessage", http.MethodPut, endpoint, "/v1/messages/"+url.PathEscape(id), query, payload)
	return err
}

func (c *client) DeleteMessage(ctx context.Context, endpoint dto.Endpoint, id, folder string, permanent bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "remoteClient.DeleteMessage")
	defer span.Finish()
	tracing.TagComponentRemoteClient(span)
	tracing.TagEntity(span, id)

	query := url.Values{}
	if folder != "" {
		query.Set("folder", folder)
	}
	if permanent {
		query.Set("permanent", "1")
	}

	_, err := c.do(ctx, span, "deleteMessage", http.MethodDelete, endpoint, "/v1/messages/"+url.PathEscape(id), query, nil)
	return err
}

func (c *client) do(ctx context.Context, span opentracing.Span, op, method string, endpoint dto.Endpoint, path string, query url.Values, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, &mirrorerrors.NetworkError{Op: op, Err: err}
	}

	target := strings.TrimRight(endpoint.APIBase, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, &mirrorerrors.NetworkError{Op: op, Err: errors.Wrap(err, "failed to create request")}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if endpoint.Authorization != "" {
		req.Header.Set("Authorization", endpoint.Authorization)
	}
	req = tracing.InjectSpanContextIntoHTTPRequest(req, span)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, &mirrorerrors.NetworkError{Op: op, Err: errors.Wrap(err, "request failed")}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, &mirrorerrors.NetworkError{Op: op, Status: resp.StatusCode, Err: errors.Wrap(err, "unable to read response body")}
	}

	span.SetTag("http.status_code", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, truncate(string(body), 256))
		tracing.TraceErr(span, err)
		return nil, &mirrorerrors.NetworkError{Op: op, Status: resp.StatusCode, Err: err}
	}

	return body, nil
}

// decodeRecords accepts a JSON array of objects, or an object carrying the
// array under wrapKey when wrapKey is set. Non-object elements are dropped.
// A well-formed value that is not a sequence reports false; a body that is
// not JSON at all is an error.
func decodeRecords(body []byte, wrapKey string) ([]dto.RawRecord, bool, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false, nil
	}
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false, errors.Wrap(err, "malformed response body")
	}
	if obj, ok := raw.(map[string]interface{}); ok && wrapKey != "" {
		raw = obj[wrapKey]
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, false, nil
	}
	records := make([]dto.RawRecord, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]interface{}); ok {
			records = append(records, obj)
		}
	}
	return records, true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
