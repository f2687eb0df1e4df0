// Package signchat is a thin client for the sign-language translation
// microservice. It forwards three operations (text to image, image to text,
// keyboard markup) and rewrites the microservice's development host in its
// responses to the public base URL. Calls are made once; there are no retries.
package signchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/signchat/chat-relay/telemetry"
)

// maxDetailBytes caps how much of an error body is kept as diagnostic detail.
const maxDetailBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Client forwards requests to a fixed upstream base URL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client whose transport is traced with otelhttp.
// A zero timeout leaves the transport default in place.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// TextToImageRequest is the body sent to the text-to-image translator. Text is
// normally a string; any other truthy JSON value is forwarded unchanged.
type TextToImageRequest struct {
	Text any `json:"text"`
}

// TextToImage asks the upstream for the sign images spelling text. Image URLs
// pointing at the development host are rewritten to the public prefix.
func (c *Client) TextToImage(ctx context.Context, text any) (*ImagesResponse, error) {
	if !present(text) {
		return nil, &ValidationError{Field: "text", Message: "text is required"}
	}
	body, err := json.Marshal(TextToImageRequest{Text: text})
	if err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, "txt_to_img", http.MethodPost, "/translate/txt-to-img.php", body)
	if err != nil {
		return nil, err
	}
	out, err := parseImagesResponse(raw)
	if err != nil {
		return nil, c.fail(ctx, &UpstreamError{Op: "txt_to_img", Err: fmt.Errorf("decode response: %w", err)})
	}
	return out, nil
}

// present reports whether v counts as supplied text: null, false, zero and
// the empty string do not.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return validate.Var(t, "required") == nil
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

// ImageToText forwards payload verbatim and returns the upstream JSON untouched.
func (c *Client) ImageToText(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	raw, err := c.do(ctx, "img_to_txt", http.MethodPost, "/translate/img-to-txt.php", payload)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, c.fail(ctx, &UpstreamError{Op: "img_to_txt", Err: fmt.Errorf("decode response: invalid JSON")})
	}
	return json.RawMessage(raw), nil
}

// KeyboardMarkup fetches the sign keyboard HTML with every development host
// reference replaced by the configured base URL.
func (c *Client) KeyboardMarkup(ctx context.Context) (string, error) {
	raw, err := c.do(ctx, "keyboard", http.MethodGet, "/keyboard.php", nil)
	if err != nil {
		return "", err
	}
	return RewriteMarkup(string(raw), c.BaseURL), nil
}

// do performs one upstream call and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "signchat", "signchat."+op,
		telemetry.HTTPMethodAttr(method),
		telemetry.HTTPURLAttr(c.BaseURL+path),
	)
	defer span.End()

	var (
		data []byte
		err  error
	)
	telemetry.TimeFunc(telemetry.UpstreamObserver(op), func() {
		data, err = c.roundTrip(ctx, op, method, path, body)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetSpanSuccess(span)
	return data, nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return nil, c.fail(ctx, &UpstreamError{Op: op, Err: err})
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http().Do(req)
	if err != nil {
		return nil, c.fail(ctx, &UpstreamError{Op: op, Err: err})
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
		return nil, c.fail(ctx, &UpstreamError{Op: op, Status: resp.StatusCode, Detail: string(detail)})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(ctx, &UpstreamError{Op: op, Err: err})
	}
	return data, nil
}

func (c *Client) fail(ctx context.Context, err *UpstreamError) error {
	telemetry.CountUpstreamFailure(err.Op, err.kind())
	telemetry.LoggerWithCorr(ctx).Error("signchat upstream call failed",
		slog.String("op", err.Op),
		slog.Int("status", err.Status),
		slog.Any("err", err),
		slog.String("component", "signchat"))
	return err
}
