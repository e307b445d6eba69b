package preprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/compozy/productgen/pkg/logger"
)

const (
	DefaultMaxFetchBytes = 10 << 20
	defaultUserAgent     = "productgen/1.0"
)

var (
	// ErrPreprocess matches every *Error.
	ErrPreprocess = errors.New("preprocess error")
	ErrEmpty      = errors.New("source produced no text")
)

// Source is the raw form of one item: literal text or a location to fetch.
type Source struct {
	Text string
	URL  string
}

// Error is a failed preprocessing step.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := "preprocess failed"
	if e.URL != "" {
		msg = fmt.Sprintf("%s for %s", msg, e.URL)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [status %d]", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == ErrPreprocess
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Options struct {
	Timeout       time.Duration
	RetryCount    int
	MaxFetchBytes int
	UserAgent     string
	// CacheSize keeps the text of that many fetched URLs; zero disables it.
	CacheSize int
}

// Default passes text through and fetches http(s) and file URLs, reducing
// HTML documents to their visible text.
type Default struct {
	http     *resty.Client
	maxBytes int
	cache    *lru.Cache[string, string]
}

func New(opts Options) (*Default, error) {
	maxBytes := opts.MaxFetchBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFetchBytes
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	client := resty.New().
		SetHeader("User-Agent", ua).
		SetHeader("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5").
		SetRetryCount(opts.RetryCount).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	p := &Default{http: client, maxBytes: maxBytes}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("init fetch cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Preprocess returns the text to generate from.
func (p *Default) Preprocess(ctx context.Context, src Source) (string, error) {
	if src.URL == "" {
		text := strings.TrimSpace(normalizeNewlines(src.Text))
		if text == "" {
			return "", ErrEmpty
		}
		return text, nil
	}
	u, err := url.Parse(strings.TrimSpace(src.URL))
	if err != nil {
		return "", &Error{URL: src.URL, Err: err}
	}
	key := u.String()
	if p.cache != nil {
		if text, ok := p.cache.Get(key); ok {
			logger.FromContext(ctx).Debug("Source served from cache", "url", src.URL)
			return text, nil
		}
	}
	var data []byte
	var contentType string
	switch u.Scheme {
	case "http", "https":
		data, contentType, err = p.fetch(ctx, u.String())
	case "file":
		data, err = p.readFile(u.Path)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			return "", err
		}
		return "", &Error{URL: src.URL, Err: err}
	}
	text, err := extract(data, contentType)
	if err != nil {
		return "", &Error{URL: src.URL, Err: err}
	}
	if text == "" {
		return "", &Error{URL: src.URL, Err: ErrEmpty}
	}
	if p.cache != nil {
		p.cache.Add(key, text)
	}
	logger.FromContext(ctx).Debug("Source fetched", "url", src.URL, "bytes", len(data), "chars", len(text))
	return text, nil
}

func (p *Default) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := p.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, "", &Error{URL: rawURL, Err: err}
	}
	if resp.IsError() {
		return nil, "", &Error{URL: rawURL, StatusCode: resp.StatusCode(), Err: errors.New(http.StatusText(resp.StatusCode()))}
	}
	body := resp.Body()
	if len(body) > p.maxBytes {
		return nil, "", &Error{URL: rawURL, Err: fmt.Errorf("document exceeds maximum size of %d bytes", p.maxBytes)}
	}
	return body, resp.Header().Get("Content-Type"), nil
}

func (p *Default) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, int64(p.maxBytes)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > p.maxBytes {
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", p.maxBytes)
	}
	return data, nil
}

// extract decodes data to UTF-8 and reduces markup to text.
func extract(data []byte, contentType string) (string, error) {
	mediaType := mediaTypeOf(data, contentType)
	text, err := decodeText(data, contentType)
	if err != nil {
		return "", err
	}
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return HTMLToText(text)
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/json",
		mediaType == "application/xml":
		return strings.TrimSpace(normalizeNewlines(text)), nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func mediaTypeOf(data []byte, contentType string) string {
	value := strings.TrimSpace(contentType)
	if value == "" || strings.EqualFold(value, "application/octet-stream") {
		value = mimetype.Detect(data).String()
	}
	mt, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(value)
	}
	return mt
}

func decodeText(data []byte, contentType string) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	enc, name, _ := charset.DetermineEncoding(data, contentType)
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("transcode from %s: %w", name, err)
	}
	if !utf8.Valid(decoded) {
		return "", errors.New("transcoded result is not valid utf-8")
	}
	return string(decoded), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
