package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/compozy/productgen/engine/core"
	"github.com/compozy/productgen/engine/product"
	"github.com/compozy/productgen/pkg/logger"
)

const (
	defaultSwellBaseURL = "https://api.swell.store"
	productsPath        = "/products"
)

// SwellConfig configures the Swell backend API sink.
type SwellConfig struct {
	BaseURL    string
	StoreID    string
	StoreKey   string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// SwellSink creates products through the Swell backend API.
type SwellSink struct {
	http *resty.Client
}

type swellProduct struct {
	ID     string         `json:"id"`
	Errors map[string]any `json:"errors"`
}

func NewSwellSink(cfg *SwellConfig) (*SwellSink, error) {
	if cfg.StoreID == "" || cfg.StoreKey == "" {
		return nil, errors.New("swell sink requires a store id and key (SWELL_STORE_ID, SWELL_STORE_KEY)")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultSwellBaseURL
	}
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(cfg.StoreID+":"+cfg.StoreKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(10 * wait).
		AddRetryCondition(retryableResponse)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &SwellSink{http: client}, nil
}

func retryableResponse(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
}

// Submit implements Sink.
func (s *SwellSink) Submit(ctx context.Context, rec *product.Record) (*Receipt, error) {
	payload, err := rec.Payload()
	if err != nil {
		return nil, &Error{Sink: KindSwell, Slug: rec.Slug, Err: err}
	}
	var out swellProduct
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post(productsPath)
	if err != nil {
		return nil, &Error{
			Sink:      KindSwell,
			Slug:      rec.Slug,
			Retryable: true,
			Err:       core.NewError(err, "SWELL_REQUEST_FAILED", nil),
		}
	}
	if resp.IsError() {
		status := resp.StatusCode()
		return nil, &Error{
			Sink:       KindSwell,
			Slug:       rec.Slug,
			StatusCode: status,
			Retryable:  status == http.StatusTooManyRequests || status >= http.StatusInternalServerError,
			Err: core.NewErrorf("SWELL_HTTP_ERROR", map[string]any{"body": strings.TrimSpace(resp.String())},
				"%s", http.StatusText(status)),
		}
	}
	if len(out.Errors) > 0 {
		return nil, &Error{
			Sink:       KindSwell,
			Slug:       rec.Slug,
			StatusCode: resp.StatusCode(),
			Err:        core.NewErrorf("SWELL_VALIDATION", out.Errors, "record rejected by the store: %v", out.Errors),
		}
	}
	if out.ID == "" {
		return nil, &Error{
			Sink:       KindSwell,
			Slug:       rec.Slug,
			StatusCode: resp.StatusCode(),
			Err:        core.NewErrorf("SWELL_MALFORMED", nil, "response has no product id"),
		}
	}
	logger.FromContext(ctx).Debug("Product created", "slug", rec.Slug, "id", out.ID)
	return &Receipt{ID: out.ID, Location: fmt.Sprintf("%s/%s", productsPath, out.ID)}, nil
}

// Close implements Sink.
func (s *SwellSink) Close() error {
	return nil
}
