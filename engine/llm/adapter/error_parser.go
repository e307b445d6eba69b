package llmadapter

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// ErrorParser handles the extraction and classification of errors from various LLM providers
type ErrorParser struct {
	provider string
}

// NewErrorParser creates a new error parser for the given provider
func NewErrorParser(provider string) *ErrorParser {
	return &ErrorParser{provider: provider}
}

// Classify always returns an *Error, falling back to unavailable when no
// pattern matches.
func (p *ErrorParser) Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	if parsed := p.ParseError(err); parsed != nil {
		return parsed
	}
	return NewErrorWithCode(ErrCodeUnavailable, err.Error(), p.provider, err)
}

// ParseError attempts to extract structured error information from raw errors
func (p *ErrorParser) ParseError(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCode(ErrCodeTimeout, err.Error(), p.provider, err)
	}
	errMsg := err.Error()
	errMsgLower := strings.ToLower(errMsg)
	if llmErr := p.matchProviderPatterns(errMsgLower, errMsg, err); llmErr != nil {
		return llmErr
	}
	if statusCode := p.extractHTTPStatusCode(errMsgLower); statusCode > 0 {
		return NewError(statusCode, errMsg, p.provider, err)
	}
	if llmErr := p.matchNetworkPatterns(errMsgLower, errMsg, err); llmErr != nil {
		return llmErr
	}
	return nil
}

// extractHTTPStatusCode extracts status codes from patterns such as
// "status code: 429" or "HTTP 503".
func (p *ErrorParser) extractHTTPStatusCode(errMsg string) int {
	statusPatterns := []string{
		"status code: ",
		"status code ",
		"status: ",
		"status ",
		"http ",
		"error ",
		"code ",
	}
	for _, prefix := range statusPatterns {
		idx := strings.Index(errMsg, prefix)
		if idx < 0 {
			continue
		}
		start := idx + len(prefix)
		end := start
		for end < len(errMsg) && end < start+3 && errMsg[end] >= '0' && errMsg[end] <= '9' {
			end++
		}
		if end-start != 3 {
			continue
		}
		if code, err := strconv.Atoi(errMsg[start:end]); err == nil && code >= 400 && code < 600 {
			return code
		}
	}
	return 0
}

// matchProviderPatterns matches provider-specific error patterns
func (p *ErrorParser) matchProviderPatterns(errMsgLower, errMsg string, originalErr error) *Error {
	if strings.Contains(errMsgLower, "insufficient_quota") {
		return NewErrorWithCode(ErrCodeQuotaExceeded, errMsg, p.provider, originalErr)
	}
	rateLimitPatterns := []string{
		"rate limit", "rate-limit", "ratelimit", "rate_limit_error", "too many requests",
		"throttled", "throttling", "resource_exhausted", "requests per minute",
	}
	for _, pattern := range rateLimitPatterns {
		if strings.Contains(errMsgLower, pattern) {
			return NewError(http.StatusTooManyRequests, errMsg, p.provider, originalErr)
		}
	}
	unavailablePatterns := []string{
		"service unavailable", "service_unavailable", "temporarily unavailable",
		"overloaded", "try again later",
	}
	for _, pattern := range unavailablePatterns {
		if strings.Contains(errMsgLower, pattern) {
			return NewError(http.StatusServiceUnavailable, errMsg, p.provider, originalErr)
		}
	}
	authPatterns := []string{
		"unauthorized", "invalid api key", "invalid_api_key", "incorrect api key",
		"authentication", "permission denied",
	}
	for _, pattern := range authPatterns {
		if strings.Contains(errMsgLower, pattern) {
			return NewError(http.StatusUnauthorized, errMsg, p.provider, originalErr)
		}
	}
	if strings.Contains(errMsgLower, "invalid model") || strings.Contains(errMsgLower, "model not found") {
		return NewErrorWithCode(ErrCodeBadRequest, errMsg, p.provider, originalErr)
	}
	if strings.Contains(errMsgLower, "content policy") || strings.Contains(errMsgLower, "safety") {
		return NewErrorWithCode(ErrCodeRefused, errMsg, p.provider, originalErr)
	}
	return nil
}

// matchNetworkPatterns matches network-level error patterns
func (p *ErrorParser) matchNetworkPatterns(errMsgLower, errMsg string, originalErr error) *Error {
	timeoutPatterns := []string{"timeout", "timed out", "deadline exceeded"}
	for _, pattern := range timeoutPatterns {
		if strings.Contains(errMsgLower, pattern) {
			return NewErrorWithCode(ErrCodeTimeout, errMsg, p.provider, originalErr)
		}
	}
	connectionPatterns := []string{
		"connection reset", "connection refused", "connection failed",
		"network error", "no such host", "eof",
	}
	for _, pattern := range connectionPatterns {
		if strings.Contains(errMsgLower, pattern) {
			return NewErrorWithCode(ErrCodeUnavailable, errMsg, p.provider, originalErr)
		}
	}
	return nil
}
