package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrDataLoad               = errors.New("identifier data could not be loaded")       // Input file unreadable/unparseable
	ErrTransport              = errors.New("transport error")                           // Timeout, refused connection, DNS, non-200
	ErrClassificationMismatch = errors.New("response body does not match content type") // e.g. application/pdf without %PDF
	ErrPersistence            = errors.New("failed to persist file")                    // Disk write failures
	ErrRetryFailed            = errors.New("request failed after all retries")          // Wraps the last underlying error
	ErrClientHTTPError        = errors.New("client HTTP error (4xx)")
	ErrServerHTTPError        = errors.New("server HTTP error (5xx)")
	ErrOtherHTTPError         = errors.New("other HTTP error (non-2xx)")
	ErrRobotsDisallowed       = errors.New("disallowed by robots.txt")
	ErrSourceResolve          = errors.New("source could not produce a URL")
	ErrBrowser                = errors.New("browser automation error")
	ErrParsing                = errors.New("parsing error") // Wraps specific parsing error (HTML, URL, JSON, Medline)
	ErrDatabase               = errors.New("database error")
	ErrRequestCreation        = errors.New("failed to create HTTP request")
	ErrResponseBodyRead       = errors.New("failed to read response body")
	ErrConfigValidation       = errors.New("configuration validation error")
)

// CategorizeError maps an error to a predefined category string for logging.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrRetryFailed):
		// FetchWithRetry wraps as "%w: %w", so the cause sits beside the sentinel
		if err == ErrRetryFailed {
			return "RetryFailed_Unknown"
		}
		if errors.Is(err, ErrServerHTTPError) {
			return "RetryFailed_HTTPServer"
		}
		if errors.Is(err, ErrClientHTTPError) {
			return "RetryFailed_HTTPClient"
		}
		if isTimeout(err) {
			return "RetryFailed_NetworkTimeout"
		}
		return "RetryFailed_NetworkOther"
	case errors.Is(err, ErrDataLoad):
		if errors.Is(err, os.ErrNotExist) {
			return "DataLoad_NotExist"
		}
		return "DataLoad_Other"
	case errors.Is(err, ErrClassificationMismatch):
		return "Classification_Mismatch"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrTransport):
		errMsg := err.Error()
		switch {
		case strings.Contains(errMsg, "status 404"):
			return "Transport_HTTP404"
		case strings.Contains(errMsg, "status 403"):
			return "Transport_HTTP403"
		case strings.Contains(errMsg, "status 429"):
			return "Transport_HTTP429"
		case strings.Contains(errMsg, "status 5"):
			return "Transport_HTTP5xx"
		case strings.Contains(errMsg, "status "):
			return "Transport_HTTPOther"
		case isTimeout(err):
			return "Transport_Timeout"
		case strings.Contains(errMsg, "connection refused"):
			return "Transport_ConnectionRefused"
		case strings.Contains(errMsg, "no such host"):
			return "Transport_DNSLookup"
		}
		return "Transport_Other"
	case errors.Is(err, ErrPersistence):
		if errors.Is(err, os.ErrPermission) {
			return "Persistence_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Persistence_NotExist"
		}
		return "Persistence_Other"
	case errors.Is(err, ErrSourceResolve):
		return "Source_Resolve"
	case errors.Is(err, ErrBrowser):
		return "Browser_Automation"
	case errors.Is(err, ErrClientHTTPError):
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}
	if isTimeout(err) {
		return "Network_Timeout"
	}

	lowerErrMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "no such host") {
		return "Network_DNSLookup"
	}
	if strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate") {
		return "Network_TLS"
	}
	if strings.Contains(lowerErrMsg, "reset by peer") {
		return "Network_ConnectionReset"
	}

	return "Unknown"
}

// isTimeout reports whether err is a network timeout or mentions one
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// WrapErrorf wraps err with a formatted message, returning nil when err is nil
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
