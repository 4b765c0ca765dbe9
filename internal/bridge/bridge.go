// Package bridge is the single channel between page-side code and the
// privileged download pipeline. It exposes exactly one parameterized action.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
)

// Format is a normalized encode target.
type Format string

const (
	PNG Format = "png"
	JPG Format = "jpg"
	GIF Format = "gif"
)

// Formats lists the valid encode targets.
var Formats = []Format{PNG, JPG, GIF}

// ErrUnsupportedFormat is returned by ParseFormat for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ParseFormat normalizes a requested format: case-insensitive, with jpeg
// as an alias of jpg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPG, nil
	case "gif":
		return GIF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Ext is the file extension without the dot.
func (f Format) Ext() string { return string(f) }

// MIME is the content type of the encoded output.
func (f Format) MIME() string {
	switch f {
	case JPG:
		return "image/jpeg"
	case GIF:
		return "image/gif"
	}
	return "image/png"
}

// Request asks for one image to be downloaded and converted. It is passed
// by value and never mutated after construction.
type Request struct {
	SourceURL string `json:"sourceUrl"`
	Format    string `json:"format"`
	// Referer is the page the image was found on; may be empty.
	Referer string `json:"referer,omitempty"`
}

// Result is Success{Path} or Failure{Error}.
type Result struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success builds a successful result.
func Success(path string) Result { return Result{Success: true, Path: path} }

// Failure builds a failed result carrying a human-readable reason.
func Failure(reason string) Result { return Result{Error: reason} }

// Failuref formats a failure reason.
func Failuref(format string, args ...any) Result {
	return Failure(fmt.Sprintf(format, args...))
}

// Requester is the only capability handed to page-side code.
type Requester interface {
	RequestDownload(ctx context.Context, req Request) Result
}

// Downloader performs a download on the privileged side. Every failure must
// be reported inside the Result.
type Downloader interface {
	Download(ctx context.Context, req Request) Result
}

// Local is the in-process Requester. It validates requests before they reach
// the Downloader and converts any fault into a Failure.
type Local struct {
	dl     Downloader
	logger *log.Logger
}

// NewLocal wraps dl.
func NewLocal(dl Downloader, logger *log.Logger) *Local {
	if logger == nil {
		logger = log.Default()
	}
	return &Local{dl: dl, logger: logger}
}

// RequestDownload implements Requester.
func (l *Local) RequestDownload(ctx context.Context, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Printf("DL panic url=%s: %v", req.SourceURL, r)
			res = Failuref("Internal error: %v", r)
		}
	}()
	if err := Validate(req); err != nil {
		return Failure(err.Error())
	}
	res = l.dl.Download(ctx, req)
	if res.Success {
		l.logger.Printf("DL ok fmt=%s path=%s", req.Format, res.Path)
	} else {
		l.logger.Printf("DL fail fmt=%s url=%s: %s", req.Format, req.SourceURL, res.Error)
	}
	return res
}

// Validate checks the request shape: a supported format and an http, https
// or data URL.
func Validate(req Request) error {
	if _, err := ParseFormat(req.Format); err != nil {
		return err
	}
	raw := strings.TrimSpace(req.SourceURL)
	if raw == "" {
		return errors.New("missing source url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid source url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("invalid source url %q", raw)
		}
	case "data":
	default:
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	return nil
}
