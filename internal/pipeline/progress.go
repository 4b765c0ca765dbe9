package pipeline

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ProgressFunc receives bytes read so far and the expected total, which is
// -1 when unknown.
type ProgressFunc func(done, total int64)

type progressKey struct{}

// WithProgress attaches fn to ctx; Download reports body progress to it.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func reportProgress(ctx context.Context, done, total int64) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
		fn(done, total)
	}
}

// readBody reads at most limit bytes of the (decompressed) body.
func readBody(ctx context.Context, resp *http.Response, limit int64) ([]byte, error) {
	var rc io.Reader = resp.Body
	// The transport only decompresses what it asked for itself.
	if !resp.Uncompressed {
		switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
		case "gzip":
			gr, err := gzip.NewReader(resp.Body)
			if err != nil {
				return nil, err
			}
			defer gr.Close()
			rc = gr
		case "deflate":
			if zr, err := zlib.NewReader(resp.Body); err == nil {
				defer zr.Close()
				rc = zr
			} else {
				fr := flate.NewReader(resp.Body)
				defer fr.Close()
				rc = fr
			}
		}
	}
	total := resp.ContentLength
	var buf bytes.Buffer
	n, err := copyWithProgress(&buf, io.LimitReader(rc, limit+1), func(done int64) {
		reportProgress(ctx, done, total)
	})
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, fmt.Errorf("image larger than %d bytes", limit)
	}
	if n == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	reportProgress(ctx, n, n)
	return buf.Bytes(), nil
}

func copyWithProgress(dst io.Writer, src io.Reader, progress func(done int64)) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw > 0 {
				total += int64(nw)
				if progress != nil {
					progress(total)
				}
			}
			if ew != nil {
				return total, ew
			}
			if nr != nw {
				return total, io.ErrShortWrite
			}
		}
		if er != nil {
			if er == io.EOF {
				break
			}
			return total, er
		}
	}
	return total, nil
}
