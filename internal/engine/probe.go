package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

// Probe resolves the size and resume capability of rawurl.
//
// A HEAD request is tried first. Servers that refuse HEAD are probed with a
// one-byte ranged GET instead: a 206 proves resume support and carries the
// total in Content-Range, a 200 means ranges are ignored.
func Probe(ctx context.Context, client *http.Client, rawurl string, runtime *types.RuntimeConfig) (*types.FileInfo, error) {
	utils.Debug("Probing server: %s", rawurl)

	probeCtx, cancel := context.WithTimeout(ctx, runtime.GetProbeTimeout())
	defer cancel()

	info, status, err := probeHead(probeCtx, client, rawurl, runtime)
	if err != nil {
		return nil, err
	}
	if info != nil {
		return info, nil
	}

	utils.Debug("HEAD answered %d, probing with ranged GET", status)
	return probeRangedGet(probeCtx, client, rawurl, runtime)
}

// probeHead returns a nil FileInfo with the status code when the server
// does not answer HEAD usefully.
func probeHead(ctx context.Context, client *http.Client, rawurl string, runtime *types.RuntimeConfig) (*types.FileInfo, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawurl, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create probe request: %w", err)
	}
	SetRequestHeaders(req, runtime)

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("probe request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, nil
	}

	info := &types.FileInfo{
		Size:          types.UnknownSize,
		SupportsRange: strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes"),
		Filename:      utils.FilenameFromHeader(resp.Header),
		ContentType:   resp.Header.Get("Content-Type"),
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size >= 0 {
			info.Size = size
		}
	}

	utils.Debug("HEAD probe complete - size: %d, range: %v", info.Size, info.SupportsRange)
	return info, resp.StatusCode, nil
}

func probeRangedGet(ctx context.Context, client *http.Client, rawurl string, runtime *types.RuntimeConfig) (*types.FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe request: %w", err)
	}
	SetRequestHeaders(req, runtime)
	req.Header.Set("Range", "bytes=0-0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe request failed: %w", err)
	}
	// Never drain: a 200 here may be the whole file
	defer func() { _ = resp.Body.Close() }()

	info := &types.FileInfo{
		Size:        types.UnknownSize,
		Filename:    utils.FilenameFromHeader(resp.Header),
		ContentType: resp.Header.Get("Content-Type"),
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		info.SupportsRange = true
		// Format: "bytes 0-0/12345" or "bytes 0-0/*"
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if idx := strings.LastIndex(cr, "/"); idx != -1 {
				if size, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil {
					info.Size = size
				}
			}
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1))
	case http.StatusOK:
		if resp.ContentLength >= 0 {
			info.Size = resp.ContentLength
		}
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	utils.Debug("GET probe complete - size: %d, range: %v", info.Size, info.SupportsRange)
	return info, nil
}
