package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	perr "mpak/internal/platform/errors"
)

const (
	acceptJSON   = "application/vnd.github+json"
	acceptRaw    = "application/vnd.github.raw+json"
	acceptBinary = "application/octet-stream"

	// companions and readmes are small documents
	maxDocBytes = 1 << 20
)

var repoRe = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})/[A-Za-z0-9._-]{1,100}$`)

func splitRepo(repo string) (string, string, error) {
	if !repoRe.MatchString(repo) {
		return "", "", perr.WithField(perr.Validationf("repository must be owner/name"), "repository")
	}
	owner, name, _ := strings.Cut(repo, "/")
	return owner, name, nil
}

// Release fetches the release tagged tag in repo ("owner/name")
// draft releases are treated as absent
func (c *Client) Release(ctx context.Context, repo, tag string) (Release, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return Release{}, err
	}
	if strings.TrimSpace(tag) == "" {
		return Release{}, perr.WithField(perr.Validationf("release tag is required"), "release_tag")
	}
	path := fmt.Sprintf("/repos/%s/%s/releases/tags/%s", owner, name, url.PathEscape(tag))

	resp, err := c.do(ctx, c.api, path, acceptJSON)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeUpstreamNotFound) {
			return Release{}, perr.UpstreamNotFoundf("release %s not found", tag)
		}
		return Release{}, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Error().Err(cerr).Str("path", path).Msg("github close body failed")
		}
	}()

	var out Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocBytes)).Decode(&out); err != nil {
		return Release{}, perr.Wrapf(err, perr.ErrorCodeUpstreamUnavailable, "release host sent an unreadable release")
	}
	if out.Draft {
		return Release{}, perr.UpstreamNotFoundf("release %s not found", tag)
	}
	return out, nil
}

// OpenAsset streams the asset bytes; the stream is bounded by DownloadTimeout
// and size is the host's Content-Length when known, else the declared asset size
func (c *Client) OpenAsset(ctx context.Context, a Asset) (io.ReadCloser, int64, error) {
	src := a.URL
	accept := acceptBinary
	if src == "" {
		src = a.DownloadURL
	}
	if src == "" {
		return nil, 0, perr.UpstreamNotFoundf("asset %s has no download url", a.Name)
	}

	dctx, cancel := context.WithTimeout(ctx, c.opts.DownloadTimeout)
	resp, err := c.do(dctx, c.dl, src, accept)
	if err != nil {
		cancel()
		if perr.IsCode(err, perr.ErrorCodeUpstreamNotFound) {
			return nil, 0, perr.UpstreamNotFoundf("asset %s not found", a.Name)
		}
		return nil, 0, err
	}
	size := resp.ContentLength
	if size < 0 {
		size = a.Size
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, size, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Companion fetches a small co-located release file (server.json, SKILL.md)
// absence is not an error: found=false; fetch failures are logged and also reported as absent
func (c *Client) Companion(ctx context.Context, rel Release, name string) (body []byte, found bool) {
	a, ok := rel.Asset(name)
	if !ok {
		return nil, false
	}
	rc, _, err := c.OpenAsset(ctx, a)
	if err != nil {
		c.log.Warn().Err(err).Str("asset", name).Msg("companion fetch failed")
		return nil, false
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(io.LimitReader(rc, maxDocBytes+1))
	if err != nil {
		c.log.Warn().Err(err).Str("asset", name).Msg("companion read failed")
		return nil, false
	}
	if len(b) > maxDocBytes {
		c.log.Warn().Str("asset", name).Msg("companion too large, ignored")
		return nil, false
	}
	return b, true
}

// Readme returns the raw README of repo at ref; a missing README is "" and no error
func (c *Client) Readme(ctx context.Context, repo, ref string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("/repos/%s/%s/readme", owner, name)
	if ref != "" {
		path += "?ref=" + url.QueryEscape(ref)
	}
	resp, err := c.do(ctx, c.api, path, acceptRaw)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeUpstreamNotFound) {
			return "", nil
		}
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDocBytes))
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUpstreamUnavailable, "readme read failed")
	}
	return string(b), nil
}
