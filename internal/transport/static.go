package transport

import (
	"context"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/handler"
	"github.com/pitabwire/relay/relayerr"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

// staticHandler serves files under root for any request the router
// didn't otherwise match. A path resolving to a directory serves index
// from that directory; a path resolving to nothing serves fallback
// (typically a single-page-application shell) when set, else 404. File
// reading and MIME sniffing are the only pieces of this handler's job;
// document generation and directory listing are not this package's
// concern.
func staticHandler(root, index, fallback string) handler.Func {
	return func(_ context.Context, rc *reqctx.Context) *response.Response {
		path, ok := resolveStaticPath(root, rc.Req.URI.Path, index, fallback)
		if !ok {
			return response.FromError(relayerr.NotFound("no route matches this path"))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return response.FromError(relayerr.NotFound("no route matches this path"))
		}
		r := response.New(http.StatusOK, body.Full(data))
		if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
			r.Header.Set("Content-Type", ct)
		}
		return r
	}
}

// resolveStaticPath maps an incoming URI path to a file under root,
// refusing to escape root via "..", and falls back to fallback when
// nothing under root matches.
func resolveStaticPath(root, reqPath, index, fallback string) (string, bool) {
	cleanRoot := filepath.Clean(root)
	rel := filepath.Clean("/" + reqPath)
	path := filepath.Join(cleanRoot, rel)
	if path != cleanRoot && !strings.HasPrefix(path, cleanRoot+string(filepath.Separator)) {
		return fallbackPath(cleanRoot, fallback)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fallbackPath(cleanRoot, fallback)
	}
	if info.IsDir() {
		if index == "" {
			return fallbackPath(cleanRoot, fallback)
		}
		path = filepath.Join(path, index)
		if info, err = os.Stat(path); err != nil || info.IsDir() {
			return fallbackPath(cleanRoot, fallback)
		}
	}
	return path, true
}

func fallbackPath(root, fallback string) (string, bool) {
	if fallback == "" {
		return "", false
	}
	path := filepath.Join(root, fallback)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}
