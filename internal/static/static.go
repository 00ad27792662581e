// Package static serves the chat front end: the index document plus an
// allow-listed or open set of sibling assets.
package static

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	indexFile = "index.html"

	// IndexPlaceholder is served when the index document is missing.
	IndexPlaceholder = "<h1>Error: index.html not found</h1>"

	// AnyFile as the only allow-list entry serves every file present.
	AnyFile = "*"
)

var ErrNotFound = errors.New("static: not found")

// DefaultFiles is the allow-list used when none is configured.
var DefaultFiles = []string{"script.js", "style.css"}

var contentTypes = map[string]string{
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".css":  "text/css",
	".html": "text/html; charset=utf-8",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

// Asset is a file ready to be written to a response.
type Asset struct {
	Name        string
	ContentType string
	Body        []byte
}

// Server resolves front-end files from a file system.
type Server struct {
	fsys     fs.FS
	allowed  map[string]struct{}
	allowAll bool
}

// New creates a Server over fsys. allowed lists the servable file names;
// a single "*" entry serves any file present, and an empty list uses DefaultFiles.
func New(fsys fs.FS, allowed []string) (*Server, error) {
	if fsys == nil {
		return nil, errors.New("static: file system must not be nil")
	}
	if len(allowed) == 0 {
		allowed = DefaultFiles
	}
	s := &Server{fsys: fsys, allowed: make(map[string]struct{}, len(allowed))}
	for _, name := range allowed {
		name = strings.TrimSpace(name)
		if name == AnyFile {
			s.allowAll = true
			continue
		}
		if name != "" {
			s.allowed[name] = struct{}{}
		}
	}
	return s, nil
}

// Index returns the front-end document, or the placeholder when it is absent.
func (s *Server) Index() Asset {
	body, err := fs.ReadFile(s.fsys, indexFile)
	if err != nil {
		body = []byte(IndexPlaceholder)
	}
	return Asset{Name: indexFile, ContentType: contentTypes[".html"], Body: body}
}

// Asset returns the named file if it is servable. Anything else, including
// path traversal attempts and dotfiles, is ErrNotFound.
func (s *Server) Asset(name string) (Asset, error) {
	if !s.servable(name) {
		return Asset{}, ErrNotFound
	}
	info, err := fs.Stat(s.fsys, name)
	if err != nil || !info.Mode().IsRegular() {
		return Asset{}, ErrNotFound
	}
	body, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return Asset{}, fmt.Errorf("static: read %s: %w", name, err)
	}
	return Asset{Name: name, ContentType: contentType(name, body), Body: body}, nil
}

func (s *Server) servable(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return false
	}
	if !fs.ValidPath(name) {
		return false
	}
	if s.allowAll {
		return true
	}
	_, ok := s.allowed[name]
	return ok
}

func contentType(name string, body []byte) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return mimetype.Detect(body).String()
}
