// Package safety is the single SSRF / path-traversal defense point. Every
// externally influenced URL is checked before a network fetch, and every
// stored path is checked before a file read or file-serving response.
package safety

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrDisallowedURL = errors.New("url not allowed")
	ErrOutsideBase   = errors.New("path outside base directory")
)

// ValidateFetchURL allows a URL only when it is https and its hostname is in
// the allow-list. Any parse failure rejects.
func ValidateFetchURL(raw string, allowedHosts []string) error {
	u, err := url.Parse(raw)
	if err != nil {
		log.WithField("url", raw).Warn("fetch url rejected: unparseable")
		return errors.Wrap(ErrDisallowedURL, "parse")
	}
	if u.Scheme != "https" {
		log.WithFields(log.Fields{"url": raw, "scheme": u.Scheme}).
			Warn("fetch url rejected: insecure scheme")
		return errors.Wrapf(ErrDisallowedURL, "scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range allowedHosts {
		if host == strings.ToLower(allowed) {
			return nil
		}
	}
	log.WithFields(log.Fields{"url": raw, "host": host}).
		Warn("fetch url rejected: host not in allow-list")
	return errors.Wrapf(ErrDisallowedURL, "host %q", host)
}

// ValidateLocalPath resolves path to its canonical absolute form, following
// symlinks, and accepts only the base directory itself or a descendant of
// it. It returns the canonical path to use for the actual file access, so
// callers cannot validate one path and open another.
func ValidateLocalPath(path, baseDir string) (string, error) {
	canonBase, err := canonicalize(baseDir)
	if err != nil {
		return "", errors.Wrap(err, "resolve base dir")
	}

	canon, err := canonicalize(path)
	if err != nil {
		log.WithFields(log.Fields{"path": path, "base": baseDir}).
			Warn("local path rejected: unresolvable")
		return "", errors.Wrap(ErrOutsideBase, "resolve")
	}

	if canon != canonBase && !strings.HasPrefix(canon, canonBase+string(os.PathSeparator)) {
		log.WithFields(log.Fields{"path": path, "base": baseDir}).
			Warn("local path rejected: escapes base directory")
		return "", ErrOutsideBase
	}
	return canon, nil
}

// canonicalize makes path absolute and follows symlinks. When the final
// element does not exist yet (a destination about to be written), the
// deepest existing ancestor is resolved instead and the remainder
// re-appended, so checks on not-yet-created files still see through
// symlinked parents.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir, rest := abs, ""
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", err
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
		resolved, rerr := filepath.EvalSymlinks(dir)
		if rerr == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !os.IsNotExist(rerr) {
			return "", rerr
		}
	}
}
