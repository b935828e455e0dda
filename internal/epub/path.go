package epub

import (
	"net/url"
	"strings"
)

// ResolvePath resolves ref against base and returns an archive-root-relative
// path using "/" as separator. When baseIsFile is true the last segment of
// base is treated as a file name and dropped first.
//
// "." and empty segments are ignored and ".." never climbs above the archive
// root. Fragments are not interpreted; callers split them off beforehand.
func ResolvePath(base, ref string, baseIsFile bool) string {
	segments := applySegments(nil, base)
	if baseIsFile && len(segments) > 0 {
		segments = segments[:len(segments)-1]
	}
	segments = applySegments(segments, ref)
	return strings.Join(segments, "/")
}

func applySegments(segments []string, p string) []string {
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, seg)
		}
	}
	return segments
}

// packageDir returns everything before the last "/" of the package path.
func packageDir(packagePath string) string {
	if idx := strings.LastIndex(packagePath, "/"); idx >= 0 {
		return packagePath[:idx]
	}
	return ""
}

// splitFragment splits a reference into the path and fragment identifier.
// hasFragment reports whether a "#" was present at all.
func splitFragment(src string) (path, fragment string, hasFragment bool) {
	path, fragment, hasFragment = strings.Cut(src, "#")
	return path, fragment, hasFragment
}

// decodeHref percent-decodes an href. Malformed escapes leave it untouched.
func decodeHref(href string) string {
	if decoded, err := url.PathUnescape(href); err == nil {
		return decoded
	}
	return href
}
