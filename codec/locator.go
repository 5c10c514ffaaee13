package codec

import (
	"regexp"
	"strings"
)

var (
	schemeHost = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://[^/]*`)
	slashRuns  = regexp.MustCompile(`/{2,}`)
)

// NormalizeRoot makes root end with exactly one separator.
func NormalizeRoot(root string) string {
	if root == "" || strings.HasSuffix(root, "/") {
		return root
	}
	return root + "/"
}

// Locator returns the synthetic location stack traces show for the module
// called name: the configured root joined with the name. Repeated slashes
// and "/./" segments in the path are collapsed; a scheme://host prefix is
// kept as is.
func (c *Codec) Locator(name string) string {
	return normalizeLocator(c.root + name)
}

func normalizeLocator(loc string) string {
	prefix := schemeHost.FindString(loc)
	path := slashRuns.ReplaceAllString(loc[len(prefix):], "/")
	for strings.Contains(path, "/./") {
		path = strings.ReplaceAll(path, "/./", "/")
	}
	path = strings.TrimPrefix(path, "./")
	return prefix + path
}
