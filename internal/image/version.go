package image

import (
	"strconv"
	"strings"
)

type version struct {
	primary   string
	suffix    uint64
	hasSuffix bool
}

func parseVersion(v string) version {
	if i := strings.LastIndexByte(v, '.'); i >= 0 {
		if n, err := strconv.ParseUint(v[i+1:], 10, 64); err == nil {
			return version{primary: v[:i], suffix: n, hasSuffix: true}
		}
	}
	return version{primary: v}
}

// CompareVersions orders versions by their primary token, then by the numeric
// suffix after the last '.'. A version without a suffix sorts before any
// suffixed version with the same primary token.
func CompareVersions(a, b string) int {
	va, vb := parseVersion(a), parseVersion(b)
	if c := strings.Compare(va.primary, vb.primary); c != 0 {
		return c
	}
	switch {
	case va.hasSuffix == vb.hasSuffix:
	case !va.hasSuffix:
		return -1
	default:
		return 1
	}
	switch {
	case va.suffix < vb.suffix:
		return -1
	case va.suffix > vb.suffix:
		return 1
	}
	return 0
}
