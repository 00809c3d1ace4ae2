package fffilter

import "strings"

// SplitCustomFilter splits an operator-supplied custom filter string into
// its video and audio components, stripping the `[c_v_out]`/`[c_a_out]`
// marker labels used to delimit them. Grounded on
// original_source/lib/src/filter/custom_filter.rs's custom_filter/strip_str.
//
// ok is false when filter is empty, "~" (the source engine's "no filter"
// placeholder), or malformed (contains neither marker).
func SplitCustomFilter(filter string) (videoFilter, audioFilter string, ok bool) {
	const vMarker, aMarker = "[c_v_out]", "[c_a_out]"

	hasV := strings.Contains(filter, vMarker)
	hasA := strings.Contains(filter, aMarker)

	switch {
	case hasV && hasA:
		vPos := strings.Index(filter, vMarker)
		aPos := strings.Index(filter, aMarker)
		delim := vMarker
		if vPos > aPos {
			delim = aMarker
		}
		parts := strings.SplitN(filter, delim, 2)
		if len(parts) != 2 {
			return "", "", false
		}
		f1, f2 := parts[0], parts[1]
		if strings.Contains(f2, aMarker) {
			return stripMarkers(f1), stripMarkers(f2), true
		}
		return stripMarkers(f2), stripMarkers(f1), true
	case hasV:
		return stripMarkers(filter), "", true
	case hasA:
		return "", stripMarkers(filter), true
	case filter == "" || filter == "~":
		return "", "", false
	default:
		// Malformed: neither marker present. The source engine logs and
		// skips; we do the same by reporting ok=false.
		return "", "", false
	}
}

func stripMarkers(s string) string {
	s = strings.TrimPrefix(s, ";")
	s = strings.TrimPrefix(s, "[0:v]")
	s = strings.TrimPrefix(s, "[0:a]")
	s = strings.TrimSuffix(s, ";")
	s = strings.TrimSuffix(s, "[c_v_out]")
	s = strings.TrimSuffix(s, "[c_a_out]")
	return s
}
