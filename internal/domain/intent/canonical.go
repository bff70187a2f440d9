package intent

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CanonicalizeMap flattens a nested map into a deterministic string
// form: keys sorted lexicographically, nested keys joined with dots,
// list elements addressed as [i], nil values skipped, leaves rendered
// as "path=value" and joined with "; ". Two semantically equal maps
// always canonicalise to the same string regardless of construction
// order, which keeps embedding-cache keys and persisted params stable.
func CanonicalizeMap(m map[string]any) string {
	var leaves []string
	flatten("", m, &leaves)
	return strings.Join(leaves, "; ")
}

func flatten(prefix string, v any, out *[]string) {
	switch val := v.(type) {
	case nil:
		return
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			flatten(path, val[k], out)
		}
	case []any:
		for i, elem := range val {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), elem, out)
		}
	default:
		*out = append(*out, prefix+"="+formatLeaf(val))
	}
}

func formatLeaf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		// JSON decodes all numbers as float64. Integral values render
		// without a trailing ".0" so 3 and 3.0 canonicalise identically.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}
