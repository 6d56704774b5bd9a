package relay

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FormatValue renders an extracted value for a spoken reply.
//
//   - not found or JSON null: ""
//   - strings: verbatim
//   - json.Number: its literal text, so 21.50 stays "21.50"
//   - float64: shortest representation ("21.5")
//   - bools: "true" or "false"
//   - objects and arrays: compact JSON
func FormatValue(v any, found bool) string {
	if !found || v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case int, int64, int32, uint, uint64, uint32:
		return fmt.Sprint(val)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
