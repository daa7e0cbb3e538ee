package formatting

import (
	"encoding/json"
	"fmt"
)

// PrettyJSON formats v as JSON indented by two spaces, falling back to %v
// when v cannot be marshaled.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
