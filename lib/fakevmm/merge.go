package fakevmm

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

var emptyObject = json.RawMessage(`{}`)

// mergeObjects applies patch to base as a JSON merge patch. An empty base or
// patch is treated as an empty object.
func mergeObjects(base, patch json.RawMessage) (json.RawMessage, error) {
	if len(base) == 0 {
		base = emptyObject
	}
	if len(patch) == 0 {
		patch = emptyObject
	}
	return jsonpatch.MergePatch(base, patch)
}
