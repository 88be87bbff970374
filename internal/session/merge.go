package session

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
)

// mergeSet prepares set for an update of existing. A key whose old and new
// values are both objects receives an RFC 7386 merge of the two, so nested
// fields the caller did not mention survive; every other key is taken from
// set as is.
func mergeSet(existing, set map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(set))
	for key, value := range set {
		patch, newIsObject := value.(map[string]any)
		current, oldIsObject := existing[key].(map[string]any)
		if !newIsObject || !oldIsObject {
			out[key] = value
			continue
		}
		merged, err := mergeObjects(current, patch)
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", key, err)
		}
		out[key] = merged
	}
	return out, nil
}

func mergeObjects(current, patch map[string]any) (map[string]any, error) {
	doc, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	delta, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	mergedJSON, err := jsonpatch.MergePatch(doc, delta)
	if err != nil {
		return nil, err
	}
	var merged map[string]any
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return merged, nil
}
