package continuation

import (
	"time"

	"github.com/tidwall/sjson"

	"github.com/wesm/sessionctl/internal/sessionerr"
)

// injectContinueMetadata sets continue_metadata on a raw JSONL
// line without disturbing any other field or key order elsewhere
// in the object, the same sjson-based in-place patch the Derivation
// Engine uses for trim_metadata.
func injectContinueMetadata(line, parentID, parentFileAbs string) (string, error) {
	out, err := sjson.Set(line, "continue_metadata.parent_session_id", parentID)
	if err != nil {
		return "", sessionerr.Wrap(sessionerr.Malformed, "stamping continue_metadata", err)
	}
	out, err = sjson.Set(out, "continue_metadata.parent_session_file", parentFileAbs)
	if err != nil {
		return "", sessionerr.Wrap(sessionerr.Malformed, "stamping continue_metadata", err)
	}
	out, err = sjson.Set(out, "continue_metadata.continued_at", time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", sessionerr.Wrap(sessionerr.Malformed, "stamping continue_metadata", err)
	}
	return out, nil
}
