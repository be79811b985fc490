package analysis

import "encoding/json"

// parseVerdictArray parses the JSON array raw into verdicts,
// accepting both the bare-integer shape ([12, 47]) and the verbose
// tuple shape ([[line, rationale, description], ...]). Entries that
// match neither shape are dropped silently, per §4.5.
func parseVerdictArray(raw string) ChunkVerdicts {
	var generic []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil
	}

	var verdicts ChunkVerdicts
	for _, entry := range generic {
		if v, ok := parseIntVerdict(entry); ok {
			verdicts = append(verdicts, v)
			continue
		}
		if v, ok := parseTupleVerdict(entry); ok {
			verdicts = append(verdicts, v)
		}
	}
	return verdicts
}

func parseIntVerdict(raw json.RawMessage) (Verdict, bool) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return Verdict{}, false
	}
	return Verdict{LineIndex: n}, true
}

func parseTupleVerdict(raw json.RawMessage) (Verdict, bool) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(raw, &tuple); err != nil || len(tuple) == 0 {
		return Verdict{}, false
	}
	var n int
	if err := json.Unmarshal(tuple[0], &n); err != nil {
		return Verdict{}, false
	}
	v := Verdict{LineIndex: n}
	if len(tuple) > 1 {
		var rationale string
		if err := json.Unmarshal(tuple[1], &rationale); err == nil {
			v.Rationale = rationale
		}
	}
	if len(tuple) > 2 {
		var desc string
		if err := json.Unmarshal(tuple[2], &desc); err == nil {
			v.Description = desc
		}
	}
	return v, true
}
