package parser

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RewriteIdentity rewrites every embedded session-identifier field
// in raw (one JSONL line) to newID, satisfying Invariant I2. It is
// a no-op (returns raw unchanged) for lines that carry no such
// field.
func RewriteIdentity(agent AgentType, raw string, newID string) (string, error) {
	switch agent {
	case AgentCodex:
		return rewriteCodexIdentity(raw, newID)
	default:
		return rewriteClaudeIdentity(raw, newID)
	}
}

func rewriteClaudeIdentity(raw, newID string) (string, error) {
	if !gjson.Get(raw, "sessionId").Exists() {
		return raw, nil
	}
	out, err := sjson.Set(raw, "sessionId", newID)
	if err != nil {
		return raw, fmt.Errorf("rewriting sessionId: %w", err)
	}
	return out, nil
}

func rewriteCodexIdentity(raw, newID string) (string, error) {
	v := gjson.Parse(raw)
	if v.Get("type").Str != "session_meta" {
		return raw, nil
	}
	out, err := sjson.Set(raw, "payload.id", newID)
	if err != nil {
		return raw, fmt.Errorf("rewriting session_meta.id: %w", err)
	}
	return out, nil
}

// BuildUUIDMap scans a Claude-dialect session's lines and assigns a
// fresh UUID to every distinct `uuid` value found, so a derivation
// can remap the DAG's node identifiers while preserving its
// parentUuid tree shape (§4.3's identity-rewrite contract). Returns
// nil for the Codex dialect, which carries no per-entry uuid DAG.
func BuildUUIDMap(agent AgentType, lines []string) map[string]string {
	if agent != AgentClaude {
		return nil
	}
	m := make(map[string]string)
	for _, line := range lines {
		uuid := gjson.Get(line, "uuid").Str
		if uuid == "" {
			continue
		}
		if _, ok := m[uuid]; !ok {
			m[uuid] = NewUUID()
		}
	}
	return m
}

// RemapUUIDs rewrites raw's own `uuid` and `parentUuid` fields
// through uuidMap, so a derived file's DAG nodes get fresh
// identifiers while every parentUuid still points at its (also
// remapped) parent. A no-op when uuidMap is nil or raw carries
// neither field.
func RemapUUIDs(raw string, uuidMap map[string]string) (string, error) {
	if uuidMap == nil {
		return raw, nil
	}
	out := raw
	if uuid := gjson.Get(out, "uuid").Str; uuid != "" {
		if newUUID, ok := uuidMap[uuid]; ok {
			var err error
			out, err = sjson.Set(out, "uuid", newUUID)
			if err != nil {
				return raw, fmt.Errorf("remapping uuid: %w", err)
			}
		}
	}
	if parentUUID := gjson.Get(out, "parentUuid").Str; parentUUID != "" {
		if newParent, ok := uuidMap[parentUUID]; ok {
			var err error
			out, err = sjson.Set(out, "parentUuid", newParent)
			if err != nil {
				return raw, fmt.Errorf("remapping parentUuid: %w", err)
			}
		}
	}
	return out, nil
}

// EmbeddedSessionID returns the session-identifier field embedded
// in raw, or "" if the line carries none. Used by the repair
// utility to detect Invariant-I2 violations.
func EmbeddedSessionID(agent AgentType, raw string) string {
	switch agent {
	case AgentCodex:
		v := gjson.Parse(raw)
		if v.Get("type").Str == "session_meta" {
			return v.Get("payload.id").Str
		}
		return ""
	default:
		return gjson.Get(raw, "sessionId").Str
	}
}
