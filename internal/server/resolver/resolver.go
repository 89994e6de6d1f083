// Package resolver implements the conflict policies applied when an incoming
// UPDATE's basis is older than the record's current server state.
package resolver

import (
	"encoding/json"
	"fmt"
)

// Policy names accepted in server configuration.
const (
	PolicyServerWins = "server-wins"
	PolicyFieldMerge = "field-merge"
)

// Decision is the outcome of resolving one stale UPDATE. When Changed is
// false the record is left untouched and the operation is acknowledged as
// processed anyway; the client refreshes its projection from the change feed.
type Decision struct {
	Merged     json.RawMessage
	Overridden []string
	Changed    bool
}

// Policy resolves a stale patch against the current server value.
// serverChanged lists the top-level fields the server has modified since the
// client's basis.
type Policy interface {
	Name() string
	Resolve(current, patch json.RawMessage, serverChanged []string) (Decision, error)
}

// ForName returns the policy for a configuration value.
func ForName(name string) (Policy, error) {
	switch name {
	case "", PolicyServerWins:
		return ServerWins{}, nil
	case PolicyFieldMerge:
		return FieldMerge{}, nil
	default:
		return nil, fmt.Errorf("unknown conflict policy: %s", name)
	}
}

// ServerWins discards the entire stale patch: the server's stored value is
// kept for every field. The default policy.
type ServerWins struct{}

func (ServerWins) Name() string { return PolicyServerWins }

func (ServerWins) Resolve(current, patch json.RawMessage, serverChanged []string) (Decision, error) {
	fields, err := topLevelFields(patch)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Overridden: fields}, nil
}

// FieldMerge applies the patch fields the server has not touched since the
// client's basis; overlapping fields fall back to server-wins. Two stale
// updates touching disjoint fields therefore both survive.
type FieldMerge struct{}

func (FieldMerge) Name() string { return PolicyFieldMerge }

func (FieldMerge) Resolve(current, patch json.RawMessage, serverChanged []string) (Decision, error) {
	var currentMap, patchMap map[string]json.RawMessage
	if err := json.Unmarshal(current, &currentMap); err != nil {
		return Decision{}, fmt.Errorf("failed to unmarshal current record: %w", err)
	}
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return Decision{}, fmt.Errorf("failed to unmarshal patch: %w", err)
	}

	changed := make(map[string]bool, len(serverChanged))
	for _, field := range serverChanged {
		changed[field] = true
	}

	decision := Decision{}
	for field, value := range patchMap {
		if changed[field] {
			// Сервер уже переписал это поле после базиса клиента
			decision.Overridden = append(decision.Overridden, field)
			continue
		}
		currentMap[field] = value
		decision.Changed = true
	}

	if decision.Changed {
		merged, err := json.Marshal(currentMap)
		if err != nil {
			return Decision{}, err
		}
		decision.Merged = merged
	}

	return decision, nil
}

// topLevelFields возвращает ключи верхнего уровня JSON объекта
func topLevelFields(raw json.RawMessage) ([]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patch: %w", err)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	return names, nil
}

// ChangedFields diffs two record snapshots and returns the top-level fields
// whose values differ, including fields present in only one snapshot.
func ChangedFields(before, after json.RawMessage) ([]string, error) {
	var beforeMap, afterMap map[string]json.RawMessage

	if len(before) > 0 {
		if err := json.Unmarshal(before, &beforeMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal before snapshot: %w", err)
		}
	}
	if len(after) > 0 {
		if err := json.Unmarshal(after, &afterMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal after snapshot: %w", err)
		}
	}

	var fields []string
	for name, afterValue := range afterMap {
		beforeValue, ok := beforeMap[name]
		if !ok || string(beforeValue) != string(afterValue) {
			fields = append(fields, name)
		}
	}
	for name := range beforeMap {
		if _, ok := afterMap[name]; !ok {
			fields = append(fields, name)
		}
	}

	return fields, nil
}
