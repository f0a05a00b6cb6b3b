package domain

import (
	"fmt"
	"strings"
)

// ConfigError reports a malformed variables table. It is fatal and raised
// before any network activity.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

// TransportError reports a failed remote acquisition for one dataset:
// network failure, a non-2xx status, or an undecodable response body.
type TransportError struct {
	Dataset string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dataset %q: transport: %v", e.Dataset, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FormatError reports a response that decoded but is not a header row
// followed by data rows of matching width.
type FormatError struct {
	Dataset string
	Reason  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("dataset %q: malformed response: %s", e.Dataset, e.Reason)
}

// IncompleteDataError reports requested fields absent from a live or cached
// table. A partially fulfilled request is a failure, not a partial success.
type IncompleteDataError struct {
	Dataset string
	Missing []string
}

func (e *IncompleteDataError) Error() string {
	return fmt.Sprintf("dataset %q: missing %d requested fields: %s",
		e.Dataset, len(e.Missing), strings.Join(e.Missing, ", "))
}

// JoinError reports duplicate geography key tuples discovered while merging.
// A left join over duplicated keys would silently fan out rows, so this is
// always fatal.
type JoinError struct {
	Dataset string
	Key     string
}

func (e *JoinError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("merge: duplicate geography key %q", e.Key)
	}
	return fmt.Sprintf("dataset %q: duplicate geography key %q", e.Dataset, e.Key)
}

// CyclicDefinitionError reports a dependency cycle among alias definitions.
type CyclicDefinitionError struct {
	Aliases []string
}

func (e *CyclicDefinitionError) Error() string {
	return fmt.Sprintf("cyclic alias definitions: %s", strings.Join(e.Aliases, ", "))
}
