package registry

import "strings"

// ValidatePatternSyntax checks that a single pattern is representable in the
// given sparse-checkout mode. It is a pure function; the gateway still lets
// git itself reject anything that slips past these shape checks.
//
// Cone mode accepts whole-directory paths ("docs/", "src/parser/") and bare
// directory names ("docs"); it rejects anchors and glob metacharacters
// because git's cone matcher does not evaluate them. No-cone mode accepts
// gitignore-style patterns, including a leading "/" for exact paths and "*"
// globs.
func ValidatePatternSyntax(mode Mode, pattern string) error {
	trimmed := strings.TrimSpace(pattern)
	if trimmed == "" {
		return &PatternSyntaxError{Pattern: pattern, Mode: mode, Reason: "pattern must not be blank"}
	}
	if trimmed != pattern {
		return &PatternSyntaxError{Pattern: pattern, Mode: mode, Reason: "pattern must not carry leading or trailing whitespace"}
	}
	if strings.HasPrefix(pattern, "#") {
		return &PatternSyntaxError{Pattern: pattern, Mode: mode, Reason: "pattern must not start with '#' (git treats it as a comment)"}
	}

	switch mode {
	case ModeNoCone:
		return nil
	case ModeCone:
		if strings.HasPrefix(pattern, "/") {
			return &PatternSyntaxError{Pattern: pattern, Mode: mode, Reason: "cone mode patterns are directory paths, not anchored file patterns"}
		}
		if strings.HasPrefix(pattern, "!") {
			return &PatternSyntaxError{Pattern: pattern, Mode: mode, Reason: "cone mode does not support negation"}
		}
		if strings.ContainsAny(pattern, "*?[]") {
			return &PatternSyntaxError{Pattern: pattern, Mode: mode, Reason: "cone mode does not support glob metacharacters"}
		}
		if strings.Contains(pattern, "//") {
			return &PatternSyntaxError{Pattern: pattern, Mode: mode, Reason: "pattern contains an empty path segment"}
		}
		return nil
	default:
		return &PatternSyntaxError{Pattern: pattern, Mode: mode, Reason: "unknown mode"}
	}
}

// NormalizePatterns returns the desired path set in the shape handed to git:
// order preserved, exact duplicates dropped.
func NormalizePatterns(patterns []string) []string {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// PatternSetsEqual compares two pattern lists as sets; sparse-checkout files
// are order-sensitive for git but a reordering alone does not change which
// paths are materialized.
func PatternSetsEqual(a, b []string) bool {
	if len(NormalizePatterns(a)) != len(NormalizePatterns(b)) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	for _, p := range b {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}
