package registry

import "fmt"

// InvalidDeclarationError reports a declaration that failed validation before
// any git state was touched.
type InvalidDeclarationError struct {
	Skill  string
	Field  string
	Reason string
}

func (e *InvalidDeclarationError) Error() string {
	if e.Skill == "" {
		return fmt.Sprintf("invalid declaration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid declaration for skill %q: %s: %s", e.Skill, e.Field, e.Reason)
}

// PatternSyntaxError names a pattern that is not legal in the declared
// sparse-checkout mode, and why.
type PatternSyntaxError struct {
	Pattern string
	Mode    Mode
	Reason  string
}

func (e *PatternSyntaxError) Error() string {
	return fmt.Sprintf("pattern %q is not valid in %s mode: %s", e.Pattern, e.Mode, e.Reason)
}
