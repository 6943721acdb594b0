package compile

import (
	"fmt"
	"regexp"

	"github.com/rowmap/rowmap/query"
)

// identifierRegex matches valid SQL identifiers.
// Identifiers must start with a letter or underscore, followed by letters, digits, or underscores.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateIdentifier checks that a name is a valid SQL identifier.
// Returns an error if the identifier is invalid.
// Valid identifiers match: ^[a-zA-Z_][a-zA-Z0-9_]*$
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must start with a letter or underscore and contain only letters, digits, and underscores", name)
	}
	return nil
}

// ValidateSpec validates basic spec invariants before compilation.
// This catches common errors early with clear messages rather than
// producing invalid SQL or panicking during compilation.
func ValidateSpec(spec *query.Spec) error {
	if spec == nil {
		return fmt.Errorf("spec cannot be nil")
	}

	if len(spec.Selects) == 0 {
		return fmt.Errorf("no fields selected")
	}
	if spec.Table == "" && len(spec.Joins) > 0 {
		return fmt.Errorf("joins require a root table")
	}

	for i, sel := range spec.Selects {
		if sel.Expr == nil {
			return fmt.Errorf("select %d: expression cannot be nil", i)
		}
		if _, star := sel.Expr.(query.StarExpr); !star {
			if err := ValidateIdentifier(sel.Name); err != nil {
				return fmt.Errorf("select %d: %w", i, err)
			}
		}
		if err := validateExpr(sel.Expr, fmt.Sprintf("select %q", sel.Name)); err != nil {
			return err
		}
	}

	for i, join := range spec.Joins {
		if join.Table == "" {
			return fmt.Errorf("join %d: table name cannot be empty", i)
		}
		if err := ValidateIdentifier(join.Alias); err != nil {
			return fmt.Errorf("join %d alias: %w", i, err)
		}
		if err := validateExpr(join.On, fmt.Sprintf("join %q condition", join.Alias)); err != nil {
			return err
		}
	}

	for i, f := range spec.Filters {
		if err := validateExpr(f, fmt.Sprintf("filter %d", i)); err != nil {
			return err
		}
	}
	for i, f := range spec.GroupFilters {
		if err := validateExpr(f, fmt.Sprintf("group filter %d", i)); err != nil {
			return err
		}
	}
	for i, g := range spec.Groups {
		if err := validateExpr(g, fmt.Sprintf("group %d", i)); err != nil {
			return err
		}
	}
	for i, s := range spec.Sorts {
		if s.Expr == nil {
			return fmt.Errorf("sort %d: expression cannot be nil", i)
		}
		if err := validateExpr(s.Expr, fmt.Sprintf("sort %d", i)); err != nil {
			return err
		}
	}

	for i, item := range spec.With {
		if err := ValidateIdentifier(item.Name); err != nil {
			return fmt.Errorf("with %d: %w", i, err)
		}
		if item.Spec == nil {
			return fmt.Errorf("with %q: spec cannot be nil", item.Name)
		}
		if err := ValidateSpec(item.Spec); err != nil {
			return fmt.Errorf("with %q: %w", item.Name, err)
		}
	}

	if ch := spec.Chained; ch != nil {
		if err := ValidateIdentifier(ch.IDColumn); err != nil {
			return fmt.Errorf("chain id column: %w", err)
		}
		if err := ValidateIdentifier(ch.NextColumn); err != nil {
			return fmt.Errorf("chain next column: %w", err)
		}
		if ch.StartSlot == "" {
			return fmt.Errorf("chain start slot cannot be empty")
		}
	}

	return nil
}

// validateExpr recursively validates an expression.
func validateExpr(expr query.Expr, context string) error {
	if expr == nil {
		return nil
	}

	switch e := expr.(type) {
	case query.ParamExpr:
		if e.Name == "" {
			return fmt.Errorf("%s: parameter name cannot be empty", context)
		}

	case query.FieldExpr:
		if e.Column == "" {
			return fmt.Errorf("%s: column name cannot be empty", context)
		}

	case query.SubqueryExpr:
		if e.Spec == nil {
			return fmt.Errorf("%s: subquery cannot be nil", context)
		}
		if err := ValidateSpec(e.Spec); err != nil {
			return fmt.Errorf("%s subquery: %w", context, err)
		}

	case query.BinaryExpr:
		if err := validateExpr(e.Left, context+" left"); err != nil {
			return err
		}
		if err := validateExpr(e.Right, context+" right"); err != nil {
			return err
		}

	case query.UnaryExpr:
		if err := validateExpr(e.Expr, context); err != nil {
			return err
		}

	case query.FuncExpr:
		for i, arg := range e.Args {
			if err := validateExpr(arg, fmt.Sprintf("%s arg %d", context, i)); err != nil {
				return err
			}
		}

	case query.ListExpr:
		for i, val := range e.Values {
			if err := validateExpr(val, fmt.Sprintf("%s list item %d", context, i)); err != nil {
				return err
			}
		}

	case query.AggregateExpr:
		if e.Arg != nil {
			if err := validateExpr(e.Arg, context+" aggregate arg"); err != nil {
				return err
			}
		}

	case query.CaseExpr:
		if len(e.Whens) == 0 {
			return fmt.Errorf("%s: CASE requires at least one WHEN branch", context)
		}
		for i, w := range e.Whens {
			if w.Cond == nil || w.Result == nil {
				return fmt.Errorf("%s: CASE branch %d is incomplete", context, i)
			}
			if err := validateExpr(w.Cond, fmt.Sprintf("%s when %d", context, i)); err != nil {
				return err
			}
			if err := validateExpr(w.Result, fmt.Sprintf("%s then %d", context, i)); err != nil {
				return err
			}
		}
		if err := validateExpr(e.Else, context+" else"); err != nil {
			return err
		}

	case query.IndexExpr:
		if err := validateExpr(e.Base, context+" base"); err != nil {
			return err
		}
		if err := validateExpr(e.Index, context+" index"); err != nil {
			return err
		}

	case query.JSONFieldExpr:
		if e.Key == "" {
			return fmt.Errorf("%s: document key cannot be empty", context)
		}
		if err := ValidateIdentifier(e.Key); err != nil {
			return fmt.Errorf("%s document key: %w", context, err)
		}
		if err := validateExpr(e.Doc, context+" document"); err != nil {
			return err
		}

	case query.CastExpr:
		if err := validateExpr(e.Expr, context+" cast operand"); err != nil {
			return err
		}
	}

	return nil
}
