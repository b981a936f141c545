// Package domain validates and compiles the gateway's filter DSL into Odoo
// prefix-notation domains.
//
// Three input forms are accepted: a raw prefix array of condition triples
// and "&"/"|"/"!" tokens, an object form built from {"and":…}, {"or":…} and
// {"not":…} nodes, and a JSON string encoding either. Degenerate inputs
// (null, booleans, empty strings) coerce to the empty domain with a recorded
// warning so that a sloppy client filter widens a search instead of faulting
// it. Compilation is idempotent: feeding a compiled domain back in returns
// it unchanged.
package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"odoomcp/internal/odoo"
)

// allowedOperators are the comparison operators a condition triple may use.
var allowedOperators = map[string]struct{}{
	"=": {}, "!=": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
	"like": {}, "ilike": {}, "not like": {}, "not ilike": {},
	"=like": {}, "=ilike": {},
	"in": {}, "not in": {},
	"child_of": {}, "parent_of": {},
}

var fieldNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// maxDepth caps nesting of the object form.
const maxDepth = 10

// Prefix-notation logical tokens.
const (
	opAnd = "&"
	opOr  = "|"
	opNot = "!"
)

// Result carries a compiled domain plus any warnings recorded while
// coercing degenerate input.
type Result struct {
	Domain   []interface{}
	Warnings []string
}

// Compiler turns DSL input into canonical Odoo domains.
type Compiler struct {
	// maxValueBytes caps the JSON size of a single condition value.
	// Zero or negative disables the cap.
	maxValueBytes int
}

// NewCompiler creates a compiler with the given per-value size cap.
func NewCompiler(maxValueBytes int) *Compiler {
	return &Compiler{maxValueBytes: maxValueBytes}
}

// Compile validates input and returns the canonical prefix-notation domain
// with placeholders resolved. All offending nodes are collected into a
// single domain-validation error rather than failing on the first.
func (c *Compiler) Compile(input interface{}, res Resolver) (Result, error) {
	run := &compileRun{compiler: c, resolver: res}
	dom := run.compile(input)
	if len(run.errors) > 0 {
		return Result{}, odoo.NewValidationError(odoo.ValidationDomain,
			"invalid domain: %s", strings.Join(run.errors, "; ")).
			WithDetail("errors", run.errors)
	}
	if dom == nil {
		dom = []interface{}{}
	}
	return Result{Domain: dom, Warnings: run.warnings}, nil
}

// And conjoins two compiled domains in prefix notation. Either side may be
// empty, in which case the other passes through unchanged.
func And(a, b []interface{}) []interface{} {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]interface{}, 0, len(a)+len(b)+1)
	out = append(out, opAnd)
	out = append(out, a...)
	out = append(out, b...)
	return out
}

type compileRun struct {
	compiler *Compiler
	resolver Resolver
	errors   []string
	warnings []string
}

func (r *compileRun) warnf(format string, args ...interface{}) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *compileRun) errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *compileRun) compile(input interface{}) []interface{} {
	switch v := input.(type) {
	case nil:
		r.warnf("null domain coerced to []")
		return []interface{}{}
	case bool:
		r.warnf("boolean domain %v coerced to []", v)
		return []interface{}{}
	case string:
		return r.compileString(v)
	case []interface{}:
		if len(v) == 0 {
			r.warnf("empty domain")
			return []interface{}{}
		}
		return r.compileRaw(v)
	case map[string]interface{}:
		return r.compileObject(v, 0)
	default:
		r.errorf("domain must be an array, object, or JSON string, got %T", input)
		return nil
	}
}

func (r *compileRun) compileString(s string) []interface{} {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		r.warnf("empty domain string coerced to []")
		return []interface{}{}
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		r.errorf("domain string is not valid JSON: %v", err)
		return nil
	}
	// A doubly-encoded string unwraps one level per pass and shrinks, so
	// this terminates.
	return r.compile(parsed)
}

// compileRaw validates a domain that is already in prefix form. Triples are
// resolved in place; the logical tokens pass through, which is what makes
// compilation idempotent.
func (r *compileRun) compileRaw(items []interface{}) []interface{} {
	out := make([]interface{}, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			if v == opAnd || v == opOr || v == opNot {
				out = append(out, v)
				continue
			}
			r.errorf("node %d: bare string %q is not a logical operator", i, v)
		case []interface{}:
			if triple, ok := r.compileTriple(v, fmt.Sprintf("node %d", i)); ok {
				out = append(out, triple)
			}
		default:
			r.errorf("node %d: expected condition triple or logical operator, got %T", i, item)
		}
	}
	return out
}

func (r *compileRun) compileObject(node map[string]interface{}, depth int) []interface{} {
	if depth > maxDepth {
		r.errorf("domain nesting exceeds %d levels", maxDepth)
		return nil
	}
	if len(node) != 1 {
		r.errorf("logical node must have exactly one of and/or/not, got %d keys", len(node))
		return nil
	}

	var op string
	var child interface{}
	for k, v := range node {
		op, child = k, v
	}

	switch op {
	case "and", "or":
		items, isList := child.([]interface{})
		if !isList {
			r.errorf("%q expects a list of conditions", op)
			return nil
		}
		var segments [][]interface{}
		for _, item := range items {
			if seg := r.compileChild(item, depth+1); len(seg) > 0 {
				segments = append(segments, seg)
			}
		}
		return joinPrefix(op, segments)
	case "not":
		seg := r.compileChild(child, depth+1)
		if len(seg) == 0 {
			return nil
		}
		return append([]interface{}{opNot}, seg...)
	default:
		r.errorf("unknown logical operator %q (want and/or/not)", op)
		return nil
	}
}

func (r *compileRun) compileChild(item interface{}, depth int) []interface{} {
	switch v := item.(type) {
	case map[string]interface{}:
		return r.compileObject(v, depth)
	case []interface{}:
		if triple, ok := r.compileTriple(v, "condition"); ok {
			return []interface{}{triple}
		}
		return nil
	default:
		r.errorf("logical children must be condition triples or nested objects, got %T", item)
		return nil
	}
}

func (r *compileRun) compileTriple(node []interface{}, where string) ([]interface{}, bool) {
	if len(node) != 3 {
		r.errorf("%s: condition must be [field, operator, value], got %d elements", where, len(node))
		return nil, false
	}

	ok := true
	field, isStr := node[0].(string)
	if !isStr || !fieldNameRe.MatchString(field) {
		r.errorf("%s: invalid field name %v", where, node[0])
		ok = false
	}
	op, isStr := node[1].(string)
	if !isStr {
		r.errorf("%s: operator must be a string, got %T", where, node[1])
		ok = false
	} else if _, known := allowedOperators[op]; !known {
		r.errorf("%s: unknown operator %q", where, op)
		ok = false
	}

	value := r.resolver.Resolve(node[2])
	if !r.valueWithinLimit(value) {
		r.errorf("%s: value for %v exceeds the %d byte limit", where, node[0], r.compiler.maxValueBytes)
		ok = false
	}

	if !ok {
		return nil, false
	}
	return []interface{}{field, op, value}, true
}

func (r *compileRun) valueWithinLimit(value interface{}) bool {
	if r.compiler.maxValueBytes <= 0 {
		return true
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return len(encoded) <= r.compiler.maxValueBytes
}

// joinPrefix combines segments under one logical operator: n segments need
// n-1 operator tokens up front.
func joinPrefix(op string, segments [][]interface{}) []interface{} {
	tok := opAnd
	if op == "or" {
		tok = opOr
	}
	out := []interface{}{}
	for i := 1; i < len(segments); i++ {
		out = append(out, tok)
	}
	for _, seg := range segments {
		out = append(out, seg...)
	}
	return out
}
