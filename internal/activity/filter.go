package activity

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// celFilter wraps a compiled CEL program shared by live subscriptions and
// historical search. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("type", cel.StringType),
		cel.Variable("entity_id", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON payload (map/list/values) for field filtering
		cel.Variable("json", cel.DynType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against an event. When disabled,
// returns true. Evaluation errors fail closed.
func (f celFilter) Eval(rec EventRecord) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(rec.Payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"id":        int64(rec.ID),
		"type":      rec.Type,
		"entity_id": rec.EntityID,
		"user_id":   rec.UserID,
		"ts_ms":     rec.CreatedAtMs,
		"size":      int64(len(rec.Payload)),
		"text":      string(rec.Payload),
		"json":      jsonObj,
		"now_ms":    time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// matchTypePattern matches an event type against a dot-separated pattern.
// "*" matches exactly one segment, a trailing ">" matches one or more
// remaining segments. "contact.*" matches "contact.created";
// ">" matches everything.
func matchTypePattern(pattern, eventType string) bool {
	if pattern == "" || pattern == eventType {
		return pattern == eventType
	}
	ps := strings.Split(pattern, ".")
	ts := strings.Split(eventType, ".")
	for i, p := range ps {
		if p == ">" {
			return i == len(ps)-1 && len(ts) > i
		}
		if i >= len(ts) {
			return false
		}
		if p != "*" && p != ts[i] {
			return false
		}
	}
	return len(ps) == len(ts)
}

// Filter combines type patterns with an optional CEL expression. A nil
// Filter matches everything.
type Filter struct {
	types []string
	cel   celFilter
}

// NewFilter compiles a filter. Empty inputs yield a nil filter.
func NewFilter(types []string, expr string) (*Filter, error) {
	patterns := make([]string, 0, len(types))
	for _, p := range types {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	cf, err := newCELFilter(expr)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 && !cf.enabled {
		return nil, nil
	}
	return &Filter{types: patterns, cel: cf}, nil
}

// Match reports whether the event passes both the type patterns and the
// CEL expression.
func (f *Filter) Match(rec EventRecord) bool {
	if f == nil {
		return true
	}
	if len(f.types) > 0 {
		ok := false
		for _, p := range f.types {
			if matchTypePattern(p, rec.Type) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return f.cel.Eval(rec)
}
