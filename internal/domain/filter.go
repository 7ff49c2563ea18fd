package domain

import (
	"encoding/json"
	"fmt"
)

// FilterExpr is an access-filter expression: either a leaf condition
// (field equals value, field in set) or a disjunction of sub-expressions.
// It is the only structure passed between the access service and the
// filtered retriever, and it round-trips through the same JSON form
// whether pushed into a store query or evaluated in-process.
//
// A nil FilterExpr matches nothing. Absence of access information is
// always a deny.
type FilterExpr interface {
	// Matches evaluates the expression against a candidate's metadata.
	// A missing metadata field is a non-match, never an error.
	Matches(meta ChunkMetadata) bool

	filterExpr()
}

// FilterEquals matches records whose metadata field equals the value.
type FilterEquals struct {
	Field string
	Value string
}

// FilterIn matches records whose metadata field is a member of Values.
type FilterIn struct {
	Field  string
	Values []string
}

// FilterOr matches when any sub-expression matches.
type FilterOr struct {
	Exprs []FilterExpr
}

func (f FilterEquals) filterExpr() {}
func (f FilterIn) filterExpr()     {}
func (f FilterOr) filterExpr()     {}

func (f FilterEquals) Matches(meta ChunkMetadata) bool {
	v, ok := meta.Field(f.Field)
	return ok && v == f.Value
}

func (f FilterIn) Matches(meta ChunkMetadata) bool {
	v, ok := meta.Field(f.Field)
	if !ok {
		return false
	}
	for _, candidate := range f.Values {
		if v == candidate {
			return true
		}
	}
	return false
}

func (f FilterOr) Matches(meta ChunkMetadata) bool {
	for _, expr := range f.Exprs {
		if expr.Matches(meta) {
			return true
		}
	}
	return false
}

// IsEmptyFilter reports whether the expression matches nothing at all.
// The filtered retriever short-circuits to an empty result set for
// empty filters instead of calling the base retriever.
func IsEmptyFilter(f FilterExpr) bool {
	if f == nil {
		return true
	}
	or, ok := f.(FilterOr)
	return ok && len(or.Exprs) == 0
}

const (
	filterOpOr = "$or"
	filterOpIn = "$in"
)

// MarshalFilter encodes an expression into its wire form:
//
//	{"field": "value"}
//	{"field": {"$in": ["v1", "v2"]}}
//	{"$or": [expr, expr, ...]}
//
// A nil expression encodes as {} (matches nothing).
func MarshalFilter(f FilterExpr) ([]byte, error) {
	return json.Marshal(filterToValue(f))
}

func filterToValue(f FilterExpr) map[string]interface{} {
	switch expr := f.(type) {
	case nil:
		return map[string]interface{}{}
	case FilterEquals:
		return map[string]interface{}{expr.Field: expr.Value}
	case FilterIn:
		values := expr.Values
		if values == nil {
			values = []string{}
		}
		return map[string]interface{}{expr.Field: map[string]interface{}{filterOpIn: values}}
	case FilterOr:
		subs := make([]interface{}, 0, len(expr.Exprs))
		for _, sub := range expr.Exprs {
			subs = append(subs, filterToValue(sub))
		}
		return map[string]interface{}{filterOpOr: subs}
	default:
		return map[string]interface{}{}
	}
}

// ParseFilter decodes the wire form produced by MarshalFilter. An empty
// object decodes to nil (matches nothing).
func ParseFilter(raw []byte) (FilterExpr, error) {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, filterError(fmt.Sprintf("malformed JSON: %v", err))
	}
	return filterFromValue(value)
}

func filterFromValue(value interface{}) (FilterExpr, error) {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil, filterError("filter must be a JSON object")
	}
	if len(obj) == 0 {
		return nil, nil
	}
	if len(obj) > 1 {
		return nil, filterError("filter objects must contain exactly one field")
	}

	for field, fieldValue := range obj {
		if field == filterOpOr {
			subs, ok := fieldValue.([]interface{})
			if !ok {
				return nil, filterError("$or requires an array of expressions")
			}
			exprs := make([]FilterExpr, 0, len(subs))
			for _, sub := range subs {
				expr, err := filterFromValue(sub)
				if err != nil {
					return nil, err
				}
				if expr != nil {
					exprs = append(exprs, expr)
				}
			}
			return FilterOr{Exprs: exprs}, nil
		}

		switch v := fieldValue.(type) {
		case string:
			return FilterEquals{Field: field, Value: v}, nil
		case map[string]interface{}:
			inValue, ok := v[filterOpIn]
			if !ok || len(v) != 1 {
				return nil, filterError(fmt.Sprintf("unsupported operator on field %q", field))
			}
			values, ok := inValue.([]interface{})
			if !ok {
				return nil, filterError("$in requires an array of values")
			}
			set := make([]string, 0, len(values))
			for _, member := range values {
				s, ok := member.(string)
				if !ok {
					return nil, filterError("$in values must be strings")
				}
				set = append(set, s)
			}
			return FilterIn{Field: field, Values: set}, nil
		default:
			return nil, filterError(fmt.Sprintf("unsupported value for field %q", field))
		}
	}

	return nil, nil
}

// filterError wraps ErrInvalidFilter so callers can detect any filter
// parse failure with errors.Is while keeping the specific detail.
func filterError(message string) *DomainError {
	return NewDomainErrorWithCause(ErrCodeValidation, message, ErrInvalidFilter)
}
