// Package pagination parses list query strings: page, limit, sort, filter, search and fields.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const (
	DefaultLimit    = 25
	DefaultMaxLimit = 200

	maxFilterValueLength = 512
	maxSearchLength      = 200
)

type Operator string

const (
	OperatorEqual         Operator = "=="
	OperatorGreaterThan   Operator = ">"
	OperatorLessThan      Operator = "<"
	OperatorGreaterEqual  Operator = ">="
	OperatorLessEqual     Operator = "<="
	OperatorArrayContains Operator = "array-contains"
)

// Longer tokens first so ">=" is not read as ">".
var operatorTokens = []Operator{
	OperatorArrayContains,
	OperatorEqual,
	OperatorGreaterEqual,
	OperatorLessEqual,
	OperatorGreaterThan,
	OperatorLessThan,
}

var fieldName = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

var (
	ErrInvalidPage    = errors.New("pagination: invalid page")
	ErrInvalidLimit   = errors.New("pagination: invalid limit")
	ErrInvalidOrderBy = errors.New("pagination: invalid sort")
	ErrInvalidFilter  = errors.New("pagination: invalid filter")
	ErrInvalidFields  = errors.New("pagination: invalid fields")
)

type Order struct {
	Field string
	Desc  bool
}

type Filter struct {
	Field string
	Op    Operator
	Value string
}

type Params struct {
	Page    int
	Limit   int
	Orders  []Order
	Filters []Filter
	Search  string
	Fields  []string
}

// Offset is the number of rows before the current page.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Options describe what a list endpoint accepts. A filter field mapped to no operators
// accepts every operator.
type Options struct {
	DefaultLimit        int
	MaxLimit            int
	AllowedOrderFields  []string
	AllowedFilterFields map[string][]Operator
	AllowedFields       []string
}

func (o Options) limits() (defLimit, maxLimit int) {
	maxLimit = o.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	defLimit = o.DefaultLimit
	if defLimit <= 0 {
		defLimit = DefaultLimit
	}
	return min(defLimit, maxLimit), maxLimit
}

func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

func Parse(values url.Values, opts Options) (Params, error) {
	var (
		p   Params
		err error
	)
	if p.Page, err = positiveInt(values.Get("page"), 1, ErrInvalidPage); err != nil {
		return Params{}, err
	}
	defLimit, maxLimit := opts.limits()
	if p.Limit, err = positiveInt(values.Get("limit"), defLimit, ErrInvalidLimit); err != nil {
		return Params{}, err
	}
	p.Limit = min(p.Limit, maxLimit)

	if p.Orders, err = parseOrders(values["sort"], opts.AllowedOrderFields); err != nil {
		return Params{}, err
	}
	if p.Filters, err = parseFilters(values["filter"], opts.AllowedFilterFields); err != nil {
		return Params{}, err
	}
	if p.Fields, err = parseFields(values["fields"], opts.AllowedFields); err != nil {
		return Params{}, err
	}
	p.Search = truncate(strings.Join(strings.Fields(values.Get("search")), " "), maxSearchLength)
	return p, nil
}

func positiveInt(raw string, fallback int, sentinel error) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%w: %q is not an integer", sentinel, raw)
	case n <= 0:
		return 0, fmt.Errorf("%w: must be greater than zero", sentinel)
	}
	return n, nil
}

// splitList flattens repeated and comma separated values, dropping blanks.
func splitList(values []string) []string {
	var out []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseOrders accepts "field", "field desc" and "field:desc".
func parseOrders(values []string, allowed []string) ([]Order, error) {
	parts := splitList(values)
	if len(parts) == 0 {
		return nil, nil
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("%w: ordering not supported", ErrInvalidOrderBy)
	}

	var orders []Order
	for _, part := range parts {
		if !strings.Contains(part, " ") {
			part = strings.Replace(part, ":", " ", 1)
		}
		segments := strings.Fields(part)
		if len(segments) > 2 {
			return nil, fmt.Errorf("%w: invalid sort format %q", ErrInvalidOrderBy, part)
		}
		field := segments[0]
		if !fieldName.MatchString(field) || !slices.Contains(allowed, field) {
			return nil, fmt.Errorf("%w: field %q is not allowed", ErrInvalidOrderBy, field)
		}
		order := Order{Field: field}
		if len(segments) == 2 {
			switch strings.ToLower(segments[1]) {
			case "asc":
			case "desc":
				order.Desc = true
			default:
				return nil, fmt.Errorf("%w: invalid direction %q", ErrInvalidOrderBy, segments[1])
			}
		}
		if !slices.Contains(orders, order) {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

// parseFilters reads "field op value" predicates. Filters are not comma split since values
// may contain commas.
func parseFilters(values []string, allowed map[string][]Operator) ([]Filter, error) {
	var filters []Filter
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if len(allowed) == 0 {
			return nil, fmt.Errorf("%w: filtering not supported", ErrInvalidFilter)
		}
		f, err := parseFilter(raw)
		if err != nil {
			return nil, err
		}
		ops, ok := allowed[f.Field]
		if !ok {
			return nil, fmt.Errorf("%w: field %q is not allowed", ErrInvalidFilter, f.Field)
		}
		if len(ops) > 0 && !slices.Contains(ops, f.Op) {
			return nil, fmt.Errorf("%w: operator %q is not allowed for field %q", ErrInvalidFilter, f.Op, f.Field)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// parseFilter splits on the leftmost operator so values may themselves contain one.
func parseFilter(raw string) (Filter, error) {
	at, op := -1, Operator("")
	for _, candidate := range operatorTokens {
		if idx := strings.Index(raw, string(candidate)); idx > 0 && (at < 0 || idx < at) {
			at, op = idx, candidate
		}
	}
	if at < 0 {
		return Filter{}, fmt.Errorf("%w: missing operator in %q", ErrInvalidFilter, raw)
	}
	field := strings.TrimSpace(raw[:at])
	if !fieldName.MatchString(field) {
		return Filter{}, fmt.Errorf("%w: invalid field %q", ErrInvalidFilter, field)
	}
	value := cleanFilterValue(raw[at+len(op):])
	if value == "" {
		return Filter{}, fmt.Errorf("%w: empty value for field %q", ErrInvalidFilter, field)
	}
	return Filter{Field: field, Op: op, Value: value}, nil
}

func cleanFilterValue(value string) string {
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	value = strings.TrimSpace(strings.Trim(strings.TrimSpace(value), `"'`))
	return truncate(value, maxFilterValueLength)
}

func parseFields(values []string, allowed []string) ([]string, error) {
	var fields []string
	for _, field := range splitList(values) {
		if !fieldName.MatchString(field) {
			return nil, fmt.Errorf("%w: invalid field %q", ErrInvalidFields, field)
		}
		if len(allowed) > 0 && !slices.Contains(allowed, field) {
			return nil, fmt.Errorf("%w: field %q is not allowed", ErrInvalidFields, field)
		}
		if !slices.Contains(fields, field) {
			fields = append(fields, field)
		}
	}
	return fields, nil
}

func truncate(s string, limit int) string {
	if runes := []rune(s); len(runes) > limit {
		return string(runes[:limit])
	}
	return s
}
