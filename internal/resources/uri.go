// Package resources serves odoo:// URIs as MCP resources. Three templates
// are exposed: a single record, a filtered record list, and a binary field,
// all backed by the same dispatch pipeline the tools use.
package resources

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"odoomcp/internal/odoo"
)

// Kind of payload a resource URI addresses.
type Kind string

const (
	KindRecord Kind = "record"
	KindList   Kind = "list"
	KindBinary Kind = "binary"
)

var modelRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// Ref is a parsed odoo:// URI plus its query refinements.
type Ref struct {
	URI      string
	Kind     Kind
	Model    string
	RecordID int64
	Field    string // binary refs only

	// Query refinements. Fields applies to records and lists; the rest
	// apply to lists only.
	Fields []interface{}
	Domain string
	Limit  int
	Offset int
	Order  string
}

// Parse splits a resource URI into its template parameters. Unknown shapes
// come back as resource errors so read_resource answers -32011.
func Parse(uri string) (Ref, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Ref{}, odoo.NewResourceError("invalid resource URI %q: %v", uri, err)
	}
	if u.Scheme != "odoo" {
		return Ref{}, odoo.NewResourceError("unsupported resource scheme %q (want odoo://)", u.Scheme)
	}

	model := u.Host
	if !modelRe.MatchString(model) {
		return Ref{}, odoo.NewResourceError("invalid model %q in resource URI", model)
	}

	ref := Ref{URI: uri, Model: model}
	if err := ref.applyQuery(u.Query()); err != nil {
		return Ref{}, err
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(segments) == 1 && segments[0] == "list":
		ref.Kind = KindList
	case len(segments) == 1:
		id, err := parseRecordID(segments[0])
		if err != nil {
			return Ref{}, err
		}
		ref.Kind = KindRecord
		ref.RecordID = id
	case len(segments) == 3 && segments[0] == "binary":
		if !modelRe.MatchString(segments[1]) {
			return Ref{}, odoo.NewResourceError("invalid field %q in binary resource URI", segments[1])
		}
		id, err := parseRecordID(segments[2])
		if err != nil {
			return Ref{}, err
		}
		ref.Kind = KindBinary
		ref.Field = segments[1]
		ref.RecordID = id
	default:
		return Ref{}, odoo.NewResourceError(
			"unrecognized resource path %q (want {id}, list, or binary/{field}/{id})", u.Path)
	}
	return ref, nil
}

func parseRecordID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, odoo.NewResourceError("invalid record id %q in resource URI", s)
	}
	return id, nil
}

func (r *Ref) applyQuery(q url.Values) error {
	if raw := q.Get("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			f = strings.TrimSpace(f)
			if f != "" {
				r.Fields = append(r.Fields, f)
			}
		}
	}
	r.Domain = q.Get("domain")
	r.Order = q.Get("order")

	var err error
	if r.Limit, err = queryInt(q, "limit"); err != nil {
		return err
	}
	if r.Offset, err = queryInt(q, "offset"); err != nil {
		return err
	}
	return nil
}

func queryInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, odoo.NewResourceError("query parameter %s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

// String renders the canonical URI for a record, used when deriving the
// notification URIs touched by a write.
func RecordURI(model string, id int64) string {
	return fmt.Sprintf("odoo://%s/%d", model, id)
}

// ListURI renders the canonical list URI for a model.
func ListURI(model string) string {
	return fmt.Sprintf("odoo://%s/list", model)
}
