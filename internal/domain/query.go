package domain

// QueryType selects how Query.Run renders an Entry.
type QueryType int

const (
	QueryUnknown QueryType = iota
	QueryIdentity
	QueryIdentityText
	QueryIdentityJSON
	QueryJSONPath
)

func (t QueryType) String() string {
	switch t {
	case QueryIdentity:
		return "IDENTITY"
	case QueryIdentityText:
		return "IDENTITY_TEXT"
	case QueryIdentityJSON:
		return "IDENTITY_JSON"
	case QueryJSONPath:
		return "JSON_PATH"
	default:
		return "UNKNOWN"
	}
}

// Query describes a read projection of a single entry at some revision.
// JSON_PATH queries carry one or more JSONPath expressions, applied
// left-to-right, each over the previous result.
type Query struct {
	Path        string
	Type        QueryType
	Expressions []string
}

// CacheKeyString renders the query deterministically for use as part of a
// cache key; equal queries always render identically.
func (q Query) CacheKeyString() string {
	s := q.Type.String() + ":" + q.Path
	for _, e := range q.Expressions {
		s += "|" + e
	}
	return s
}

// Identity builds an IDENTITY query over path.
func Identity(path string) Query { return Query{Path: path, Type: QueryIdentity} }

// IdentityText builds an IDENTITY_TEXT query over path.
func IdentityText(path string) Query { return Query{Path: path, Type: QueryIdentityText} }

// IdentityJSON builds an IDENTITY_JSON query over path.
func IdentityJSON(path string) Query { return Query{Path: path, Type: QueryIdentityJSON} }

// JSONPath builds a JSON_PATH query applying expressions in order.
func JSONPath(path string, expressions ...string) Query {
	return Query{Path: path, Type: QueryJSONPath, Expressions: expressions}
}
