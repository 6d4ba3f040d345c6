package router

// Doc carries optional documentation metadata for a route — summary,
// description, tags, and vendor extensions — kept even though generating
// OpenAPI from it is an external concern this module does not implement.
// An embedder can still walk Router.Routes() to build one.
type Doc struct {
	Summary     string
	Description string
	Tags        []string
	RequestBody interface{}
	Responses   map[string]interface{}
	Vendor      map[string]interface{}
}

// Empty reports whether no documentation fields are set.
func (d Doc) Empty() bool {
	return d.Summary == "" && d.Description == "" && len(d.Tags) == 0 &&
		d.RequestBody == nil && len(d.Responses) == 0 && len(d.Vendor) == 0
}

// Options controls how a route is registered and scheduled.
type Options struct {
	// Heavy marks the route as CPU/DB intensive so the session dispatches
	// it onto the executor instead of running it inline on the I/O thread.
	Heavy bool

	// Doc carries optional documentation metadata forwarded to the route's
	// Record. Zero value means no documentation was supplied.
	Doc Doc
}

// Record describes one registered route, useful for documentation
// generation and runtime introspection.
type Record struct {
	Method string
	Path   string
	Heavy  bool
	Doc    Doc
}
