// Package dispatch is a generics-first REST dispatch framework. Handler
// types are the source of truth: request parameters, bodies, and responses
// are all expressed as Go types, and the framework derives parameter
// binding, content negotiation and serialization from them.
//
// The core handler signature removes http.ResponseWriter and *http.Request:
//
//	type Handler[Req, Resp any] func(ctx context.Context, req *Req) (*Resp, error)
//
// Routes are registered with package-level generic functions:
//
//	r := dispatch.New(dispatch.WithJSONP(true))
//	dispatch.Get[ListReq, ListResp](r, "/items", listItems)
//	dispatch.Post[CreateReq, Item](r, "/items", createItem, dispatch.WithStatus(http.StatusCreated))
//
// Every request runs through a Pipeline in two phases. The begin phase
// resolves the request type from the body, path and query, runs request
// filters, invokes the service and offers its response to the response
// binders. It ends by firing a one-shot completion. The end phase runs
// response filters and writes the response in the negotiated format
// (?format=, then Accept, then the default), wrapped as callback(body) when
// JSONP is enabled and a ?callback= is given. A binder can defer the
// completion (server-sent events, Defer) so that the end phase runs later.
// The response is closed exactly once on every path.
//
// Request types use struct tags for parameter binding and a Body field for
// request bodies:
//
//	type CreateReq struct {
//	    OrgID string `path:"org_id"`
//	    Body  struct {
//	        Name string `json:"name" minLength:"1"`
//	    }
//	}
//
// Errors from any stage are written as RFC 9457 problem details in the
// negotiated format. Middleware uses the standard
// func(http.Handler) http.Handler signature and wraps the whole router.
package dispatch
