// Package bpipe provides a request pipeline for HTTP servers: guards that admit requests, handlers
// that return errors and a response that is built up by modifiers before it is written exactly once.
//
// # Overview
//
// Every request gets a [Context] that pairs a read-only view of the request ([IncomingRequest]) with a
// response builder ([OutgoingResponse]). Processing a request runs, in order:
//
//   - the guards of the route, strictly one after the other;
//   - the resolvers, that compute route data;
//   - the handler, wrapped in its middleware;
//   - the response's modifier chain and the single physical write.
//
// A minimal example:
//
//	mux := bpipe.NewServeMux()
//	mux.HandleFunc("GET /items/{id}", func(ctx context.Context, c *bpipe.Context) error {
//	    item, err := db.GetItem(c.Route().Param("id"))
//	    if err != nil {
//	        return bpipe.NewError(bpipe.CodeNotFound, err)
//	    }
//
//	    return c.Response().JSON(item)
//	}, bpipe.Name("get-item"))
//
// The response is finished implicitly after the handler returned.
//
// # Guards
//
// A [Guard] is either a stateless [Predicate] or a [Service] that is constructed for every request. A
// guard that returns false rejects the request with a 412, a guard that returns an error rejects it
// with that error. A guard may also answer the request itself (for example a CORS preflight), which
// ends processing without an error.
//
// Guards shipped with the package:
//
//   - [BodyGuard], [JSONBodyGuard] and [FormDataBodyGuard] check, parse and validate the body;
//   - [QueryGuard] and [QuerySchemaGuard] check and coerce the query string;
//   - [RouteParamsGuard] validates path parameters;
//   - [CORSGuard] and [BearerGuard].
//
// # Response Modifiers
//
// A [Modifier] alters the response right before it is written. Modifiers are registered with
// [OutgoingResponse.Use] and run in registration order when [OutgoingResponse.Finish] is called. Finish
// is idempotent: nested and repeated calls result in a single write.
//
// Modifiers shipped with the package are obtained per request: [CookiesOf], [ExpiresOf], [RangeOf],
// [EncodingOf] and [AuthorizationOf].
//
// # Error Handling
//
// Errors returned by guards, resolvers, handlers and modifiers are rendered by the configured
// [ErrorRenderer]:
//
//   - [*Error] (created with [NewError]): uses the error's code, message and payload;
//   - other errors: logged and rendered as a 500 without exposing the cause.
//
// A handler that implements [ErrorRenderer] itself renders its own errors.
//
// # Scope
//
// Guards and handlers share per-request services through [Provide], [Store] and [Resolve]. Services
// registered with [Scoped] in [Config.Providers] exist in every request.
//
// # ServeMux
//
// [ServeMux] combines all components into a complete HTTP multiplexer that implements http.Handler:
//
//   - [ServeMux.Use] and [ServeMux.Guard] register middleware and guards for every route (must be
//     called before Handle);
//   - [ServeMux.Handle], [ServeMux.HandleFunc] and [ServeMux.Mount] register routes;
//   - [ServeMux.Reverse] generates URLs for named routes.
package bpipe
