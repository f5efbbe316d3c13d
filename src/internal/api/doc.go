// Package api provides the HTTP control API of the tunroute service.
//
// The API exposes the route manager of a running service:
//   - Listing, adding and deleting owned routes
//   - The best default route of each monitored address family
//   - A server-sent event stream of default route changes
//   - The MTU of the interface carrying the default route
//
// Access is restricted to loopback and private subnets.
//
// # Response Format
//
// All successful responses wrap data in a "data" field:
//
//	{
//	  "data": { /* response payload */ }
//	}
//
// Error responses use the following format:
//
//	{
//	  "error": {
//	    "code": "ERROR_CODE",
//	    "message": "Human-readable error message",
//	    "details": { /* optional context */ }
//	  }
//	}
//
// # Batches
//
// POST /api/v1/routes and DELETE /api/v1/routes apply their whole body as one batch:
// if any route fails, the route table is left as it was before the request.
//
//	curl -X POST http://127.0.0.1:8777/api/v1/routes \
//	  -H 'Content-Type: application/json' \
//	  -d '{"routes":[{"network":"10.0.0.0/8"},{"network":"0.0.0.0/1","device":"wg0"}]}'
package api
