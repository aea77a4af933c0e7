// Package messagehttp exposes the synchronous JSON-RPC endpoint of the
// bridge.
//
// A POSTed JSON-RPC 2.0 request is re-encoded as {method, params, id},
// serialized to a string and handed to a Sender (the Chatmi webhook client in
// production). The first answer the webhook produces becomes the JSON-RPC
// result: structured when it parses as JSON, the raw string otherwise.
//
// Status codes
//
//	200  result response
//	400  invalid request (-32600)
//	405  wrong method, plain {"error": "..."} body
//	500  webhook failure or missing answer (-32603)
//
// Every response carries permissive CORS headers; OPTIONS preflights are
// answered with an empty 200.
package messagehttp
