// Package odoo talks to an Odoo server over its external RPC API.
//
// Two wire handlers implement the same RpcHandler contract: XMLRPCHandler
// speaks the classic /xmlrpc/2 endpoints and JSONRPCHandler posts to
// /jsonrpc. Which one is active is a configuration choice; everything above
// the handler is protocol-agnostic.
//
// Pool multiplexes a fixed number of authenticated handlers across
// concurrent requests, retrying connection setup with exponential backoff
// and recycling connections that fail health probes. SchemaTracker
// fingerprints the server's model and field catalog so cached results can
// be invalidated when the schema changes.
//
// All failures surface as *GatewayError values carrying a stable Kind and
// JSON-RPC error code. ClassifyFault maps raw Odoo fault strings onto that
// taxonomy.
package odoo
