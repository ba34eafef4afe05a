// Package api defines the wire contract between ledgerly clients and the
// remote record server.
//
// Both services are connect-rpc unary procedures whose request and response
// messages are google.protobuf.Struct values. A record travels as
//
//	{"recordType": "Bill", "recordName": "<uuid>", "fields": {...}}
//
// Field names inside "fields" are part of the contract and must stay stable:
// clients fall back to local defaults for missing optional fields, which is
// the only compatibility mechanism between versions.
package api
