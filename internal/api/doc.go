// Package api is the inbound surface of the orchestrator.
//
// BatchService wraps the workflow manager and answers every call with an
// Envelope of the form {success, error, message, data}. Failures carry the
// error kind (validation, not_found, illegal_transition or internal) so
// transports can map them with HTTPStatus. The daemon HTTP server and the CLI
// client share the types declared here.
package api
