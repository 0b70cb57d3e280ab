/*
Package httpserver exposes the certificate manager over HTTP.

Read routes are public. Mutating routes go through Authenticator, which
recovers the caller identity from a secp256k1 signature over the request (see
package cryptoutils), rejects stale timestamps and replayed signatures, and
passes the identity to the engine as the caller. Route table and wire types
are documented in package api.

The server also provides the usual operational endpoints:

  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Mark server as not ready
  - GET /undrain - Mark server as ready
  - /debug/pprof - Profiling, when EnablePprof is set

Access logs are written with httplogger and, when a metrics server is
configured, request counts and latencies are recorded by route pattern.
*/
package httpserver
