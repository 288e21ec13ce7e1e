// Package http provides the transport used to dispatch hitchain requests.
//
// It wraps the standard library's http package with additional features:
//   - Configurable timeouts, per client and per request
//   - Redirect handling
//   - Proxy and TLS verification settings
//   - Default headers applied to every request
//
// Every failure to obtain a response (bad URL, connection refused, timeout)
// is returned as a *TransportError matching ErrTransport.
package http
