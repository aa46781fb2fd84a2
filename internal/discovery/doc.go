// Package discovery finds Venstar ColorTouch thermostats on the local network.
//
// Two sources are supported. A configured host list ("10.0.0.5;10.0.0.6")
// is used as-is with no network search. Without one, an SSDP M-SEARCH for
// the "colortouch:ecp" target is multicast and every answer received before
// the timeout becomes an Endpoint.
//
// Discovery never fails because nothing answered: an empty result is
// returned and the caller decides how to report it.
package discovery
