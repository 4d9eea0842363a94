// Package port implements loopback virtual ports on top of the worker and
// mitigation engines.
//
// Each port owns a TX queue drained by its worker context into the RX ring
// of its peer. The peer's mitigation timer turns those arrivals into
// rate-limited notifications of its frame handler. A port with no peer is
// looped back to itself.
package port
