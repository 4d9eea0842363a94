// Package mitigation coalesces repeated "new data" signals for a ring into
// notifications spaced at least one window apart.
//
// A timer is Idle or Armed. The first arrival while Idle is delivered at
// once and arms the timer for one window. Arrivals while Armed only mark
// the ring pending. On expiry a pending ring is delivered and the timer
// re-arms; otherwise it goes back to Idle.
package mitigation
