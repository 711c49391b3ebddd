package mapsync

// Logging convention in the `mapsync` package:
// Info:
//     essential events for abnormal behavior. This level should be silent on
//     normal operation, with the exception of one time (infrequent)
//     initialization data that is useful for monitoring
//     this includes:
//     - transport connect/auth errors and reconnects
//     - rejected mutations (failed rest calls, authorship violations)
//     - malformed or unknown broadcast frames
// V(1):
//     key events with ids that can be used to filter
//     - baseline loads, placeholder reconciliation
// V(2):
//     frequent events - e.g. send, receive, dispatch, throttle fire -
//     useful for trace debugging only
//
// tags:
//     [mt] transport
//     [md] inbound dispatch
//     [mp] mutation pipeline
//     [mb] baseline loader
//     [mo] outbound throttler
