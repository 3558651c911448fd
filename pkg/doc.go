// Package pkg provides shared utilities for the softnvec embedded-controller
// driver.
//
// This package contains common functionality used by the protocol engine,
// its hardware backends and the simulator, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - A [Limiter] for log sites reachable from the interrupt handler
//   - Sentinel errors and the EC response [Status] codes
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with NVEC-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentChip, "chip started", "address", 0x8a)
//
// # Errors
//
// Commands rejected by the EC return a [*StatusError], which matches
// [ErrIO]:
//
//	if _, err := chip.CmdXfer(ctx, cmd, sub, nil, nil); errors.Is(err, pkg.ErrIO) {
//	    var se *pkg.StatusError
//	    if errors.As(err, &se) {
//	        log.Println("ec status", se.Status)
//	    }
//	}
package pkg
