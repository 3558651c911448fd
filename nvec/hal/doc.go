// Package hal defines the hardware abstraction layer between the NVEC
// protocol engine and the I2C slave controller it runs on.
//
// The engine in [github.com/ardnew/softnvec/nvec] sees the controller as
// an interrupt source plus four registers: a status bitmask ([Status]), a
// receive register ([SlaveHAL.ReadRx]), a transmit register
// ([SlaveHAL.WriteTx]) and the slave enable/reset controls. Everything else
// about the peripheral stays behind the interface.
//
// # Implementations
//
//   - [github.com/ardnew/softnvec/nvec/hal/sim]: simulated controller and
//     embedded controller, for tests and demos
//   - [github.com/ardnew/softnvec/nvec/hal/tegra]: Tegra2 I2C slave through
//     a Linux UIO register window
//
// # Interrupt Contract
//
// An implementation invokes the handler given to [SlaveHAL.Start] once per
// bus event, from a single logical interrupt context. It must not invoke
// the handler again before the previous call returns, and it must not
// invoke it at all between [SlaveHAL.DisableIRQ] and
// [SlaveHAL.EnableIRQ]. The engine relies on this to touch its state
// machine without holding a lock.
package hal
