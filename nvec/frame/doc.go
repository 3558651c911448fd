// Package frame defines the NVEC wire format shared by the protocol engine
// in [github.com/ardnew/softnvec/nvec] and the simulated embedded
// controller in [github.com/ardnew/softnvec/nvec/hal/sim].
//
// Three frame shapes travel over the SMBus link:
//
//	Request  (AP → EC, block read):   [size][cmd][subcmd][payload...]
//	Response (EC → AP, block write):  [cmd][size][subcmd][status][payload...]
//	Event    (EC → AP, any write):    [header][payload] | [header][p0][p1] |
//	                                  [header][length][payload...]
//
// A request's size byte counts cmd, subcmd and the payload. A response's
// size byte counts subcmd, status and the payload. Events are told apart
// from responses by [EventFlag] in the first byte.
//
// Encoders write into caller-provided buffers and decoders return views
// aliasing the input, so nothing here allocates.
package frame
