// Package tegra provides a slave HAL for the Tegra I2C controller on Linux.
//
// The controller is exposed to user space through the kernel's UIO
// framework: the device tree binds the slave controller to uio_pdrv_genirq,
// which makes its register window mappable from /dev/uioN and delivers its
// interrupt as a readable count on the same node.
//
// # Requirements
//
// The process needs read/write access to the UIO device node. The device
// is located through /sys/class/uio by node path, sysfs name or label.
//
// # Interrupt Delivery
//
// A dedicated goroutine, locked to its OS thread, waits on the device with
// epoll, runs the registered handler with the IRQ lock held and re-enables
// the interrupt through the UIO irqcontrol write. Stop wakes the goroutine
// through an eventfd.
package tegra
