package tegra

// =============================================================================
// I2C Slave Registers
// =============================================================================

// Register offsets within the I2C controller's register window.
const (
	RegCnfg         = 0x00 // I2C_CNFG
	RegSlCnfg       = 0x20 // I2C_SL_CNFG
	RegSlRcvd       = 0x24 // I2C_SL_RCVD, receive and transmit data
	RegSlStatus     = 0x28 // I2C_SL_STATUS
	RegSlAddr1      = 0x2c // I2C_SL_ADDR1, 7-bit slave address
	RegSlAddr2      = 0x30 // I2C_SL_ADDR2, upper address bits
	RegSlDelayCount = 0x3c // I2C_SL_DELAY_COUNT

	// RegWindow is the smallest mapping covering every register used.
	RegWindow = 0x40
)

// I2C_CNFG bits.
const (
	CnfgPacketModeEn     = 1 << 10
	CnfgNewMasterSFM     = 1 << 11
	CnfgDebounceCntShift = 12
)

// I2C_SL_CNFG bits.
const (
	SlCnfgResp  = 1 << 0 // respond to general call
	SlCnfgNack  = 1 << 1 // NACK every transfer
	SlCnfgNewSl = 1 << 2 // new slave mode
)

// Slave controller programming.
const (
	// DelayCount is the SDA hold delay programmed into I2C_SL_DELAY_COUNT.
	DelayCount = 0x1e

	// Debounce is the I2C_CNFG debounce count.
	Debounce = 0x2
)

// =============================================================================
// System Paths
// =============================================================================

// SysfsUIOPath is the base path for UIO devices in sysfs.
const SysfsUIOPath = "/sys/class/uio"

// DevfsPrefix is the device node prefix for UIO devices.
const DevfsPrefix = "/dev/"

// DefaultDeviceName is the UIO name the slave controller is usually bound
// under by the device tree.
const DefaultDeviceName = "tegra-i2c-slave"
