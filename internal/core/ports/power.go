package ports

import "github.com/cyphereco/openturnkey/internal/core/domain"

// Battery samples the battery voltage.
type Battery interface {
	Millivolts() (int, error)
}

// PowerManager applies the halt of the device.
type PowerManager interface {
	Shutdown(code domain.ErrorCode)
	Reboot()
}
