package channel

// Channel identifies one of the mutually incompatible delivery channels.
type Channel string

const (
	// DPO delivers to public agencies through the messaging hub.
	DPO Channel = "DPO"
	// DPF delivers to municipalities through their shared mailbox service.
	DPF Channel = "DPF"
	// DPV delivers to businesses through the public notification service.
	DPV Channel = "DPV"
	// DPIDigital delivers to a citizen's digital mailbox.
	DPIDigital Channel = "DPI_DIGITAL"
	// DPIPrint delivers by centralized print and postal mail. Last resort.
	DPIPrint Channel = "DPI_PRINT"
)

// preferenceOrder lists the digital channels highest-preference first.
// DPIPrint is deliberately absent; it is never selected while any digital
// channel is viable.
var preferenceOrder = []Channel{DPO, DPF, DPV, DPIDigital}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case DPO, DPF, DPV, DPIDigital, DPIPrint:
		return true
	}
	return false
}

// Terminal reports whether a permanent failure on this channel ends the
// conversation. Non-terminal channels cascade to the channel returned by
// FallsBackTo.
func (c Channel) Terminal() bool {
	_, ok := c.FallsBackTo()
	return !ok
}

// FallsBackTo returns the channel to try after a permanent failure on c.
func (c Channel) FallsBackTo() (Channel, bool) {
	if c == DPIDigital {
		return DPIPrint, true
	}
	return "", false
}

func (c Channel) String() string { return string(c) }
