package comm

// Channel identifies a logical stream on the link.
type Channel byte

// Channels used by the bridge and its collaborators.
const (
	ChannelMotor       Channel = 1
	ChannelEnvironment Channel = 2
	ChannelAccel       Channel = 3
	ChannelGyro        Channel = 4
	ChannelMagnet      Channel = 5
	ChannelAnalog      Channel = 6
	ChannelDigital     Channel = 7
	ChannelControl     Channel = 254
)
