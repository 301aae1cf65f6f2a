package tracker

// Navigation is the GNSS collaborator. Module configuration and fix
// acquisition happen behind it; the pipeline only polls for a fresh
// solution and copies the readings out.
type Navigation interface {
	// FixReady reports whether a new position fix has arrived since the
	// last call that returned true. It must not block.
	FixReady() bool

	UnixTime() uint32
	Latitude() int32  // degrees * 1e7
	Longitude() int32 // degrees * 1e7
	AltitudeMSL() int32
	// NedVelocities returns the down, east and north velocity components
	// in mm/s (NED frame, down positive towards the ground).
	NedVelocities() (down, east, north int32)
	Satellites() uint8
}
