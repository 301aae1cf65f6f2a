package humidity

import "github.com/chewxy/math32"

// Invalid is the reserved encoded value meaning "measurement failed". It is
// never produced by a successful conversion, whose range is 0-200.
const Invalid uint8 = 255

// Constants is the calibration data of the capacitive bridge: the known
// reference capacitor, the board stray capacitance, and the sensor's
// nominal capacitance and humidity sensitivity. All values in picofarads.
type Constants struct {
	CRef      float32 // reference capacitor selected during calibration
	CStray    float32 // fixed stray capacitance of the bridge wiring
	CNominal  float32 // sensor capacitance at 0 %RH and 25 degC
	CSlope    float32 // sensitivity, pF per %RH
	TempCoeff float32 // first-order correction, pF per (degC * %RH)
}

// DefaultConstants returns the tracker board's calibration values.
func DefaultConstants() Constants {
	return Constants{
		CRef:      180.0,
		CStray:    30.0,
		CNominal:  161.6,
		CSlope:    0.34,
		TempCoeff: 0.00125,
	}
}

// Convert maps a pair of bridge frequency measurements onto the encoded
// relative humidity byte, round(%RH * 2) in 0-200, clamped at the ends of
// the physical range. Either frequency being zero or negative (a failed
// measurement upstream) yields Invalid.
//
// The oscillator's frequency is inversely proportional to the selected
// bridge capacitance, so the sensing-side capacitance follows from the
// ratio against the known reference capacitor; oscillator constants cancel
// out. The temperature correction deliberately uses prevRH, the previous
// cycle's humidity in percent, as a first-order stand-in for the current
// one rather than solving the coupled system. The conversion runs in
// float32 like the firmware it has to agree with.
func (c Constants) Convert(fRef, fRH, tempC, prevRH float32) uint8 {
	if !(fRef > 0) || !(fRH > 0) {
		return Invalid
	}
	cTotal := c.CRef * fRef / fRH
	cSensor := cTotal - c.CStray
	cCorr := cSensor - c.TempCoeff*(tempC-25.0)*prevRH
	rh := (cCorr - c.CNominal) / c.CSlope
	if rh < 0 {
		rh = 0
	} else if rh > 100 {
		rh = 100
	}
	return uint8(math32.Round(rh * 2))
}
