package tracker

import (
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/Mika-1818/ReSonde/humidity"
	"github.com/Mika-1818/ReSonde/radio"
)

// FileConfig is the tracker's TOML configuration file.
type FileConfig struct {
	SerialNumber     uint16
	OverwritePending bool
	FixRateHz        int

	Radio    RadioConfig
	Humidity HumidityConfig
}

type RadioConfig struct {
	FreqMHz         float64
	BandwidthKHz    float64
	SpreadingFactor int
	CodingRate      int
	SyncWord        byte
	PowerDBm        int
	PreambleLen     int
}

type HumidityConfig struct {
	ClockHz       uint32
	BatchSize     int
	StaleMS       int
	SettleMS      int
	ReadTimeoutMS int

	CRefPF      float64
	CStrayPF    float64
	CNominalPF  float64
	CSlopePF    float64
	TempCoeffPF float64
}

// DefaultFileConfig returns the flight build's configuration; the file
// only has to name the values it overrides.
func DefaultFileConfig() FileConfig {
	p := radio.DefaultParams()
	c := humidity.DefaultConstants()
	return FileConfig{
		SerialNumber: 12345,
		FixRateHz:    1,
		Radio: RadioConfig{
			FreqMHz:         p.FreqMHz,
			BandwidthKHz:    p.BandwidthKHz,
			SpreadingFactor: p.SpreadingFactor,
			CodingRate:      p.CodingRate,
			SyncWord:        p.SyncWord,
			PowerDBm:        p.PowerDBm,
			PreambleLen:     p.PreambleLen,
		},
		Humidity: HumidityConfig{
			ClockHz:       48000000,
			BatchSize:     100,
			StaleMS:       50,
			SettleMS:      100,
			ReadTimeoutMS: 500,
			CRefPF:        float64(c.CRef),
			CStrayPF:      float64(c.CStray),
			CNominalPF:    float64(c.CNominal),
			CSlopePF:      float64(c.CSlope),
			TempCoeffPF:   float64(c.TempCoeff),
		},
	}
}

// LoadConfig reads the configuration file from the directory of the
// running binary.
func LoadConfig(fileName string) (FileConfig, error) {
	dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		return FileConfig{}, errors.Wrap(err, "unable to determine binary location")
	}
	file, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		return FileConfig{}, errors.Wrapf(err, "unable to open file %s", fileName)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader decodes a TOML configuration over the defaults.
func LoadConfigFromReader(r io.Reader) (FileConfig, error) {
	cfg := DefaultFileConfig()
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return FileConfig{}, errors.Wrap(err, "unable to load tracker configuration")
	}
	return cfg, nil
}

// RadioParams converts the file section into channel parameters.
func (c FileConfig) RadioParams() radio.Params {
	return radio.Params{
		FreqMHz:         c.Radio.FreqMHz,
		BandwidthKHz:    c.Radio.BandwidthKHz,
		SpreadingFactor: c.Radio.SpreadingFactor,
		CodingRate:      c.Radio.CodingRate,
		SyncWord:        c.Radio.SyncWord,
		PowerDBm:        c.Radio.PowerDBm,
		PreambleLen:     c.Radio.PreambleLen,
	}
}

// HumidityConstants converts the file section into bridge calibration
// constants.
func (c FileConfig) HumidityConstants() humidity.Constants {
	return humidity.Constants{
		CRef:      float32(c.Humidity.CRefPF),
		CStray:    float32(c.Humidity.CStrayPF),
		CNominal:  float32(c.Humidity.CNominalPF),
		CSlope:    float32(c.Humidity.CSlopePF),
		TempCoeff: float32(c.Humidity.TempCoeffPF),
	}
}
