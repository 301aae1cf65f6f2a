package ground

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config describes a ground station deployment.
type Config struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baudRate"`
	// FlightLog is the path of the SQLite database; empty disables
	// logging.
	FlightLog string `yaml:"flightLog"`
	// UplinkURL is the tracking site endpoint; empty disables the
	// upload.
	UplinkURL string `yaml:"uplinkURL"`
}

func DefaultConfig() Config {
	return Config{
		Port:     "/dev/ttyUSB0",
		BaudRate: 115200,
	}
}

func LoadConfig(fileName string) (Config, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return Config{}, errors.Wrap(err, "unable to open config file")
	}
	defer f.Close()
	return LoadConfigFromReader(f)
}

func LoadConfigFromReader(r io.Reader) (Config, error) {
	c := DefaultConfig()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "unable to parse config")
	}
	if c.Port == "" {
		return Config{}, errors.New("serial port must not be empty")
	}
	if c.BaudRate <= 0 {
		return Config{}, errors.New("baud rate must be positive")
	}
	return c, nil
}
