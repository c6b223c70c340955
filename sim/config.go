package sim

import (
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config parametrizes a simulated client-server transfer. Zero values of
// optional fields take the values of [DefaultConfig] when loaded from YAML.
type Config struct {
	// MSS is the maximum payload size of a segment.
	MSS        uint32 `yaml:"mss"`
	SendBuffer int    `yaml:"send_buffer"`
	RecvBuffer int    `yaml:"recv_buffer"`
	// ClientISS and ServerISS are chosen with [seqs.DefaultNewISS] when nil.
	ClientISS  *uint32 `yaml:"client_iss"`
	ServerISS  *uint32 `yaml:"server_iss"`
	ClientAddr string  `yaml:"client_addr"`
	ServerAddr string  `yaml:"server_addr"`
	ClientPort uint16  `yaml:"client_port"`
	ServerPort uint16  `yaml:"server_port"`
	// Payload is written by the client, which then closes the connection.
	Payload string `yaml:"payload"`
	// Drop lists the zero-based indices of transmitted packets that are lost.
	// Packets are numbered in transmission order across both directions.
	Drop []int `yaml:"drop"`
	// Latency is the one-way delay of every packet.
	Latency  time.Duration `yaml:"latency"`
	MaxSteps int           `yaml:"max_steps"`
	// Realtime runs the simulation against the wall clock instead of jumping
	// a virtual clock to the next event.
	Realtime bool `yaml:"realtime"`
}

// DefaultConfig returns the configuration used for fields absent from a config file.
func DefaultConfig() Config {
	return Config{
		MSS:        536,
		SendBuffer: 2048,
		RecvBuffer: 2048,
		ClientAddr: "10.0.0.1",
		ServerAddr: "10.0.0.2",
		ClientPort: 49152,
		ServerPort: 80,
		Payload:    "hello world\n",
		Latency:    10 * time.Millisecond,
		MaxSteps:   10000,
	}
}

// LoadConfig reads a YAML configuration file. Unknown fields are an error.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "open config")
	}
	defer f.Close()
	cfg, err := ParseConfig(f)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// ParseConfig decodes a YAML configuration on top of [DefaultConfig] and validates it.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "decode yaml")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the simulation cannot run with.
func (cfg *Config) Validate() error {
	switch {
	case cfg.MSS == 0:
		return errors.New("mss must be positive")
	case cfg.SendBuffer <= 0 || cfg.RecvBuffer <= 0:
		return errors.Errorf("buffer sizes must be positive, got send=%d recv=%d", cfg.SendBuffer, cfg.RecvBuffer)
	case cfg.RecvBuffer < len(cfg.Payload):
		// Zero windows are never probed, a transfer that fills the receiver stalls.
		return errors.Errorf("recv_buffer %d smaller than payload of %d bytes", cfg.RecvBuffer, len(cfg.Payload))
	case cfg.Latency < 0:
		return errors.Errorf("negative latency %s", cfg.Latency)
	case cfg.MaxSteps <= 0:
		return errors.New("max_steps must be positive")
	case cfg.ClientPort == 0 || cfg.ServerPort == 0:
		return errors.New("ports must be non-zero")
	}
	for _, idx := range cfg.Drop {
		if idx < 0 {
			return errors.Errorf("negative drop index %d", idx)
		}
	}
	if _, _, err := cfg.addrs(); err != nil {
		return err
	}
	return nil
}

func (cfg *Config) addrs() (client, server netip.Addr, err error) {
	client, err = netip.ParseAddr(cfg.ClientAddr)
	if err != nil {
		return client, server, errors.Wrap(err, "client_addr")
	}
	server, err = netip.ParseAddr(cfg.ServerAddr)
	if err != nil {
		return client, server, errors.Wrap(err, "server_addr")
	}
	if !client.Is4() || !server.Is4() {
		return client, server, errors.Errorf("addresses must be IPv4, got %s and %s", client, server)
	}
	return client, server, nil
}
