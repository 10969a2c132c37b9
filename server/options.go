package server

import "path/filepath"

// Options used for starting the sensor store server
type Options struct {
	DataDir           string  `yaml:"dataDir"`
	StoreName         string  `yaml:"storeName"`
	ResetStore        bool    `yaml:"resetStore"`
	DebugLifecycle    bool    `yaml:"debugLifecycle"`
	NatsServer        string  `yaml:"natsServer"`
	NatsDisableServer bool    `yaml:"natsDisableServer"`
	NatsPort          int     `yaml:"natsPort"`
	NatsHTTPPort      int     `yaml:"natsHTTPPort"`
	NatsWSPort        int     `yaml:"natsWSPort"`
	NatsTLSCert       string  `yaml:"natsTLSCert"`
	NatsTLSKey        string  `yaml:"natsTLSKey"`
	NatsTLSCaCert     string  `yaml:"natsTLSCaCert"`
	NatsTLSVerify     bool    `yaml:"natsTLSVerify"`
	NatsTLSTimeout    float64 `yaml:"natsTLSTimeout"`
	// origins browser producers may connect to the websocket listener
	// from. Empty allows any origin unless NatsWSSameOrigin is set.
	NatsWSAllowedOrigins []string `yaml:"natsWSAllowedOrigins"`
	NatsWSSameOrigin     bool     `yaml:"natsWSSameOrigin"`
	AuthToken            string   `yaml:"authToken"`
	Syslog               bool     `yaml:"syslog"`
	LogFile              string   `yaml:"logFile"`
	LogMaxSizeMB         int      `yaml:"logMaxSizeMB"`
	LogMaxBackups        int      `yaml:"logMaxBackups"`
	AppVersion           string   `yaml:"-"`
	// optional ID (must be unique) for this instance, otherwise, a UUID will be used
	ID string `yaml:"id"`
}

// DefaultStoreName is the name of the sensor database
const DefaultStoreName = "sensorDatabase"

const defaultNatsServer = "nats://127.0.0.1:4222"

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		DataDir:        "./",
		StoreName:      DefaultStoreName,
		NatsServer:     defaultNatsServer,
		NatsPort:       4222,
		NatsHTTPPort:   8222,
		NatsWSPort:     9222,
		NatsTLSTimeout: 0.5,
		LogMaxSizeMB:   10,
		LogMaxBackups:  3,
	}
}

// StoreFile returns the path of the sqlite file backing the store
func (o Options) StoreFile() string {
	return filepath.Join(o.DataDir, o.StoreName+".sqlite")
}
