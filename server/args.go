package server

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Args parses the serve command line options. Settings are applied in
// order: defaults, YAML config file (-config), SENSORSTORE_* environment
// variables, then flags given on the command line.
func Args(args []string, flags *flag.FlagSet) (Options, error) {
	d := DefaultOptions()

	if flags == nil {
		flags = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	}

	flagConfig := flags.String("config", "", "YAML config file")
	flagDataDir := flags.String("dataDir", d.DataDir, "directory the store file is kept in")
	flagStoreName := flags.String("storeName", d.StoreName, "name of the sensor database")
	flagResetStore := flags.Bool("resetStore", false, "permanently wipe data in store at start-up")
	flagDebugLifecycle := flags.Bool("debugLifecycle", false, "debug program lifecycle")
	flagNatsServer := flags.String("natsServer", d.NatsServer, "NATS Server")
	flagNatsDisableServer := flags.Bool("natsDisableServer", false, "disable NATS server (if you want to run NATS separately)")
	flagNatsPort := flags.Int("natsPort", d.NatsPort, "port of the embedded NATS server")
	flagNatsHTTPPort := flags.Int("natsHTTPPort", d.NatsHTTPPort, "monitoring port of the embedded NATS server, 0 disables")
	flagNatsWSPort := flags.Int("natsWSPort", d.NatsWSPort, "websocket port for browser producers, 0 disables")
	flagNatsWSAllowedOrigins := flags.String("natsWSAllowedOrigins", "", "comma separated origins browser producers may connect from")
	flagNatsWSSameOrigin := flags.Bool("natsWSSameOrigin", false, "only accept websocket connections from the server's own origin")
	flagNatsTLSCert := flags.String("natsTLSCert", "", "TLS server certificate")
	flagNatsTLSKey := flags.String("natsTLSKey", "", "TLS server key")
	flagNatsTLSCaCert := flags.String("natsTLSCaCert", "", "TLS CA certificate used to verify clients")
	flagNatsTLSVerify := flags.Bool("natsTLSVerify", false, "require and verify client certificates")
	flagAuthToken := flags.String("token", "", "auth token")
	flagSyslog := flags.Bool("syslog", false, "log to syslog instead of stdout")
	flagLogFile := flags.String("logFile", "", "log to a rotating file instead of stdout")
	flagID := flags.String("id", "", "instance ID, a UUID is generated if not set")

	if err := flags.Parse(args); err != nil {
		return Options{}, err
	}

	o := d

	if *flagConfig != "" {
		if err := loadConfigFile(*flagConfig, &o); err != nil {
			return Options{}, err
		}
	}

	if err := applyEnv(&o); err != nil {
		return Options{}, err
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dataDir":
			o.DataDir = *flagDataDir
		case "storeName":
			o.StoreName = *flagStoreName
		case "resetStore":
			o.ResetStore = *flagResetStore
		case "debugLifecycle":
			o.DebugLifecycle = *flagDebugLifecycle
		case "natsServer":
			o.NatsServer = *flagNatsServer
		case "natsDisableServer":
			o.NatsDisableServer = *flagNatsDisableServer
		case "natsPort":
			o.NatsPort = *flagNatsPort
		case "natsHTTPPort":
			o.NatsHTTPPort = *flagNatsHTTPPort
		case "natsWSPort":
			o.NatsWSPort = *flagNatsWSPort
		case "natsWSAllowedOrigins":
			o.NatsWSAllowedOrigins = splitList(*flagNatsWSAllowedOrigins)
		case "natsWSSameOrigin":
			o.NatsWSSameOrigin = *flagNatsWSSameOrigin
		case "natsTLSCert":
			o.NatsTLSCert = *flagNatsTLSCert
		case "natsTLSKey":
			o.NatsTLSKey = *flagNatsTLSKey
		case "natsTLSCaCert":
			o.NatsTLSCaCert = *flagNatsTLSCaCert
		case "natsTLSVerify":
			o.NatsTLSVerify = *flagNatsTLSVerify
		case "token":
			o.AuthToken = *flagAuthToken
		case "syslog":
			o.Syslog = *flagSyslog
		case "logFile":
			o.LogFile = *flagLogFile
		case "id":
			o.ID = *flagID
		}
	})

	if o.StoreName == "" {
		return Options{}, fmt.Errorf("store name must not be empty")
	}

	return o, nil
}

func loadConfigFile(file string, o *Options) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(b, o); err != nil {
		return fmt.Errorf("error parsing config file %v: %w", file, err)
	}

	return nil
}

func envString(name string, v *string) {
	if e := os.Getenv(name); e != "" {
		*v = e
	}
}

func envBool(name string, v *bool) error {
	e := os.Getenv(name)
	if e == "" {
		return nil
	}

	b, err := strconv.ParseBool(e)
	if err != nil {
		return fmt.Errorf("error parsing %v: %w", name, err)
	}

	*v = b
	return nil
}

// splitList splits a comma separated list, dropping empty items
func splitList(s string) []string {
	var ret []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			ret = append(ret, item)
		}
	}
	return ret
}

func envInt(name string, v *int) error {
	e := os.Getenv(name)
	if e == "" {
		return nil
	}

	n, err := strconv.Atoi(e)
	if err != nil {
		return fmt.Errorf("error parsing %v: %w", name, err)
	}

	*v = n
	return nil
}

func applyEnv(o *Options) error {
	envString("SENSORSTORE_DATA", &o.DataDir)
	envString("SENSORSTORE_STORE_NAME", &o.StoreName)
	envString("SENSORSTORE_NATS_SERVER", &o.NatsServer)
	envString("SENSORSTORE_NATS_TLS_CERT", &o.NatsTLSCert)
	envString("SENSORSTORE_NATS_TLS_KEY", &o.NatsTLSKey)
	envString("SENSORSTORE_NATS_TLS_CA_CERT", &o.NatsTLSCaCert)
	envString("SENSORSTORE_AUTH_TOKEN", &o.AuthToken)
	envString("SENSORSTORE_LOG_FILE", &o.LogFile)
	envString("SENSORSTORE_ID", &o.ID)

	for name, v := range map[string]*int{
		"SENSORSTORE_NATS_PORT":      &o.NatsPort,
		"SENSORSTORE_NATS_HTTP_PORT": &o.NatsHTTPPort,
		"SENSORSTORE_NATS_WS_PORT":   &o.NatsWSPort,
	} {
		if err := envInt(name, v); err != nil {
			return err
		}
	}

	if e := os.Getenv("SENSORSTORE_NATS_WS_ALLOWED_ORIGINS"); e != "" {
		o.NatsWSAllowedOrigins = splitList(e)
	}

	for name, v := range map[string]*bool{
		"SENSORSTORE_NATS_TLS_VERIFY":     &o.NatsTLSVerify,
		"SENSORSTORE_NATS_WS_SAME_ORIGIN": &o.NatsWSSameOrigin,
	} {
		if err := envBool(name, v); err != nil {
			return err
		}
	}

	if e := os.Getenv("SENSORSTORE_NATS_TLS_TIMEOUT"); e != "" {
		t, err := strconv.ParseFloat(e, 64)
		if err != nil {
			return fmt.Errorf("error parsing nats TLS timeout: %w", err)
		}
		o.NatsTLSTimeout = t
	}

	return nil
}
