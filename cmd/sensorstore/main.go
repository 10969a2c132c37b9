package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/run"
	"github.com/simpleiot/sensorstore/client"
	"github.com/simpleiot/sensorstore/data"
	"github.com/simpleiot/sensorstore/server"
	"github.com/simpleiot/sensorstore/system"
)

// goreleaser will replace version with Git version. You can also pass version
// into the go build:
//
//	go build -ldflags="-X main.version=1.2.3"
var version = "Development"

const defaultNatsServer = "nats://localhost:4222"

func main() {
	// global options
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagVersion := flags.Bool("version", false, "Print app version")
	flags.Usage = func() {
		fmt.Println("usage: sensorstore [OPTION]... COMMAND [OPTION]...")
		fmt.Println("Global options:")
		flags.PrintDefaults()
		fmt.Println()
		fmt.Println("Available commands:")
		fmt.Println("  - serve (start the sensor store server)")
		fmt.Println("  - log (log sensor store messages)")
		fmt.Println("  - send (send a sensor reading or control message)")
		fmt.Println("  - store (store maint, requires server to be running)")
	}

	_ = flags.Parse(os.Args[1:])

	if *flagVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// extract sub command and its arguments
	args := flags.Args()

	if len(args) < 1 {
		// run serve command by default
		args = []string{"serve"}
	}

	switch args[0] {
	case "serve":
		if err := runServer(args[1:], version); err != nil {
			log.Println("Sensor store stopped, reason: ", err)
		}
	case "log":
		runLog(args[1:])
	case "send":
		if err := runSend(args[1:]); err != nil {
			log.Fatal("send failed: ", err)
		}
	case "store":
		runStore(args[1:])
	default:
		log.Fatal("Unknown command; options: serve, log, send, store")
	}
}

func runServer(args []string, version string) error {
	options, err := server.Args(args, flag.NewFlagSet("serve", flag.ExitOnError))
	if err != nil {
		return err
	}

	options.AppVersion = version

	switch {
	case options.Syslog:
		if err := system.EnableSyslog("sensorstore"); err != nil {
			return fmt.Errorf("Error enabling syslog: %w", err)
		}
	case options.LogFile != "":
		lf, err := system.EnableLogFile(system.LogFileOptions{
			File:       options.LogFile,
			MaxSizeMB:  options.LogMaxSizeMB,
			MaxBackups: options.LogMaxBackups,
		})
		if err != nil {
			return fmt.Errorf("Error enabling log file: %w", err)
		}
		defer lf.Close()
	}

	log.Printf("SensorStore %v\n", version)

	var g run.Group

	ss, _, err := server.NewServer(options)
	if err != nil {
		return fmt.Errorf("Error starting server: %v", err)
	}

	g.Add(ss.Run, ss.Stop)

	g.Add(run.SignalHandler(context.Background(),
		syscall.SIGINT, syscall.SIGTERM))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*9)

	// add check to make sure server started
	chStartCheck := make(chan struct{})
	g.Add(func() error {
		err := ss.WaitStart(ctx)
		if err != nil {
			return errors.New("Timeout waiting for sensor store to start")
		}
		log.Println("Sensor store started, database:", options.StoreFile())
		<-chStartCheck
		return nil
	}, func(_ error) {
		cancel()
		close(chStartCheck)
	})

	return g.Run()
}

// natsServer returns the server given on the command line, or the
// SENSORSTORE_NATS_SERVER environment variable if the flag was left at its
// default.
func natsServer(flagValue string) string {
	if flagValue == defaultNatsServer {
		if e := os.Getenv("SENSORSTORE_NATS_SERVER"); e != "" {
			return e
		}
	}
	return flagValue
}

func runLog(args []string) {
	flags := flag.NewFlagSet("log", flag.ExitOnError)
	flagNatsServer := flags.String("natsServer", defaultNatsServer, "NATS Server")
	flagAuthToken := flags.String("token", "", "Auth token")

	if err := flags.Parse(args); err != nil {
		log.Fatal("error: ", err)
	}

	if err := client.Log(natsServer(*flagNatsServer), *flagAuthToken); err != nil {
		log.Fatal("log error: ", err)
	}
}

func connect(uri, token string) *nats.Conn {
	nc, err := client.EdgeConnect(client.EdgeOptions{
		URI:       uri,
		AuthToken: token,
		NoEcho:    true,
		Disconnected: func() {
			log.Println("NATS Disconnected")
		},
		Reconnected: func() {
			log.Println("NATS Reconnected")
		},
	})

	if err != nil {
		log.Println("Error connecting to NATS server: ", err)
		os.Exit(-1)
	}

	return nc
}

func runSend(args []string) error {
	flags := flag.NewFlagSet("send", flag.ExitOnError)
	flagNatsServer := flags.String("natsServer", defaultNatsServer, "NATS Server")
	flagAuthToken := flags.String("token", "", "Auth token")
	flagType := flags.String("type", "", "sensor type: accelerometer, gravity, gyroscope, orientation, inclinometer")
	flagData := flags.String("data", "null", "sensor reading as JSON")
	flagAction := flags.String("action", "", "control action: clearData, deleteDatabase")

	if err := flags.Parse(args); err != nil {
		return err
	}

	nc := connect(natsServer(*flagNatsServer), *flagAuthToken)
	defer nc.Close()

	switch {
	case *flagAction != "":
		a := data.Action(*flagAction)
		if !a.Valid() {
			return fmt.Errorf("%w: %v", data.ErrUnknownAction, a)
		}
		if err := client.SendAction(nc, a); err != nil {
			return err
		}

	case *flagType != "":
		t := data.SensorType(*flagType)
		if !t.Valid() {
			return fmt.Errorf("%w: %v", data.ErrUnknownSensorType, t)
		}
		if !json.Valid([]byte(*flagData)) {
			return fmt.Errorf("data is not valid JSON: %v", *flagData)
		}
		if err := client.SendSensorData(nc, t, json.RawMessage(*flagData)); err != nil {
			return err
		}

	default:
		flags.Usage()
		return errors.New("no type or action given")
	}

	// the message channel has no acknowledgement, flush so the message
	// leaves before we exit
	return nc.FlushTimeout(10 * time.Second)
}

func runStore(args []string) {
	flags := flag.NewFlagSet("store", flag.ExitOnError)
	flagNatsServer := flags.String("natsServer", defaultNatsServer, "NATS Server")
	flagAuthToken := flags.String("token", "", "Auth token")
	flagRecreate := flags.Bool("recreate", false, "delete the sensor database and open a fresh one")
	flagOpen := flags.Bool("open", false, "open the sensor database after it was deleted")
	flagCount := flags.Bool("count", false, "print the number of stored entries")
	flagDump := flags.Bool("dump", false, "print all stored entries as JSON")

	if err := flags.Parse(args); err != nil {
		log.Fatal("error: ", err)
	}

	nc := connect(natsServer(*flagNatsServer), *flagAuthToken)
	defer nc.Close()

	switch {
	case *flagRecreate:
		err := client.AdminRecreate(nc)
		if err != nil {
			log.Println("DB recreate failed: ", err)
		} else {
			log.Println("DB recreated")
		}

	case *flagOpen:
		err := client.AdminOpen(nc)
		if err != nil {
			log.Println("DB open failed: ", err)
		} else {
			log.Println("DB open")
		}

	case *flagCount:
		count, err := client.AdminCount(nc)
		if err != nil {
			log.Println("DB count failed: ", err)
		} else {
			fmt.Println(count)
		}

	case *flagDump:
		entries, err := client.AdminEntries(nc)
		if err != nil {
			log.Println("DB dump failed: ", err)
			break
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			log.Println("Error encoding entries: ", err)
		}

	default:
		fmt.Println("Error, no operation given.")
		flags.Usage()
	}
}
