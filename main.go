package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/ochinchina/stackpanel/config"
	log "github.com/sirupsen/logrus"
)

// Options are the global command line options
type Options struct {
	Configuration string `short:"c" long:"configuration" description:"the panel settings file"`
	Daemon        bool   `short:"d" long:"daemon" description:"run as daemon"`
	EnvFile       string `long:"env-file" description:"comma separated dotenv files loaded into the environment before start"`
}

func init() {
	log.SetOutput(os.Stdout)
	if runtime.GOOS == "windows" {
		log.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	} else {
		log.SetFormatter(&log.TextFormatter{DisableColors: false, FullTimestamp: true})
	}
	log.SetLevel(log.InfoLevel)
}

var options Options
var parser = flags.NewParser(&options, flags.Default & ^flags.PrintErrors)

var defaultConfFiles = []string{
	"./panel.conf",
	"/etc/stackpanel/panel.conf",
}

// findPanelConf returns the settings file given with -c, else the first
// default location that exists, else "" (built-in defaults)
func findPanelConf() (string, error) {
	if options.Configuration != "" {
		if _, err := os.Stat(options.Configuration); err != nil {
			return "", fmt.Errorf("settings file %s: %w", options.Configuration, err)
		}
		return options.Configuration, nil
	}
	for _, f := range defaultConfFiles {
		if _, err := os.Stat(f); err == nil {
			return f, nil
		}
	}
	return "", nil
}

// loadSettings reads the settings file, the --env-file files and the
// environment overrides
func loadSettings() (config.Settings, error) {
	if options.EnvFile != "" {
		config.LoadEnvFiles(options.EnvFile)
	}
	file, err := findPanelConf()
	if err != nil {
		return config.Settings{}, err
	}
	c := config.NewConfig(file)
	if file != "" {
		if err := c.Load(); err != nil {
			return config.Settings{}, err
		}
	} else {
		log.Info("no settings file found, using defaults")
	}
	settings := c.Settings()
	settings.ApplyEnv(os.LookupEnv)
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	if level, err := log.ParseLevel(settings.Log.Level); err == nil {
		log.SetLevel(level)
	}
	return settings, nil
}

// RunServer starts the panel and serves until SIGINT or SIGTERM
func RunServer() {
	settings, err := loadSettings()
	if err == nil {
		err = settings.ValidateServer()
	}
	if err != nil {
		log.WithFields(log.Fields{log.ErrorKey: err}).Fatal("invalid settings")
	}
	if os.Getpid() == 1 {
		ReapZombie()
	}

	panel, err := NewPanel(settings)
	if err != nil {
		log.WithFields(log.Fields{log.ErrorKey: err}).Fatal("failed to initialize the panel")
	}
	defer panel.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := NewHTTPServer(settings.Panel, panel)
	if err := server.Run(ctx); err != nil {
		log.WithFields(log.Fields{log.ErrorKey: err, "addr": settings.Panel.Listen}).Fatal("http server failed")
	}
	log.Info("stopped")
}

func main() {
	if _, err := parser.Parse(); err != nil {
		flagsErr, ok := err.(*flags.Error)
		if ok {
			switch flagsErr.Type {
			case flags.ErrHelp:
				fmt.Fprintln(os.Stdout, err)
				os.Exit(0)
			case flags.ErrCommandRequired:
				if options.Daemon {
					Daemonize(RunServer)
				} else {
					RunServer()
				}
				return
			}
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
