package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/stuntsim/simcore/internal/config"
	"github.com/stuntsim/simcore/internal/logging"
	intOtel "github.com/stuntsim/simcore/internal/otel"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "simcore"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()
)

// Flags are the command line switches.
type Flags struct {
	Debug     bool
	DumpFPS   bool
	Benchmark bool
	Help      bool
	ConfigDir string
}

// normalizeArgs accepts the single-dash long form (-debug) next to the
// double-dash one.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if len(a) > 2 && a[0] == '-' && a[1] != '-' {
			a = "-" + a
		}
		out = append(out, a)
	}
	return out
}

// parseFlags parses args (without the program name). Usage goes to out.
func parseFlags(args []string, out io.Writer) (Flags, error) {
	var f Flags
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.BoolVar(&f.Debug, "debug", false, "log at debug level")
	fs.BoolVar(&f.DumpFPS, "dumpfps", false, "log every displayed frame")
	fs.BoolVar(&f.Benchmark, "benchmark", false, "run the simulation as fast as possible")
	fs.BoolVarP(&f.Help, "help", "h", false, "show this help")
	fs.StringVarP(&f.ConfigDir, "config", "c", ".", "directory holding "+config.ConfigFileName)

	if err := fs.Parse(normalizeArgs(args)); err != nil {
		return f, err
	}
	if f.Help {
		fmt.Fprintf(out, "Usage of %s:\n", AppName)
		fs.PrintDefaults()
	}
	return f, nil
}

func main() {
	flags, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if flags.Help {
		return
	}

	if err := setupLogging(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := 0
	if err := run(ctx, flags); err != nil {
		Logger.Error("Simulation failed", "error", err)
		code = 1
	}

	shutdownLogging()
	if code != 0 {
		os.Exit(code)
	}
}

// setupLogging loads config and builds the log pipeline: file, OTel and
// optional Graylog.
func setupLogging(flags Flags) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	// load config
	if err := config.Load(flags.ConfigDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "path", viper.ConfigFileUsed())
	}

	level := viper.GetString("logLevel")
	if flags.Debug {
		level = "debug"
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		os.Rename(LogFilePath, LogFilePath+".old")
	}

	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	var otelLogProvider *sdklog.LoggerProvider
	if otelCfg.Enabled {
		cfg := intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		}
		if LogFile != nil {
			cfg.LogWriter = LogFile
		}
		OTelProvider, err = intOtel.New(cfg)
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			otelLogProvider = OTelProvider.LoggerProvider()
			otel.SetMeterProvider(OTelProvider.MeterProvider())
		}
	}

	if viper.GetBool("graylog.enabled") {
		h, _, err := logging.NewGELFHandler(viper.GetString("graylog.address"), level)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			SlogManager.AddHandler(h)
		}
	}

	if LogFile != nil {
		SlogManager.Setup(LogFile, level, otelLogProvider)
	} else {
		SlogManager.Setup(nil, level, otelLogProvider)
	}
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)

	Logger.Info("Starting up",
		"version", CurrentVersion,
		"buildDate", BuildDate,
		"logFile", LogFilePath,
		"args", strings.Join(os.Args[1:], " "),
	)
	return nil
}

func shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shut down OTel: %v\n", err)
		}
	}
	if LogFile != nil {
		LogFile.Close()
	}
}
