// =============================================================================
// dryassist entry point
// =============================================================================
// HTTP service, batch drying tool and operational helpers.
//
// Usage:
//
//	dryassist serve                          # start the API server
//	dryassist serve --config config.yaml     # with a config file
//	dryassist dry --input in --output out    # dry a folder of photos
//	dryassist check                          # report credential status
//	dryassist health                         # probe a running server
//	dryassist version                        # print build information
// =============================================================================

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/dryingassistant/config"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "dry":
		os.Exit(runDry(os.Args[2:]))
	case "check":
		runCheck(os.Args[2:])
	case "health":
		runHealthCheck(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// configFlags registers the flags shared by every command that loads config.
type configFlags struct {
	path   *string
	dotEnv *string
}

func addConfigFlags(fs *flag.FlagSet) configFlags {
	return configFlags{
		path:   fs.String("config", "", "Path to config file (YAML)"),
		dotEnv: fs.String("env-file", ".env", "Path to a .env file; ignored when missing"),
	}
}

func (f configFlags) load() (*config.Config, error) {
	loader := config.NewLoader().WithDotEnv(*f.dotEnv)
	if *f.path != "" {
		loader = loader.WithConfigPath(*f.path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// serve
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cf := addConfigFlags(fs)
	_ = fs.Parse(args)

	cfg, err := cf.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting dryassist",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)
	logCredentialWarnings(cfg, logger)

	if err := NewServer(cfg, logger).Run(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("dryassist stopped")
}

// =============================================================================
// check
// =============================================================================

// runCheck prints the masked credentials. Missing keys are reported but do
// not change the exit status.
func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	cf := addConfigFlags(fs)
	_ = fs.Parse(args)

	cfg, err := cf.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for _, cs := range cfg.Credentials() {
		if cs.Set {
			fmt.Printf("%-20s %s\n", cs.Name, cs.Masked)
		} else {
			fmt.Printf("%-20s not set\n", cs.Name)
		}
	}
	for _, w := range cfg.CredentialWarnings() {
		fmt.Printf("warning: %s\n", w)
	}
}

func logCredentialWarnings(cfg *config.Config, logger *zap.Logger) {
	for _, w := range cfg.CredentialWarnings() {
		logger.Warn("credential missing, affected calls will fail", zap.String("detail", w))
	}
}

// =============================================================================
// health
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// version and help
// =============================================================================

func printVersion() {
	fmt.Printf("dryassist %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`dryassist - show what a wet item looks like dry

Usage:
  dryassist <command> [options]

Commands:
  serve     Start the HTTP API
  dry       Dry every image in a directory
  check     Report whether the API credentials are configured
  health    Check server health
  version   Show version information
  help      Show this help message

Options for 'serve', 'dry' and 'check':
  --config <path>     Path to configuration file (YAML)
  --env-file <path>   Path to a .env file (default .env)

Options for 'dry':
  --input <dir>         Source directory (default test_images)
  --output <dir>        Destination directory (default test_results)
  --fallback            Apply the local effect only, without the remote API
  --concurrency <n>     Images processed in parallel (default 1)

Examples:
  dryassist serve --config /etc/dryassist/config.yaml
  dryassist dry --input photos --output dried
  dryassist dry --fallback
  dryassist health --addr http://localhost:8080`)
}

// =============================================================================
// logger
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
