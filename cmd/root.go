// Package cmd implements the easyproxy CLI using Cobra.
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Slothtron/easyproxy/internal/config"
	"github.com/Slothtron/easyproxy/internal/logging"
	"github.com/Slothtron/easyproxy/internal/proxy"
)

// version is injected at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:          "easyproxy",
	Short:        "Multi-protocol forward proxy (HTTP, HTTPS CONNECT, SOCKS5)",
	Version:      version,
	SilenceUsage: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(startCmd, initCmd, validateCmd)
}

// -----------------------------------------------------------------------
// start
// -----------------------------------------------------------------------

var (
	startConfigPath string
	startHost       string
	startPort       int
	startLogLevel   string
	startLogFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the proxy server",
	RunE:  runStart,
}

func init() {
	f := startCmd.Flags()
	f.StringVarP(&startConfigPath, "config", "c", "", "Path to YAML configuration file")
	f.StringVarP(&startHost, "host", "H", "", "Listen address (overrides config file)")
	f.IntVarP(&startPort, "port", "p", 0, "Listen port (overrides config file)")
	f.StringVar(&startLogLevel, "log-level", "", "Log level: DEBUG/INFO/WARNING/ERROR/CRITICAL (overrides config file)")
	f.StringVarP(&startLogFile, "log-file", "l", "", "Log file path (overrides config file)")
}

func runStart(_ *cobra.Command, _ []string) error {
	var cfg *config.Config
	if startConfigPath != "" {
		fmt.Printf("loading configuration from %s\n", startConfigPath)
		loaded, err := config.Load(startConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		fmt.Println("using default configuration")
		cfg = config.Default()
	}

	if startHost != "" {
		cfg.Host = startHost
	}
	if startPort != 0 {
		cfg.Port = startPort
	}
	if startLogLevel != "" {
		cfg.LogLevel = strings.ToUpper(startLogLevel)
	}
	if startLogFile != "" {
		cfg.LogFile = startLogFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Sync()

	printBanner(cfg)

	srv := proxy.New(cfg, logger.Named("proxy"))

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infow("shutting_down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil {
			logger.Errorw("server_error", "error", err.Error())
		}
	}

	return srv.Stop()
}

func printBanner(cfg *config.Config) {
	fmt.Printf("listening on: %s:%d\n", cfg.Host, cfg.Port)
	fmt.Printf("protocols: %s\n", strings.ToUpper(strings.Join(cfg.Protocols, ", ")))
	fmt.Printf("max connections: %d\n", cfg.MaxConnections)
	fmt.Printf("log level: %s\n", cfg.LogLevel)
	if cfg.LogFile != "" {
		fmt.Printf("log file: %s\n", cfg.LogFile)
	}
	if cfg.Auth != nil && cfg.Auth.Enabled {
		fmt.Println("auth: enabled")
	} else {
		fmt.Println("auth: disabled")
	}
	fmt.Println()

	if cfg.HasProtocol("http") || cfg.HasProtocol("https") {
		fmt.Printf("  try: curl -x http://%s:%d http://example.com\n", cfg.Host, cfg.Port)
	}
	if cfg.HasProtocol("socks5") {
		fmt.Printf("  try: curl --socks5 %s:%d http://example.com\n", cfg.Host, cfg.Port)
	}
	fmt.Println()
}

// -----------------------------------------------------------------------
// init
// -----------------------------------------------------------------------

var initCmd = &cobra.Command{
	Use:   "init OUTPUT",
	Short: "Generate a default configuration file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

func runInit(_ *cobra.Command, args []string) error {
	output := args[0]

	if _, err := os.Stat(output); err == nil {
		if !confirmOverwrite(output) {
			fmt.Println("cancelled")
			return nil
		}
	}

	if err := config.Default().Save(output); err != nil {
		return fmt.Errorf("generate config: %w", err)
	}
	fmt.Printf("configuration file written: %s\n", output)
	fmt.Printf("run with: easyproxy start -c %s\n", output)
	return nil
}

func confirmOverwrite(path string) bool {
	fmt.Printf("file %s already exists, overwrite? [y/N] ", path)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// -----------------------------------------------------------------------
// validate
// -----------------------------------------------------------------------

var validateConfigPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "", "Path to YAML configuration file (required)")
}

func runValidate(_ *cobra.Command, _ []string) error {
	if validateConfigPath == "" {
		return fmt.Errorf("validate requires --config")
	}

	cfg, err := config.Load(validateConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("configuration valid: %s\n\n", validateConfigPath)
	fmt.Printf("  listen address:    %s:%d\n", cfg.Host, cfg.Port)
	fmt.Printf("  protocols:         %s\n", strings.Join(cfg.Protocols, ", "))
	fmt.Printf("  max connections:   %d\n", cfg.MaxConnections)
	fmt.Printf("  connection timeout: %ds\n", cfg.ConnectionTimeout)
	fmt.Printf("  idle timeout:      %ds\n", cfg.IdleTimeout)
	fmt.Printf("  log level:         %s\n", cfg.LogLevel)
	if cfg.LogFile != "" {
		fmt.Printf("  log file:          %s\n", cfg.LogFile)
	}
	return nil
}
