// Package cmd provides the CLI commands for amanrag.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/lifecycle"
	"github.com/Aman-CERP/amanrag/internal/logging"
	"github.com/Aman-CERP/amanrag/internal/profiling"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// Persistent flags.
var (
	projectDir     string
	logFile        string
	debugMode      bool
	loggingCleanup func()

	profileOpts profiling.Options
	profile     *profiling.Session
)

// NewRootCmd creates the root command for the amanrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amanrag",
		Short: "Document ingestion and graph-augmented retrieval",
		Long: `amanrag ingests PDF and TXT documents into a knowledge graph plus
vector index and answers questions over them.

Query modes:
  naive   text chunks only
  local   matched entities and their neighbourhood
  global  matched relations
  hybrid  local and global together (default)`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE:  startProfilingAndLogging,
		PersistentPostRunE: stopProfilingAndLogging,
	}
	cmd.SetVersionTemplate("amanrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory holding .amanrag.yaml and .env")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", logging.DefaultLogPath(), "Log file (empty disables file logging)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Debug logging, mirrored to stderr except under serve")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the CLI against os.Args and returns the process exit code.
// Failures go to stderr, as JSON when the command ran with --json.
func Execute() int {
	executed, err := NewRootCmd().ExecuteC()
	_ = lifecycle.Shutdown()
	if err == nil {
		return 0
	}
	printError(os.Stderr, executed, err)
	return 1
}

func printError(w io.Writer, executed *cobra.Command, err error) {
	if executed != nil {
		if f := executed.Flags().Lookup("json"); f != nil && f.Changed {
			if data, jerr := amerrors.FormatJSON(err); jerr == nil {
				fmt.Fprintln(w, string(data))
				return
			}
		}
	}
	fmt.Fprint(w, amerrors.FormatForCLI(err))
}

// startProfilingAndLogging installs the JSON logger and starts any requested
// profiles. stdout belongs to the MCP protocol under serve, so nothing is
// mirrored to stderr there either.
func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	level := "info"
	if debugMode {
		level = "debug"
	}
	if err := setupLogging(level, debugMode && cmd.Name() != "serve"); err != nil {
		return err
	}
	slog.Debug("command_started", slog.String("command", cmd.Name()), slog.String("version", version.Version))

	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			stopLogging()
			return err
		}
		profile = s
	}
	return nil
}

// stopProfilingAndLogging flushes profiles, then closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	err := profile.Stop()
	profile = nil
	if err != nil {
		slog.Warn("profile_write_failed", slog.String("error", err.Error()))
	}
	stopLogging()
	return err
}

func setupLogging(level string, stderr bool) error {
	logCfg := logging.ServerConfig(level)
	logCfg.FilePath = logFile
	logCfg.WriteToStderr = stderr
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	stopLogging()
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging() {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// loadConfig loads the project configuration. Unless --debug is set, the
// configured server.log_level replaces the default level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}
	if !debugMode && cfg.Server.LogLevel != "info" {
		if err := setupLogging(cfg.Server.LogLevel, false); err != nil {
			return nil, err
		}
	}
	slog.Debug("config_loaded",
		slog.String("command", cmd.Name()),
		slog.String("working_dir", cfg.Paths.WorkingDir),
		slog.String("graph_backend", cfg.Engine.GraphBackend),
		slog.String("vector_backend", cfg.Engine.VectorBackend))
	return cfg, nil
}
