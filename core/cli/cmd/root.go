package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hyperterse/queryengine/core/cli/internal"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/version"
)

var (
	configFile  string
	datasource  string
	port        string
	logLevel    int
	verbose     bool
	logTags     string
	logFile     bool
	showVersion bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "queryengine",
	Short:         "Query engine\nServe JSON protocol queries against a schema's datasource",
	SilenceUsage:  true,
	SilenceErrors: true, // Errors are already logged, suppress Cobra's error output
}

// completionCmd is a hidden command used to generate shell completions
var completionCmd = &cobra.Command{
	Use:          "completion [bash|zsh|fish|powershell]",
	Short:        "Generate shell completion script",
	Hidden:       true,
	ValidArgs:    []string{"bash", "zsh", "fish", "powershell"},
	Args:         cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(completionCmd)
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print the installed version and exit")

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Path to queryengine.yaml (default: ./queryengine.yaml when present)")
	pf.IntVar(&logLevel, "log-level", 0, "Log level: 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG (overrides config file)")
	pf.BoolVar(&verbose, "verbose", false, "Enable verbose logging (sets log level to DEBUG)")
	pf.StringVar(&logTags, "log-tags", "", "Filter logs by tags (comma-separated, use -tag to exclude). Overrides QUERY_ENGINE_LOG_TAGS")
	pf.BoolVar(&logFile, "log-file", false, "Stream logs to a file in /tmp/.queryengine/logs/")

	// Root command should only print help.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().Version)
			return nil
		}
		return cmd.Help()
	}
}

// loadProject loads .env files, the config file and the schema, then
// configures logging from flags and config. args holds an optional
// schema path.
func loadProject(args []string) (*internal.Project, error) {
	var schemaPath string
	if len(args) > 0 {
		schemaPath = args[0]
	}

	envDir := ""
	switch {
	case configFile != "":
		envDir = filepath.Dir(configFile)
	case schemaPath != "":
		envDir = filepath.Dir(schemaPath)
	}
	LoadEnvFiles(envDir)

	project, err := internal.LoadProject(configFile, schemaPath)
	if err != nil {
		return nil, err
	}

	path, err := logger.Configure(logger.Options{
		Level: internal.ResolveLogLevel(verbose, logLevel, project),
		Tags:  logTags,
		File:  logFile,
	})
	if err != nil {
		return nil, logger.New("main").Fail("failed to initialize log file: %w", err)
	}
	if path != "" {
		logger.New("main").Infof("Log file: %s", path)
	}
	return project, nil
}

// LoadEnvFiles attempts to load .env files from multiple locations.
// It tries each location in order and stops at the first successful load.
// Priority order:
// 1. From the provided directory (if not empty)
// 2. From the current working directory
// 3. From the directory containing the executable binary
// System environment variables always take precedence over .env file values.
func LoadEnvFiles(fromDir string) {
	envFiles := []string{".env.local", ".env.development", ".env"}

	if fromDir != "" {
		for _, envFile := range envFiles {
			if err := godotenv.Load(filepath.Join(fromDir, envFile)); err == nil {
				return
			}
		}
	}

	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			return
		}
	}

	if execPath, err := os.Executable(); err == nil {
		if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = realPath
		}
		execDir := filepath.Dir(execPath)
		for _, envFile := range envFiles {
			if err := godotenv.Load(filepath.Join(execDir, envFile)); err == nil {
				return
			}
		}
	}
}
