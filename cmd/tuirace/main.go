// Package main provides the CLI entrypoint for tuirace.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/tuirace/internal/config"
	"github.com/verte-zerg/tuirace/internal/generator"
	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/tui"
	"github.com/verte-zerg/tuirace/internal/typing"
	"github.com/verte-zerg/tuirace/internal/wordlist"
)

const (
	defaultMode     = string(model.ModeWords)
	defaultLogLevel = "info"
)

var (
	logLevel string

	practiceTimeLimit   int
	practiceMode        string
	practiceWordlistDir string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tuirace",
		Short:         "TUI typing test with multiplayer races",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPracticeCmd,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.Flags().IntVar(&practiceTimeLimit, "time-limit", model.DefaultTimeLimit, "countdown length in seconds")
	rootCmd.Flags().StringVar(&practiceMode, "mode", defaultMode, "word list mode (see: tuirace modes)")
	rootCmd.Flags().StringVar(&practiceWordlistDir, "wordlist-dir", config.DefaultWordListDir(), "directory with <mode>.json or <mode>.txt word lists")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newModesCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRaceCmd())

	return rootCmd
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyIntConfig(cmd, "time-limit", &practiceTimeLimit, fileCfg.Practice.TimeLimit)
	applyStringConfig(cmd, "mode", &practiceMode, fileCfg.Practice.Mode)
	applyStringConfig(cmd, "wordlist-dir", &practiceWordlistDir, fileCfg.Practice.WordlistDir)

	prefs, err := practicePreferences(practiceTimeLimit, practiceMode)
	if err != nil {
		return err
	}
	src := wordlist.NewSource(practiceWordlistDir)
	if len(src.Load(prefs.Mode)) == 0 {
		return wordListLoadError(prefs.Mode, practiceWordlistDir)
	}

	closeLog, err := setupFileLogging(logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	session := typing.NewSession(prefs, src, generator.New())
	driver := typing.NewDriver(session, nil)
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		if err := driver.Run(ctx); err != nil {
			log.Error().Err(err).Msg("typing driver stopped")
		}
	}()

	program := tea.NewProgram(tui.NewModel(driver), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newModesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modes",
		Short: "List available word list modes",
		Args:  cobra.NoArgs,
		RunE:  runModesCmd,
	}
	cmd.Flags().StringVar(&practiceWordlistDir, "wordlist-dir", config.DefaultWordListDir(), "directory with <mode>.json or <mode>.txt word lists")
	return cmd
}

func runModesCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "wordlist-dir", &practiceWordlistDir, fileCfg.Practice.WordlistDir)

	modes, err := wordlist.NewSource(practiceWordlistDir).Modes()
	if err != nil {
		return fmt.Errorf("failed to list modes: %w", err)
	}
	for _, mode := range modes {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), mode); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func practicePreferences(timeLimit int, mode string) (model.Preferences, error) {
	if timeLimit <= 0 {
		return model.Preferences{}, fmt.Errorf("--time-limit must be > 0")
	}
	parsed, _ := model.ParseMode(mode)
	if parsed == "" {
		return model.Preferences{}, fmt.Errorf("--mode must not be empty")
	}
	return model.Preferences{TimeLimitSeconds: timeLimit, Mode: parsed}, nil
}

// setupFileLogging points the global logger at the log file so that the
// alternate screen stays clean. The returned func closes the file.
func setupFileLogging(level string) (func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	path := config.DefaultLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(file).With().Timestamp().Logger()
	return func() {
		log.Logger = zerolog.Nop()
		if cerr := file.Close(); cerr != nil {
			logErrf("failed to close log file: %v\n", cerr)
		}
	}, nil
}

func setupConsoleLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyStringsConfig(cmd *cobra.Command, name string, target *[]string, value []string) {
	if len(value) == 0 {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# tuirace configuration
# Uncomment a value to enable it. CLI flags override config values.

[practice]
# time-limit = %d          # Countdown length in seconds
# mode = %q          # Word list mode (see: tuirace modes)
# wordlist-dir = %q

[race]
# server = %q
# username = "me"

[server]
# addr = %q
# db = %q
# allowed-origins = ["*"]
`,
		model.DefaultTimeLimit,
		defaultMode,
		config.DefaultWordListDir(),
		defaultServer,
		defaultAddr,
		config.DefaultDBPath(),
	)
}

func wordListLoadError(mode model.Mode, dir string) error {
	lines := []string{
		fmt.Sprintf("no words available for mode %q", mode),
		fmt.Sprintf("looked in: %s and the built-in lists", dir),
		"Run: tuirace modes",
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
