package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/tuirace/internal/client"
	"github.com/verte-zerg/tuirace/internal/config"
	"github.com/verte-zerg/tuirace/internal/generator"
	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/race"
	"github.com/verte-zerg/tuirace/internal/room"
	"github.com/verte-zerg/tuirace/internal/scoring"
	"github.com/verte-zerg/tuirace/internal/tui"
)

const defaultServer = "localhost:8080"

var (
	raceServer    string
	raceUsername  string
	raceMode      string
	raceTimeLimit int
	raceNewID     bool
)

func newRaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "race [CODE]",
		Short: "Join a race room, or open a new one when no code is given",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRaceCmd,
	}
	cmd.Flags().StringVar(&raceServer, "server", defaultServer, "room server address")
	cmd.Flags().StringVar(&raceUsername, "username", "", "name shown to other players (default: $USER)")
	cmd.Flags().StringVar(&raceMode, "mode", defaultMode, "word list mode used if the room is created")
	cmd.Flags().IntVar(&raceTimeLimit, "time-limit", model.DefaultTimeLimit, "race length in seconds used if the room is created")
	cmd.Flags().BoolVar(&raceNewID, "new-identity", false, "race under a fresh player id instead of the stored one")
	return cmd
}

func runRaceCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "server", &raceServer, fileCfg.Race.Server)
	applyStringConfig(cmd, "username", &raceUsername, fileCfg.Race.Username)
	applyStringConfig(cmd, "mode", &raceMode, fileCfg.Practice.Mode)
	applyIntConfig(cmd, "time-limit", &raceTimeLimit, fileCfg.Practice.TimeLimit)

	code, err := resolveRoomCode(args)
	if err != nil {
		return err
	}
	username := strings.TrimSpace(raceUsername)
	if username == "" {
		username = strings.TrimSpace(os.Getenv("USER"))
	}
	if username == "" {
		return fmt.Errorf("--username is required")
	}
	prefs, err := practicePreferences(raceTimeLimit, raceMode)
	if err != nil {
		return err
	}
	playerID := client.NewPlayerID()
	if !raceNewID {
		playerID, err = client.LoadPlayerID(config.DefaultPlayerIDPath(username))
		if err != nil {
			return err
		}
	}
	url, err := client.RoomURL(raceServer, code)
	if err != nil {
		return fmt.Errorf("invalid --server: %w", err)
	}

	closeLog, err := setupFileLogging(logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	conn := client.New(url, nil)
	go func() {
		if err := conn.Run(ctx); err != nil {
			log.Error().Err(err).Msg("room connection stopped")
		}
	}()

	adapter := race.NewAdapter(conn, playerID)
	m := tui.NewRaceModel(ctx, tui.RaceOptions{
		Code:      code,
		Username:  username,
		Mode:      prefs.Mode,
		TimeLimit: prefs.TimeLimitSeconds,
	}, conn.Events(), adapter)
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	cancel()

	logErrf("room %s\n", code)
	if final := m.Final(); len(final) > 0 {
		out := cmd.OutOrStdout()
		if err := scoring.RenderLeaderboard(out, final, scoring.UseColor(out)); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
	}
	return nil
}

func resolveRoomCode(args []string) (string, error) {
	if len(args) == 0 {
		code := room.GenerateCode(generator.New())
		logErrln("opening new room", code)
		return code, nil
	}
	code := room.NormalizeCode(args[0])
	if !room.ValidCode(code) {
		return "", fmt.Errorf("invalid room code %q (expected 6 letters or digits)", args[0])
	}
	return code, nil
}
