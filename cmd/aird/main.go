package main

import (
	"errors"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/app"
	"github.com/dokzlo13/aird/internal/config"
)

var version = "dev"

var CLI struct {
	Config      string           `short:"c" help:"Path to configuration file" default:"config.yaml" type:"path"`
	EnvFile     string           `name:"env-file" help:"Optional .env file loaded before the config" default:".env" type:"path"`
	ResetLedger bool             `name:"reset-ledger" help:"Clear the command ledger on startup"`
	Version     kong.VersionFlag `help:"Print version and exit"`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("aird"),
		kong.Description("Keeps air appliances in sync with the vendor cloud and tracks humidity setpoints."),
		kong.Vars{"version": version},
	)

	if err := loadDotEnv(CLI.EnvFile); err != nil {
		log.Fatal().Err(err).Str("path", CLI.EnvFile).Msg("Failed to load env file")
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)

	log.Info().Str("config", CLI.Config).Str("version", version).Msg("Starting aird")

	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	if CLI.ResetLedger {
		log.Info().Msg("Clearing command ledger (--reset-ledger)")
		if err := application.ResetLedger(); err != nil {
			log.Warn().Err(err).Msg("Failed to clear command ledger")
		}
	}

	ctx := app.SignalContext()

	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	application.Wait()

	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}

// loadDotEnv loads path into the environment. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func setupLogging(level string, useJSON bool, colors bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
