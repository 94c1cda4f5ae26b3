// Package main provides gpsfeed, which reads fixes from a serial NMEA
// receiver or a replay track and posts them to a navigation session.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/auth"
	"github.com/breatheroute/wayfinder/internal/config"
	"github.com/breatheroute/wayfinder/internal/gpsfeed"
	"github.com/breatheroute/wayfinder/internal/position"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	var (
		apiURL    = flag.String("api", "http://localhost:8080", "API base URL")
		sessionID = flag.String("session", "", "navigation session id (required)")
		token     = flag.String("token", "", "device token; minted from auth.jwt_signing_key when empty")
		deviceID  = flag.String("device", "gpsfeed", "device id for a minted token")
		port      = flag.String("port", "", "serial port, overrides gps.port")
		replay    = flag.String("replay", "", "YAML track, overrides gps.replay_file")
		wait      = flag.Bool("sync", false, "wait for each fix to be applied")
		printOnly = flag.Bool("mint", false, "print a device token and exit")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Str("service", "wayfinder-gpsfeed").
		Str("version", Version).
		Logger()

	loader, err := config.Load("", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg := loader.Config()

	bearer := *token
	if bearer == "" && cfg.Auth.JWTSigningKey != "" {
		jwt := auth.NewJWTService(auth.JWTConfig{SigningKey: cfg.Auth.JWTSigningKey})
		var expires time.Time
		bearer, expires, err = jwt.GenerateAccessToken(*deviceID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to mint device token")
		}
		log.Info().Str("device_id", *deviceID).Time("expires_at", expires).Msg("minted device token")
	}
	if *printOnly {
		fmt.Println(bearer)
		return
	}
	if *sessionID == "" {
		log.Fatal().Msg("-session is required")
	}

	gps := cfg.GPS
	if *port != "" {
		gps.Port, gps.ReplayFile = *port, ""
	}
	if *replay != "" {
		gps.Port, gps.ReplayFile = "", *replay
	}

	src, err := openSource(gps, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open position source")
	}
	defer src.Close()

	feeder, err := gpsfeed.New(gpsfeed.Config{
		BaseURL:   *apiURL,
		SessionID: *sessionID,
		Token:     bearer,
		Sync:      *wait,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid feed configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := feeder.Run(ctx, src)
	logEvent := log.Info()
	if err != nil && ctx.Err() == nil {
		logEvent = log.Error().Err(err)
	}
	logEvent.
		Int("sent", stats.Sent).
		Int("dropped", stats.Dropped).
		Int("failed", stats.Failed).
		Msg("feed finished")
}

func openSource(gps config.GPSConfig, log zerolog.Logger) (position.Source, error) {
	if gps.ReplayFile != "" {
		track, err := position.LoadTrack(gps.ReplayFile)
		if err != nil {
			return nil, err
		}
		r, err := position.NewReplay(track, position.ReplayConfig{Realtime: gps.Realtime})
		if err != nil {
			return nil, err
		}
		log.Info().Str("file", gps.ReplayFile).Int("fixes", r.Len()).Msg("replaying track")
		return r, nil
	}

	src, err := position.OpenSerial(position.SerialConfig{
		Port:     gps.Port,
		BaudRate: gps.BaudRate,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("port", gps.Port).Int("baud_rate", gps.BaudRate).Msg("reading serial receiver")
	return src, nil
}
