package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"

	"github.com/dvloznov/tallysync/internal/config"
	"github.com/dvloznov/tallysync/internal/connector"
	"github.com/dvloznov/tallysync/internal/connector/tunnel"
	"github.com/dvloznov/tallysync/internal/connector/vault"
	"github.com/dvloznov/tallysync/internal/logger"
	"github.com/dvloznov/tallysync/internal/relay"
)

func main() {
	var (
		configFile  = flag.String("config", "config.yaml", "YAML configuration file")
		secretsFile = flag.String("secrets", "secrets.ejson", "ejson secrets file")
		dotEnvFile  = flag.String("env-file", ".env", "dotenv file loaded before the environment is read")
		reset       = flag.Bool("reset", false, "forget the saved token and ask for a new one")
		noTunnel    = flag.Bool("no-tunnel", false, "serve on the local port only")
	)
	flag.Parse()

	cfg, secrets, err := config.Load(config.Options{
		ConfigFile:  *configFile,
		SecretsFile: *secretsFile,
		DotEnvFile:  *dotEnvFile,
	}, logger.New())
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load configuration")
	}
	cc := cfg.Connector
	log := logger.NewWithLevel(cc.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !*noTunnel {
		if err := tunnel.CheckBinary(ctx, cc.CloudflaredPath); err != nil {
			log.Fatal().Err(err).
				Str("cloudflared", cc.CloudflaredPath).
				Msg("Cloudflare Tunnel is required to run the connector; install cloudflared or set CLOUDFLARED_PATH")
		}
	}

	v := vault.New(cc.ConfigDir)
	if *reset {
		if err := v.Clear(); err != nil {
			log.Fatal().Err(err).Msg("Failed to clear saved token")
		}
	}
	token, err := resolveToken(v, secrets.ConnectorToken, log)
	if err != nil {
		log.Fatal().Err(err).Msg("No connector token available")
	}
	log.Info().Str("token", relay.MaskToken(token)).Msg("Using connector token")

	display := connector.NewDisplay(log)
	receiver := connector.NewReceiver(token, display, log)
	app := receiver.App()

	addr := net.JoinHostPort(cc.Host, strconv.Itoa(cc.Port))
	go func() {
		log.Info().Str("addr", addr).Msg("Starting receiver")
		if err := app.Listen(addr); err != nil {
			log.Error().Err(err).Msg("Receiver stopped")
			cancel()
		}
	}()

	go display.Run(ctx, os.Stdout)

	var tun *tunnel.Tunnel
	if !*noTunnel {
		localURL := fmt.Sprintf("http://localhost:%d", cc.Port)
		tun, err = tunnel.Launch(ctx, cc.CloudflaredPath, localURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start tunnel")
		}
		go watchTunnel(ctx, tun, receiver, log)
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down connector...")

	if tun != nil {
		tun.Stop()
	}
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error().Err(err).Msg("Receiver forced to shutdown")
	}

	log.Info().Msg("Connector exited")
}

// resolveToken prefers a token from the environment or secrets file, then
// the encrypted vault, and finally asks on the terminal and saves the answer.
func resolveToken(v *vault.Vault, fromSecrets string, log zerolog.Logger) (string, error) {
	if fromSecrets != "" {
		return fromSecrets, nil
	}

	token, err := v.Load()
	switch {
	case err == nil:
		log.Info().Msg("Loaded saved token")
		return token, nil
	case errors.Is(err, vault.ErrNoToken):
	default:
		log.Warn().Err(err).Msg("Saved token is unreadable, asking for a new one")
	}

	err = huh.NewInput().
		Title("Connector token").
		Description("Paste the token configured in the export service settings.").
		EchoMode(huh.EchoModePassword).
		Value(&token).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("please enter a token")
			}
			return nil
		}).
		Run()
	if err != nil {
		return "", fmt.Errorf("resolveToken: prompt: %w", err)
	}
	token = strings.TrimSpace(token)

	if err := v.Save(token); err != nil {
		log.Warn().Err(err).Msg("Failed to save token, it will be asked again next time")
	} else {
		log.Info().Msg("Token saved")
	}
	return token, nil
}

// watchTunnel publishes the discovered address and keeps the output drained
// until the process exits.
func watchTunnel(ctx context.Context, tun *tunnel.Tunnel, receiver *connector.Receiver, log zerolog.Logger) {
	url, err := tunnel.Discover(ctx, tun.Lines())
	if err != nil {
		log.Error().Err(err).Msg("Tunnel URL not found")
		return
	}
	receiver.SetTunnelURL(url)

	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("TUNNEL URL FOUND:")
	fmt.Println(url)
	fmt.Println(strings.Repeat("=", 70))
	log.Info().Str("tunnel_url", url).Msg("Connected & Listening")

	for range tun.Lines() {
	}

	select {
	case <-ctx.Done():
	case <-tun.Done():
		if err := tun.Err(); err != nil {
			log.Error().Err(err).Msg("Tunnel process exited")
		} else {
			log.Warn().Msg("Tunnel process exited")
		}
	}
}
