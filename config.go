package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind    string
	port    int
	prefix  string
	profile bool
	tlsCert string
	tlsKey  string
	verbose bool
	version bool

	maxRoomSize    int
	roundLimit     int
	readyCountdown time.Duration
	roundCountdown time.Duration
	emptyRoomGrace time.Duration
	tokenKey       string
	tokenTTL       time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxRoomSize < 1 {
		return fmt.Errorf("invalid max room size (must be at least 1): %d", c.maxRoomSize)
	}
	if c.roundLimit < 1 {
		return fmt.Errorf("invalid round limit (must be at least 1): %d", c.roundLimit)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GIFDRAFT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "gifdraft",
		Short:         "A real-time gif drafting party game, served as a single webapp.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: GIFDRAFT_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: GIFDRAFT_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: GIFDRAFT_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: GIFDRAFT_PROFILE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: GIFDRAFT_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: GIFDRAFT_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: GIFDRAFT_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: GIFDRAFT_VERSION)")

	fs.IntVar(&cfg.maxRoomSize, "max-room-size", 9, "maximum number of players per game room (env: GIFDRAFT_MAX_ROOM_SIZE)")
	fs.IntVar(&cfg.roundLimit, "round-limit", 3, "number of drafting rounds per game (env: GIFDRAFT_ROUND_LIMIT)")
	fs.DurationVar(&cfg.readyCountdown, "ready-countdown", 3*time.Second, "countdown before the draft phase starts once all players are ready (env: GIFDRAFT_READY_COUNTDOWN)")
	fs.DurationVar(&cfg.roundCountdown, "round-countdown", 120*time.Second, "time limit for each drafting round (env: GIFDRAFT_ROUND_COUNTDOWN)")
	fs.DurationVar(&cfg.emptyRoomGrace, "empty-room-grace", 10*time.Second, "grace period before an emptied room is removed (env: GIFDRAFT_EMPTY_ROOM_GRACE)")
	fs.StringVar(&cfg.tokenKey, "token-key", "", "hmac key for session tokens, random per-process if empty (env: GIFDRAFT_TOKEN_KEY)")
	fs.DurationVar(&cfg.tokenTTL, "token-ttl", 30*time.Minute, "lifetime of issued session tokens (env: GIFDRAFT_TOKEN_TTL)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("gifdraft v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
