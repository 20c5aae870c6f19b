package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/kvcache"
	"github.com/unkn0wn-root/kvcache/backend"
	"github.com/unkn0wn-root/kvcache/config"
	kvzap "github.com/unkn0wn-root/kvcache/log/zap"
)

type globals struct {
	configFile string
	envFiles   []string
	backend    string
	redisAddr  string
	redisURL   string
	codec      string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:           "kvcache",
		Short:         "kvcache - inspect and modify a key-value cache",
		Long:          "Runs single cache operations against the configured INMEMORY, BIGCACHE or REDIS backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "YAML config file")
	pf.StringSliceVar(&g.envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	pf.StringVar(&g.backend, "backend", "", "backend override (INMEMORY, BIGCACHE, REDIS)")
	pf.StringVar(&g.redisAddr, "redis", "", "Redis address override")
	pf.StringVar(&g.redisURL, "redis-url", "", "Redis URL override")
	pf.StringVar(&g.codec, "codec", "", "value codec override (json, cbor, msgpack, protobuf)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging to stderr")

	rootCmd.AddCommand(
		setCmd(g),
		getCmd(g),
		delCmd(g),
		setnxCmd(g),
		incrCmd(g),
		expireCmd(g),
		ttlCmd(g),
		keysCmd(g),
		delkeysCmd(g),
	)
	return rootCmd
}

func (g *globals) loadConfig() (config.Config, error) {
	if len(g.envFiles) > 0 {
		if err := config.LoadDotEnv(g.envFiles...); err != nil {
			return config.Config{}, err
		}
	}
	var (
		cfg config.Config
		err error
	)
	if g.configFile != "" {
		cfg, err = config.LoadFile(g.configFile)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return config.Config{}, err
	}
	if g.backend != "" {
		cfg.Backend = backend.Kind(g.backend)
	}
	if g.redisAddr != "" {
		cfg.Redis.Addr = g.redisAddr
	}
	if g.redisURL != "" {
		cfg.Redis.URL = g.redisURL
	}
	if g.codec != "" {
		cfg.Codec = g.codec
	}
	return cfg, cfg.Validate()
}

func (g *globals) logger() (*zap.Logger, error) {
	if !g.verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

// session opens the configured cache for one command and runs fn in a
// blocking session.
func (g *globals) session(cmd *cobra.Command, fn func(ctx context.Context, s *kvcache.Session) error) error {
	ctx := cmd.Context()
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	zl, err := g.logger()
	if err != nil {
		return err
	}
	defer zl.Sync() //nolint:errcheck

	c, err := kvcache.Open(ctx, cfg, kvcache.Options{Logger: kvzap.ZapLogger{L: zl}})
	if err != nil {
		return err
	}
	defer c.Close(context.WithoutCancel(ctx))

	return c.SyncSession(ctx, func(s *kvcache.Session) error { return fn(ctx, s) })
}
