package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/kvcache"
)

// parseValue reads JSON when the argument is valid JSON, a plain string otherwise.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func printValue(cmd *cobra.Command, v any) error {
	if s, ok := v.(string); ok {
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func setCmd(g *globals) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value (JSON or plain string)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd, func(ctx context.Context, s *kvcache.Session) error {
				ok, err := s.Set(ctx, args[0], parseValue(args[1]), kvcache.WithExpiry(ttl))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time to live (0 = none)")
	return cmd
}

func setnxCmd(g *globals) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "setnx <key> <value>",
		Short: "Store a value only if the key does not exist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd, func(ctx context.Context, s *kvcache.Session) error {
				ok, err := s.SetIfNotExists(ctx, args[0], parseValue(args[1]), kvcache.WithExpiry(ttl))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time to live (0 = none)")
	return cmd
}

func getCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd, func(ctx context.Context, s *kvcache.Session) error {
				v, err := s.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printValue(cmd, v)
			})
		},
	}
}

func delCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "del <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd, func(ctx context.Context, s *kvcache.Session) error {
				n, err := s.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func incrCmd(g *globals) *cobra.Command {
	var by, initial int64
	cmd := &cobra.Command{
		Use:   "incr <key>",
		Short: "Increment a counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd, func(ctx context.Context, s *kvcache.Session) error {
				n, err := s.Increment(ctx, args[0], kvcache.By(by), kvcache.Initial(initial))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&by, "by", 1, "step")
	cmd.Flags().Int64Var(&initial, "initial", 0, "value for a missing counter")
	return cmd
}

func expireCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "expire <key> <ttl>",
		Short: "Set a key's time to live (e.g. 30s; 0 expires now)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("ttl: %w", err)
			}
			return g.session(cmd, func(ctx context.Context, s *kvcache.Session) error {
				ok, err := s.Expire(ctx, args[0], ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

func ttlCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ttl <key>",
		Short: "Print remaining time to live in seconds (-1 = no expiry)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd, func(ctx context.Context, s *kvcache.Session) error {
				d, err := s.GetTTL(ctx, args[0])
				if err != nil {
					return err
				}
				if d == kvcache.NoExpiry {
					fmt.Fprintln(cmd.OutOrStdout(), -1)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), int64(d/time.Second))
				return nil
			})
		},
	}
}

func keysCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "keys <pattern>",
		Short: "List keys matching a glob pattern, sorted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd, func(ctx context.Context, s *kvcache.Session) error {
				keys, err := s.GetKeys(ctx, args[0])
				if err != nil {
					return err
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
}

func delkeysCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delkeys <pattern>",
		Short: "Delete every key matching a glob pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd, func(ctx context.Context, s *kvcache.Session) error {
				n, err := s.DeleteKeys(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}
