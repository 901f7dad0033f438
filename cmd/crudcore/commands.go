package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-crudcore/cache"
	"github.com/goliatone/go-crudcore/config"
	"github.com/goliatone/go-crudcore/model"
	"github.com/goliatone/go-crudcore/password"
	"github.com/goliatone/go-crudcore/pkg/di"
	"github.com/goliatone/go-crudcore/repository"
	"github.com/goliatone/go-crudcore/token"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errMismatch makes verify commands exit non-zero without extra output.
var errMismatch = errors.New("verification failed")

type app struct {
	configFile string
	dotenv     string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "crudcore",
		Short:         "Maintenance commands for the identity and data-access core",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Each command validates only the sections it uses.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := a.configFile
			if path == "" {
				path = os.Getenv("CRUDCORE_CONFIG")
			}
			opts := []config.Option{config.WithDotenv(a.dotenv), config.WithoutValidation()}
			if path != "" {
				opts = append(opts, config.WithConfigFile(path))
			}
			cfg, err := config.Load(opts...)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "YAML config file (env CRUDCORE_CONFIG)")
	root.PersistentFlags().StringVar(&a.dotenv, "env-file", ".env", "dotenv file loaded before the environment")

	root.AddCommand(
		a.migrateCmd(),
		a.userCmd(),
		a.passwordCmd(),
		a.tokenCmd(),
		a.cacheCmd(),
	)
	return root
}

func (a *app) container(ctx context.Context) (*di.Container, error) {
	return di.NewContainer(ctx, a.cfg)
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users, authors and books tables (and the cache table for the sql driver)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := model.CreateSchema(ctx, c.DB()); err != nil {
				return err
			}
			c.Logger().Info("schema ready", zap.String("driver", a.cfg.Database.Driver))
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func (a *app) userCmd() *cobra.Command {
	userCmd := &cobra.Command{Use: "user", Short: "Account operations"}

	var username, email, pw, role string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register an account with a hashed password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || email == "" || pw == "" {
				return fmt.Errorf("--username, --email and --password are required")
			}
			if err := validation.Validate(role, validation.Required, validation.In(model.RoleUser, model.RoleAdmin)); err != nil {
				return fmt.Errorf("--role %q: %w", role, err)
			}
			ctx := cmd.Context()
			c, err := a.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			users, err := di.NewRepository[model.User](c)
			if err != nil {
				return err
			}
			digest, err := c.Hasher().Hash(pw)
			if err != nil {
				return err
			}
			u, err := users.Create(ctx, repository.Fields{
				"username":      username,
				"email":         email,
				"password_hash": digest,
				"role":          role,
			})
			if errors.Is(err, repository.ErrConstraintViolation) {
				return fmt.Errorf("user %q or email %q already exists", username, email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.ID)
			return nil
		},
	}
	addCmd.Flags().StringVar(&username, "username", "", "login name")
	addCmd.Flags().StringVar(&email, "email", "", "email address")
	addCmd.Flags().StringVar(&pw, "password", "", "plain password")
	addCmd.Flags().StringVar(&role, "role", model.RoleUser, "user|admin")

	userCmd.AddCommand(addCmd)
	return userCmd
}

func (a *app) passwordCmd() *cobra.Command {
	pwCmd := &cobra.Command{Use: "password", Short: "Hash and verify passwords"}

	hashCmd := &cobra.Command{
		Use:   "hash <password>",
		Short: "Print an argon2id digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := password.NewArgon2(a.cfg.Password)
			if err != nil {
				return err
			}
			digest, err := h.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <password> <digest>",
		Short: "Check a password against a stored digest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := password.NewArgon2(a.cfg.Password)
			if err != nil {
				return err
			}
			if !h.Verify(args[0], args[1]) {
				fmt.Fprintln(cmd.OutOrStdout(), "mismatch")
				return errMismatch
			}
			out := "ok"
			if h.NeedsRehash(args[1]) {
				out = "ok (needs rehash)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	pwCmd.AddCommand(hashCmd, verifyCmd)
	return pwCmd
}

func (a *app) tokenCmd() *cobra.Command {
	tokCmd := &cobra.Command{Use: "token", Short: "Issue and verify access tokens"}

	issueCmd := &cobra.Command{
		Use:   "issue <namespace> <id>",
		Short: "Issue a token for <namespace>-<id>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := token.New(a.cfg.Token)
			if err != nil {
				return err
			}
			raw, err := svc.Issue(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <token> <namespace>",
		Short: "Verify a token and print its entity id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := token.New(a.cfg.Token)
			if err != nil {
				return err
			}
			id, err := svc.Verify(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	tokCmd.AddCommand(issueCmd, verifyCmd)
	return tokCmd
}

func (a *app) cacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{Use: "cache", Short: "Cache utilities"}

	keyCmd := &cobra.Command{
		Use:   "key <namespace> [name=value...]",
		Short: "Print the cache key for a set of request parameters",
		Long: "Print the cache key for a set of request parameters. Values that parse " +
			"as integers, floats or booleans are treated as such, everything else is a string.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Cache.Validate(); err != nil {
				return fmt.Errorf("config: cache: %w", err)
			}
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			key, err := cache.KeyFor(a.cfg.Cache.Prefix+args[0]+":", params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired entries from stores that keep them (sql driver)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Gateway().Purge(ctx)
			if err != nil {
				return fmt.Errorf("driver %s: %w", a.cfg.Cache.Driver, err)
			}
			c.Logger().Info("cache purged", zap.Int64("entries", n))
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cacheCmd.AddCommand(keyCmd, purgeCmd)
	return cacheCmd
}

func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, want name=value", pair)
		}
		params[name] = parseScalar(raw)
	}
	return params, nil
}

func parseScalar(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
