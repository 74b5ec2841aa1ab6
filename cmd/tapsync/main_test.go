package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/johndauphine/tapsync/internal/config"
	"github.com/johndauphine/tapsync/internal/state"
)

func TestCLIFlagParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		validate func(c *cli.Context) error
	}{
		{
			name: "sync tables flag",
			args: []string{"app", "sync", "--tables", "account,contact", "salesforce"},
			validate: func(c *cli.Context) error {
				if c.String("tables") != "account,contact" {
					t.Errorf("tables = %q", c.String("tables"))
				}
				if c.Args().First() != "salesforce" {
					t.Errorf("tap arg = %q", c.Args().First())
				}
				return nil
			},
		},
		{
			name: "sync rescan flag",
			args: []string{"app", "sync", "--rescan", "salesforce"},
			validate: func(c *cli.Context) error {
				if !c.Bool("rescan") {
					t.Error("expected rescan to be true")
				}
				return nil
			},
		},
		{
			name: "sync target positional",
			args: []string{"app", "sync", "salesforce", "s3-csv"},
			validate: func(c *cli.Context) error {
				if c.Args().Get(1) != "s3-csv" {
					t.Errorf("target arg = %q", c.Args().Get(1))
				}
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &cli.App{
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "tapsync.yaml"},
				},
				Commands: []*cli.Command{
					{
						Name: "sync",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "tables"},
							&cli.BoolFlag{Name: "rescan"},
							&cli.BoolFlag{Name: "no-progress"},
						},
						Action: tt.validate,
					},
				},
			}

			if err := app.Run(tt.args); err != nil {
				t.Fatalf("app.Run() error: %v", err)
			}
		})
	}
}

func TestTapArg(t *testing.T) {
	app := &cli.App{
		Commands: []*cli.Command{
			{
				Name:      "plan",
				ArgsUsage: "<tap>",
				Action: func(c *cli.Context) error {
					tap, err := tapArg(c)
					if err != nil {
						return err
					}
					if tap != "salesforce" {
						t.Errorf("tap = %q", tap)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run([]string{"app", "plan", "salesforce"}); err != nil {
		t.Fatalf("app.Run() error: %v", err)
	}

	app.Commands[0].Action = func(c *cli.Context) error {
		_, err := tapArg(c)
		if err == nil {
			t.Error("expected error for missing tap argument")
		}
		return nil
	}
	if err := app.Run([]string{"app", "plan"}); err != nil {
		t.Fatalf("app.Run() error: %v", err)
	}
}

func TestNewBackend(t *testing.T) {
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		cfg := config.Default()
		cfg.State.Backend = "file"
		cfg.State.Path = filepath.Join(dir, "state")

		backend, err := newBackend(context.Background(), cfg)
		if err != nil {
			t.Fatalf("newBackend: %v", err)
		}
		defer backend.Close()
		if _, ok := backend.(*state.FileBackend); !ok {
			t.Errorf("backend = %T, want *state.FileBackend", backend)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Default()
		cfg.State.Backend = "sqlite"
		cfg.State.Path = filepath.Join(dir, "state")

		backend, err := newBackend(context.Background(), cfg)
		if err != nil {
			t.Fatalf("newBackend: %v", err)
		}
		defer backend.Close()
		if _, ok := backend.(*state.SQLiteBackend); !ok {
			t.Errorf("backend = %T, want *state.SQLiteBackend", backend)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default()
		cfg.State.Backend = "redis"
		if _, err := newBackend(context.Background(), cfg); err == nil {
			t.Error("expected error for unknown backend")
		}
	})
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "tapsync.yaml")
	if err := os.WriteFile(cfgFile, []byte("log:\n  level: info\n  format: text\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	app := &cli.App{
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}},
			&cli.StringFlag{Name: "log-format"},
			&cli.StringFlag{Name: "verbosity"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.Log.Format != "json" {
				t.Errorf("format = %q, want json", cfg.Log.Format)
			}
			if cfg.Log.Level != "debug" {
				t.Errorf("level = %q, want debug", cfg.Log.Level)
			}
			return nil
		},
	}

	args := []string{"app", "--config", cfgFile, "--log-format", "json", "--verbosity", "debug"}
	if err := app.Run(args); err != nil {
		t.Fatalf("app.Run() error: %v", err)
	}
}
