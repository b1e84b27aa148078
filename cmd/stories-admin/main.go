// Package main is the entry point for the stories admin CLI.
// This tool provides administrative commands for inspecting and cleaning up
// user namespaces directly in the object store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/prn-tf/mvstories/internal/codec"
	"github.com/prn-tf/mvstories/internal/config"
	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/logging"
	"github.com/prn-tf/mvstories/internal/repository"
	"github.com/prn-tf/mvstories/internal/service"
	"github.com/prn-tf/mvstories/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// commandTimeout bounds a single admin command.
const commandTimeout = 5 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	flags := pflag.NewFlagSet(command, pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to the configuration file")
	yes := flags.BoolP("yes", "y", false, "skip the confirmation of destructive commands")
	_ = flags.Parse(os.Args[2:])
	args := flags.Args()

	switch command {
	case "version":
		fmt.Printf("Stories Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "ensure-bucket":
		exitOnError(withApp(*configPath, func(ctx context.Context, a *app) error {
			created, err := storage.EnsureBucket(ctx, a.store)
			if err != nil {
				return err
			}
			if created {
				fmt.Printf("Bucket %s created\n", a.cfg.Storage.S3.Bucket)
			} else {
				fmt.Printf("Bucket %s already exists\n", a.cfg.Storage.S3.Bucket)
			}
			return nil
		}))

	case "list":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: stories-admin list <sessions|stories> <user-id>")
			os.Exit(1)
		}
		t, err := parsePluralType(args[0])
		exitOnError(err)
		exitOnError(withApp(*configPath, func(ctx context.Context, a *app) error {
			objects, err := a.objects.List(ctx, t, args[1])
			if err != nil {
				return err
			}
			return printJSON(objects)
		}))

	case "quota":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: stories-admin quota <user-id>")
			os.Exit(1)
		}
		exitOnError(withApp(*configPath, func(ctx context.Context, a *app) error {
			summary, err := a.users.Quota(ctx, domain.Identity{Subject: args[0]})
			if err != nil {
				return err
			}
			return printJSON(summary)
		}))

	case "delete-all":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: stories-admin delete-all <user-id> [--yes]")
			os.Exit(1)
		}
		if !*yes && !confirm(fmt.Sprintf("Permanently delete every session and story of %s?", args[0])) {
			fmt.Println("Aborted")
			return
		}
		exitOnError(withApp(*configPath, func(ctx context.Context, a *app) error {
			summary, err := a.users.DeleteAll(ctx, domain.Identity{Subject: args[0]})
			if err != nil {
				return err
			}
			return printJSON(summary)
		}))

	case "session-fixture":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "Usage: stories-admin session-fixture <current|legacy|old-raw> <input.json> <output.mvstory>")
			os.Exit(1)
		}
		exitOnError(writeSessionFixture(args[0], args[1], args[2]))
		fmt.Printf("Wrote %s session to %s\n", args[0], args[2])

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// app holds the components the admin commands operate on.
type app struct {
	cfg     *config.Config
	store   storage.ObjectStore
	objects *repository.ObjectRepository
	users   *service.UserService
}

func withApp(configPath string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	// Keep stdout for command output.
	logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	store, err := storage.NewFromConfig(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	objects := repository.NewObjectRepository(store, logger)
	quota := service.NewQuotaService(objects, cfg.Limits.MaxSessionsPerUser, cfg.Limits.MaxStoriesPerUser, logger)

	return fn(ctx, &app{
		cfg:     cfg,
		store:   store,
		objects: objects,
		users:   service.NewUserService(objects, quota, logger),
	})
}

func parsePluralType(s string) (domain.ObjectType, error) {
	switch s {
	case "sessions", "session":
		return domain.TypeSession, nil
	case "stories", "story":
		return domain.TypeStory, nil
	}
	return "", fmt.Errorf("unknown object type %q, expected sessions or stories", s)
}

// writeSessionFixture encodes the JSON document at input as a session blob in
// one of the stored encodings and writes it to output.
func writeSessionFixture(format, input, output string) error {
	raw, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("parse %s: %w", input, err)
	}

	packed, err := codec.EncodeOldRaw(value)
	if err != nil {
		return err
	}

	var blob []byte
	switch format {
	case "current":
		blob, err = codec.Deflate(packed)
	case "legacy":
		blob, err = codec.EncodeLegacyWrapper(codec.LegacyWrapperFields{
			Filename: filepath.Base(output),
			Title:    filepath.Base(input),
		}, packed)
	case "old-raw":
		blob = packed
	default:
		return fmt.Errorf("unknown session format %q, expected current, legacy or old-raw", format)
	}
	if err != nil {
		return err
	}

	return os.WriteFile(output, blob, 0o644)
}

func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false
	}
	return answer == "y" || answer == "Y" || answer == "yes"
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Stories Admin CLI

Usage:
  stories-admin <command> [arguments] [--config <file>]

Commands:
  ensure-bucket   Create the configured bucket if it does not exist
  list            List the sessions or stories of a user
  quota           Show the quota usage of a user
  delete-all      Delete every session and story of a user
  session-fixture Encode a JSON document as a session blob file
  version         Print version information
  help            Show this help message

Examples:
  stories-admin ensure-bucket --config /etc/stories/config.yaml
  stories-admin list stories <user-id>
  stories-admin quota <user-id>
  stories-admin delete-all <user-id> --yes
  stories-admin session-fixture legacy state.json state.mvstory`)
}
