package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rmaselli/smartFleet-app-sub002/internal/config"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/auth/password"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/catalog"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/db"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/logging"
)

var stdin io.Reader = os.Stdin

func runHashSecret(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash-secret", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var secret string
	var cost int
	fs.StringVar(&secret, "secret", "", "secret to hash (default: first line of stdin)")
	fs.IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if secret == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			fmt.Fprintf(stderr, "read secret: %v\n", err)
			return 1
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		fmt.Fprintln(stderr, "hash-secret requires a non-empty secret")
		return 1
	}

	digest, err := password.NewHasher(cost).Hash(secret)
	if err != nil {
		fmt.Fprintf(stderr, "hash secret: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, digest)
	return 0
}

func runCatalogValidate(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "catalog validate requires <catalog.yaml>")
		return 1
	}

	snap, err := catalog.LoadFile(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "invalid catalog: %v\n", err)
		return 1
	}

	for _, platform := range snap.Platforms() {
		required, photos := 0, 0
		for _, item := range platform.Items {
			if item.Required {
				required++
			}
			if item.RequiresPhoto {
				photos++
			}
		}
		fmt.Fprintf(stdout, "platform=%s items=%d required=%d requires_photo=%d\n", platform.ID, len(platform.Items), required, photos)
	}
	fmt.Fprintln(stdout, "status=valid")
	return 0
}

func runMigrate(args []string, stdout, stderr io.Writer) int {
	cfg := config.FromEnv()

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var timeout time.Duration
	fs.StringVar(&cfg.PostgresDSN, "dsn", cfg.PostgresDSN, "postgres dsn (default POSTGRES_DSN)")
	fs.DurationVar(&timeout, "timeout", time.Minute, "migration timeout")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if cfg.PostgresDSN == "" {
		fmt.Fprintln(stderr, "migrate requires --dsn or POSTGRES_DSN")
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	store, err := db.NewStore(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		fmt.Fprintf(stderr, "migrate: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "status=migrated")
	return 0
}
