// Command passwd provisions a user password out of band. It connects to the
// database directly, creates the user row if it does not exist yet, and
// registers the password through the same exchange a real client would run.
package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/dmitrijs2005/bindguard/internal/common"
	"github.com/dmitrijs2005/bindguard/internal/flagx"
	"github.com/dmitrijs2005/bindguard/internal/logging"
	"github.com/dmitrijs2005/bindguard/internal/server/config"
	"github.com/dmitrijs2005/bindguard/internal/server/models"
	"github.com/dmitrijs2005/bindguard/internal/server/opaque"
	"github.com/dmitrijs2005/bindguard/internal/server/repositories/repomanager"
)

// parseUserFlag parses the -user flag from args, leaving the config-layer
// flags (-d, -k, ...) for config.LoadConfig to handle.
func parseUserFlag(args []string) (string, error) {
	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	username := fs.String("user", "", "username to provision")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-user"})); err != nil {
		return "", err
	}
	return *username, nil
}

func main() {
	username, err := parseUserFlag(os.Args[1:])
	if err != nil || username == "" {
		fmt.Fprintln(os.Stderr, "usage: passwd -user <username> [-d dsn] [-k seed]")
		os.Exit(2)
	}

	cfg := config.LoadConfig()

	fmt.Println("Enter password")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	pw := string(password)
	common.WipeByteArray(password)

	if err := run(context.Background(), cfg, username, pw); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	fmt.Println("Password set for", opaque.NormalizeUserID(username))
}

func run(ctx context.Context, cfg *config.Config, username, password string) error {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	seed, err := hex.DecodeString(cfg.ServerKeySeed)
	if err != nil || len(seed) != common.ServerKeySeedSize {
		return fmt.Errorf("server key seed must be %d hex-encoded bytes", common.ServerKeySeedSize)
	}
	codec, err := opaque.NewCodec(seed)
	if err != nil {
		return fmt.Errorf("envelope codec init error: %w", err)
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	svc := opaque.NewService(db, rm, opaque.NewDriver(seed), codec, logger)

	username = opaque.NormalizeUserID(username)
	users := rm.Users(db)
	if _, err := users.GetUserByLogin(ctx, username); err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("user lookup error: %w", err)
		}
		if _, err := users.Create(ctx, &models.User{UserName: username}); err != nil {
			return fmt.Errorf("user create error: %w", err)
		}
	}

	return svc.RegisterPassword(ctx, username, password)
}
