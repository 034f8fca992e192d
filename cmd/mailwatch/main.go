// Command mailwatch watches mail folders and pushes notifications about
// new, read, and deleted messages to an external consumer over a socket
// or stdout.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mailwatch/mailwatch/internal/credential"
	"github.com/mailwatch/mailwatch/internal/engine"
	"github.com/mailwatch/mailwatch/internal/mailclient"
	"github.com/mailwatch/mailwatch/internal/model"
	"github.com/mailwatch/mailwatch/internal/notify"
	"github.com/mailwatch/mailwatch/internal/setup"
	"github.com/mailwatch/mailwatch/internal/store"
	"github.com/mailwatch/mailwatch/internal/watch"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("mailwatch: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the configuration file")
	configure := flag.Bool("configure", false, "run the interactive setup and exit")
	setPassword := flag.String("set-password", "", "store the password for the given account id (read from stdin) and exit")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	if *setPassword != "" {
		return storePassword(*setPassword)
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts configured in %s", *configPath)
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	firstRunDone, err := st.FirstRunDone(ctx)
	if err != nil {
		return err
	}
	if *configure || !firstRunDone {
		if err := setup.Run(ctx, client, st); err != nil {
			return err
		}
		if *configure {
			return nil
		}
	}

	watched, err := st.GetWatchedFolders(ctx)
	if err != nil {
		return err
	}
	if len(watched) == 0 {
		logger.Printf("no watched folders configured, exiting")
		return nil
	}

	notifier, err := buildNotifier(ctx, cfg, st)
	if err != nil {
		return err
	}

	eng := engine.New(st, client, notifier, engine.Options{
		RetryAttempts: cfg.StartupRetryAttempts,
		Logger:        logger,
	})

	interval := time.Duration(cfg.PollIntervalSec) * time.Second
	watcher := watch.New(client, eng, st, interval, logger)

	// SIGHUP reloads the watched-folder configuration, so a concurrent
	// `mailwatch -configure` run can take effect without a restart.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			logger.Printf("SIGHUP received, reloading configuration")
			watcher.TriggerRescan()
		}
	}()

	logger.Printf("watching %d folder(s), polling every %s", len(watched), interval)
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// storePassword reads a password from stdin and saves it in the system
// keyring under the account id.
func storePassword(accountID string) error {
	fmt.Fprintf(os.Stderr, "password for %s: ", accountID)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		return fmt.Errorf("no password given")
	}
	password := strings.TrimSpace(scanner.Text())
	if password == "" {
		return fmt.Errorf("no password given")
	}
	return credential.Set(accountID, password)
}

// buildClient assembles the IMAP client from the account configuration,
// resolving each account's password from the system keyring.
func buildClient(cfg *model.AppConfig) (*mailclient.IMAP, error) {
	settings := make([]mailclient.AccountSettings, 0, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		password, err := credential.Get(acct.ID)
		if err != nil {
			return nil, fmt.Errorf(
				"no stored password for account %s (store one with -set-password %s): %w",
				acct.ID, acct.ID, err,
			)
		}
		settings = append(settings, mailclient.AccountSettings{
			ID:              acct.ID,
			Name:            acct.Name,
			Type:            acct.Type,
			Host:            acct.Host,
			Port:            acct.Port,
			Username:        acct.Username,
			Password:        password,
			TLS:             acct.TLS,
			FavoriteFolders: acct.FavoriteFolders,
			Identities:      acct.Identities,
		})
	}
	return mailclient.NewIMAP(settings), nil
}

// buildNotifier picks the notification channel: a socket endpoint when one
// is configured, stdout frames otherwise.
func buildNotifier(ctx context.Context, cfg *model.AppConfig, st store.Store) (engine.Notifier, error) {
	if cfg.Notify.Address == "" {
		return notify.NewWriterNotifier(os.Stdout), nil
	}

	connType, err := st.GetConnectionType(ctx)
	if err != nil {
		return nil, err
	}
	return notify.NewSocketNotifier(cfg.Notify.Network, cfg.Notify.Address, connType), nil
}
