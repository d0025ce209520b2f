package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dhcgn/mailrow/config"
	"github.com/dhcgn/mailrow/credential"
	"github.com/dhcgn/mailrow/imap"
	"github.com/dhcgn/mailrow/mbox"
	"github.com/dhcgn/mailrow/model"
	"github.com/dhcgn/mailrow/runner"
	"github.com/dhcgn/mailrow/state"
)

// MailClient is a connected mailbox that must be closed after the run.
type MailClient interface {
	runner.MailClient
	Close() error
}

// PasswordSource looks up a stored password.
type PasswordSource interface {
	Password(host, user string) (string, error)
}

// Connect opens the mbox archive or dials the IMAP server named in cfg.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (MailClient, error) {
	if !cfg.UsesIMAP() {
		tracker, err := state.NewFileTracker(cfg.StateDir)
		if err != nil {
			return nil, fmt.Errorf("state tracker: %w", err)
		}
		if logger != nil {
			logger.Debug("seen journal opened", "path", tracker.Path())
		}
		client, err := mbox.Open(mbox.Options{Path: cfg.MboxPath, DecodeMIME: cfg.DecodeMIME}, tracker, logger)
		if err != nil {
			_ = tracker.Close()
			return nil, err
		}
		return client, nil
	}

	password := cfg.IMAPPass
	if password == "" && cfg.UseKeyring {
		dir, err := config.CredentialDir()
		if err != nil {
			return nil, err
		}
		store, err := credential.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrConnection, err)
		}
		password, err = lookupPassword(store, cfg.IMAPHost, cfg.IMAPUser)
		if err != nil {
			return nil, err
		}
	}

	client, err := imap.Dial(ctx, imap.Options{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.IMAPUser,
		Password:           password,
		UseTLS:             cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		DecodeMIME:         cfg.DecodeMIME,
	}, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func lookupPassword(src PasswordSource, host, user string) (string, error) {
	password, err := src.Password(host, user)
	if errors.Is(err, credential.ErrNotFound) {
		return "", fmt.Errorf("no keyring password for %s (store one with 'mailrow keyring set'): %w", credential.Key(host, user), model.ErrConnection)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrConnection, err)
	}
	return password, nil
}
