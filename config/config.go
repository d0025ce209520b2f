package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dhcgn/mailrow/extract"
	"github.com/dhcgn/mailrow/normalize"
	"github.com/dhcgn/mailrow/runner"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. MAILROW_IMAP_HOST.
const EnvPrefix = "MAILROW"

// Config captures everything a scan run needs.
type Config struct {
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	UseKeyring         bool
	MboxPath           string
	StateDir           string
	Mailbox            string
	DecodeMIME         bool

	Anchor    string
	MaxTokens int

	Normalize      bool
	Markers        string
	EscapeArtifact string
	Separator      string
	Boundary       string
	Merges         []normalize.MergeRange

	OutputDir    string
	OutputPrefix string
	Header       []string

	SearchError runner.SearchErrorPolicy
	DryRun      bool
	LogLevel    string
	LogDir      string
	NoProgress  bool
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (yaml, toml or json); keys match the flag names")
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to MAILROW_IMAP_PASS, IMAP_PASS, then the keyring)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.Bool("use-keyring", false, "Look up the IMAP password in the OS keyring")
	flags.String("mbox", "", "Read an mbox archive instead of an IMAP account")
	flags.String("state-dir", defaultStateDir, "Directory for the seen journal of mbox archives")
	flags.String("mailbox", "INBOX", "Mailbox to scan (case sensitive)")
	flags.Bool("decode-mime", false, "Decode the text/plain MIME part instead of using the raw body text")
	flags.String("anchor", "Hi", "Keyword that precedes the data to extract")
	flags.Int("max-tokens", extract.DefaultMaxTokens, "Maximum number of words captured after the anchor")
	flags.Bool("normalize", false, "Clean, truncate and merge extracted tokens")
	flags.String("markers", normalize.DefaultMarkers, "Characters stripped from both ends of each token")
	flags.String("escape-artifact", normalize.DefaultEscapeArtifact, "Literal text removed from inside tokens")
	flags.String("separator", normalize.DefaultSeparator, "Tokens are cut at the first occurrence of this text")
	flags.String("boundary", "", "Last token (or phrase) to keep; everything after it is dropped")
	flags.StringArray("merge", nil, "Merge range anchor:from:to, joined with spaces (repeatable, from may be 'start'; ';'-separated in MAILROW_MERGE)")
	flags.String("output-dir", ".", "Directory for the monthly csv files")
	flags.String("output-prefix", "Your Filename", "Output file name prefix; files are named '<prefix> <Mon>.csv'")
	flags.StringSlice("header", []string{"Col 1", "Col 2", "Col 3"}, "Header columns written on the first day of the month (','-separated in MAILROW_HEADER)")
	flags.String("search-error", string(runner.SearchErrorAbort), "What a failed unseen search does: abort or degrade")
	flags.Bool("dry-run", false, "Log rows instead of writing them and leave messages unseen")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.Bool("no-progress", false, "Disable the progress spinner")

	return nil
}

// Load merges flags, the optional config file and the environment into a
// validated Config. Flags set on the command line win.
func Load(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		IMAPHost:           v.GetString("imap-host"),
		IMAPPort:           v.GetInt("imap-port"),
		IMAPUser:           v.GetString("imap-user"),
		IMAPPass:           v.GetString("imap-pass"),
		UseTLS:             v.GetBool("use-tls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		UseKeyring:         v.GetBool("use-keyring"),
		MboxPath:           v.GetString("mbox"),
		StateDir:           v.GetString("state-dir"),
		Mailbox:            v.GetString("mailbox"),
		DecodeMIME:         v.GetBool("decode-mime"),
		Anchor:             v.GetString("anchor"),
		MaxTokens:          v.GetInt("max-tokens"),
		Normalize:          v.GetBool("normalize"),
		Markers:            v.GetString("markers"),
		EscapeArtifact:     v.GetString("escape-artifact"),
		Separator:          v.GetString("separator"),
		Boundary:           v.GetString("boundary"),
		OutputDir:          v.GetString("output-dir"),
		OutputPrefix:       v.GetString("output-prefix"),
		Header:             stringList(v, "header", ","),
		SearchError:        runner.SearchErrorPolicy(strings.ToLower(v.GetString("search-error"))),
		DryRun:             v.GetBool("dry-run"),
		LogLevel:           strings.ToLower(v.GetString("log-level")),
		LogDir:             v.GetString("log-dir"),
		NoProgress:         v.GetBool("no-progress"),
	}

	for _, spec := range stringList(v, "merge", ";") {
		m, err := normalize.ParseMergeRange(spec)
		if err != nil {
			return Config{}, err
		}
		cfg.Merges = append(cfg.Merges, m)
	}

	if cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return Config{}, err
		}
		cfg.StateDir = dir
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stringList reads a list setting. Flags and config files already yield a
// list; a plain string (from the environment) is split on sep, since viper
// would otherwise split it on whitespace.
func stringList(v *viper.Viper, key, sep string) []string {
	raw, ok := v.Get(key).(string)
	if !ok {
		return v.GetStringSlice(key)
	}
	var out []string
	for _, item := range strings.Split(raw, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// UsesIMAP reports whether the run talks to an IMAP server.
func (c Config) UsesIMAP() bool {
	return c.MboxPath == ""
}

func validateConfig(cfg Config) error {
	if cfg.UsesIMAP() {
		if cfg.IMAPHost == "" {
			return errors.New("--imap-host or --mbox is required")
		}
		if cfg.IMAPUser == "" {
			return errors.New("--imap-user is required")
		}
		if cfg.IMAPPass == "" && !cfg.UseKeyring {
			return errors.New("IMAP password must be provided via --imap-pass, MAILROW_IMAP_PASS, IMAP_PASS or --use-keyring")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return errors.New("--imap-port must be between 1 and 65535")
		}
	}
	if strings.TrimSpace(cfg.Anchor) == "" {
		return errors.New("--anchor must not be empty")
	}
	if cfg.MaxTokens <= 0 || cfg.MaxTokens > 1000 {
		return errors.New("--max-tokens must be between 1 and 1000")
	}
	if cfg.OutputPrefix == "" {
		return errors.New("--output-prefix must not be empty")
	}
	if !cfg.Normalize && (cfg.Boundary != "" || len(cfg.Merges) > 0) {
		return errors.New("--boundary and --merge need --normalize")
	}

	switch cfg.SearchError {
	case runner.SearchErrorAbort, runner.SearchErrorDegrade:
	default:
		return fmt.Errorf("invalid --search-error: %s", cfg.SearchError)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mailrow", "state"), nil
}

// CredentialDir holds the file keyring backend.
func CredentialDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mailrow", "credentials"), nil
}
