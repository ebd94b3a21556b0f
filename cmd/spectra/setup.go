package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"spectra/pkg/config"
	"spectra/pkg/logx"
	"spectra/pkg/persistence"
)

// envProjectPassword unlocks the encrypted secrets file without a prompt.
const envProjectPassword = "SPECTRA_PASSWORD"

// unlockPassword is the password that opened the secrets file, if one did.
//
//nolint:gochecknoglobals // set once per process by decryptSecrets
var unlockPassword string

// setupProject loads config, routes logs to the rotating file and decrypts secrets.
func setupProject() (config.Config, error) {
	if err := config.LoadConfig(projectDir); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return config.Config{}, err
	}

	logsDir, err := config.ResolvePath(cfg.Logs.Dir)
	if err != nil {
		return config.Config{}, err
	}
	if err := logx.InitializeLogFile(logsDir, cfg.Logs.MaxSizeMB, cfg.Logs.Backups, tee); err != nil {
		return config.Config{}, fmt.Errorf("failed to initialize log file: %w", err)
	}

	level := cfg.Logs.Level
	if logLevel != "" {
		if _, ok := logx.LookupLevel(logLevel); !ok {
			return config.Config{}, fmt.Errorf("unknown log level %q", logLevel)
		}
		level = logLevel
	}
	logx.SetLevel(logx.ParseLevel(level))

	if err := decryptSecrets(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// decryptSecrets loads .spectra/secrets.json.enc into memory when present.
func decryptSecrets() error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}
	password := os.Getenv(envProjectPassword)
	if password == "" {
		var err error
		password, err = readPassword("Project password: ")
		if err != nil {
			return fmt.Errorf("secrets file present but no password: %w", err)
		}
	}
	secrets, err := config.DecryptSecretsFile(projectDir, password)
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	unlockPassword = password
	return nil
}

// readPassword prompts on the terminal without echo.
func readPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := string(b)
	for i := range b {
		b[i] = 0
	}
	return password, nil
}

// msfPassword resolves the RPC password: flag, then secrets/env, then prompt.
func msfPassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v, err := config.GetSecret(config.EnvMSFPassword); err == nil {
		return v, nil
	}
	return readPassword("msfrpcd password: ")
}

// openHistory opens the run-history database named in cfg.
func openHistory(cfg config.Config) (*sql.DB, *persistence.DatabaseOperations, error) {
	path, err := config.ResolvePath(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	db, err := persistence.InitializeDatabase(path)
	if err != nil {
		return nil, nil, err
	}
	return db, persistence.NewDatabaseOperations(db), nil
}

// askYesNo reads one line from in and accepts y/yes. Cancelling ctx abandons
// the read; the reader goroutine exits with the process.
func askYesNo(ctx context.Context, in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)

	type answer struct {
		line string
		err  error
	}
	answers := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		answers <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(out)
		return false, ctx.Err()
	case a := <-answers:
		if a.err != nil && a.line == "" {
			return false, fmt.Errorf("failed to read answer: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
