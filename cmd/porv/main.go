package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"por-go/internal/app"
	"por-go/internal/config"
	"por-go/internal/database"
	"por-go/internal/encryption"
	"por-go/internal/vault"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config from the default (or overridden) location.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:   "porv",
	Short: "Proof-of-reserves verification service",
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the verification HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := app.NewPORApp(cfg)
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.Serve(ctx)
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the database schema up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := database.NewStoreFromConfig(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		if err := store.MigrateUp(); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}

		fmt.Println("Database schema is up to date.")
		return nil
	},
}

// prover-version command
var proverVersionCmd = &cobra.Command{
	Use:   "prover-version",
	Short: "Show the installed prover version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := app.NewPORApp(cfg)
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		fmt.Println(a.Service().ProverVersion())
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Listen:     %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("Database:   %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Vault:      %s\n", cfg.Vault.Type)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate an age key pair for archive encryption",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		enc := encryption.NewAgeEncryptor(cfg.Encryption)
		if enc.IsConfigured() {
			return fmt.Errorf("keys already exist at %s", cfg.Encryption.PrivateKeyPath)
		}

		passphrase, err := readPassphrase("Passphrase for private key: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Access retained proof archives",
}

var archiveFetchCmd = &cobra.Command{
	Use:   "fetch CHECKSUM",
	Short: "Fetch a retained archive from the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checksum := args[0]
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = checksum + ".zip"
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		v, err := vault.NewVaultFromConfig(cmd.Context(), cfg.Vault)
		if err != nil {
			return fmt.Errorf("creating vault: %w", err)
		}
		if v == nil {
			return fmt.Errorf("no vault configured")
		}

		out, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer out.Close()

		switch cfg.Encryption.Type {
		case "", "none":
			if err := v.Get(checksum, out); err != nil {
				return fmt.Errorf("fetching archive: %w", err)
			}
		default:
			enc := encryption.NewAgeEncryptor(cfg.Encryption)
			passphrase, err := readPassphrase("Passphrase for private key: ")
			if err != nil {
				return err
			}
			dec, err := enc.Unlock(passphrase)
			if err != nil {
				return fmt.Errorf("unlocking private key: %w", err)
			}

			pr, pw, err := os.Pipe()
			if err != nil {
				return fmt.Errorf("creating pipe: %w", err)
			}

			fetchErr := make(chan error, 1)
			go func() {
				defer pw.Close()
				fetchErr <- v.Get(checksum, pw)
			}()

			if err := dec.Decrypt(pr, out); err != nil {
				return fmt.Errorf("decrypting archive: %w", err)
			}
			if err := <-fetchErr; err != nil {
				return fmt.Errorf("fetching archive: %w", err)
			}
		}

		fmt.Printf("Archive written to %s\n", output)
		return nil
	},
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(data), nil
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)

	archiveCmd.AddCommand(archiveFetchCmd)
	archiveFetchCmd.Flags().StringP("output", "o", "", "Output file (default CHECKSUM.zip)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(proverVersionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(archiveCmd)
}
