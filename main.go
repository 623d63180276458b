package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"library-catalog/config"
	"library-catalog/library"
	"library-catalog/logging"
	"library-catalog/session"
)

var (
	// Global flags
	cfgFile   string
	booksFile string
	usersFile string
	verbose   bool

	cfg    *config.Config
	logger *zap.Logger

	newLogger = logging.New
)

var rootCmd = &cobra.Command{
	Use:   "library",
	Short: "Library catalog and membership manager",
	Long: `library keeps a book catalog and a user list in two flat files.

Run without a subcommand to start the interactive session, or use the
book, user and snapshot commands for one-shot operations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if booksFile != "" {
			c.BooksFile = booksFile
		}
		if usersFile != "" {
			c.UsersFile = usersFile
		}
		cfg = c

		logger, err = newLogger(cfg.LogLevel, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	RunE: runSession,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start the interactive login session",
	Args:  cobra.NoArgs,
	RunE:  runSession,
}

func runSession(cmd *cobra.Command, args []string) error {
	mgr := openManager(cmd)
	if _, err := mgr.Bootstrap(); err != nil {
		return err
	}
	return session.NewTerminal(mgr, cfg.PageSize, logger).Run()
}

// openManager loads both stores. A store that cannot be read starts empty
// and the problem is reported on stderr.
func openManager(cmd *cobra.Command) *library.LibraryManager {
	mgr, err := library.NewLibraryManager(library.Options{
		BooksPath:     cfg.BooksFile,
		UsersPath:     cfg.UsersFile,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		SnapshotPath:  cfg.SnapshotFile,
		Logger:        logger,
	})
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
	return mgr
}

// syncLogger flushes the logger. It runs after every command, including
// ones whose RunE failed.
func syncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}

func init() {
	cobra.OnFinalize(syncLogger)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&booksFile, "books", "", "book catalog file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&usersFile, "users", "", "user file (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(sessionCmd, initCmd, bookCmd, userCmd, snapshotCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
