package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dark0711/flogfs/internal/config"
	"github.com/dark0711/flogfs/internal/flash"
	"github.com/dark0711/flogfs/internal/fslock"
	flogfscore "github.com/dark0711/flogfs/internal/flogfs"
	"github.com/dark0711/flogfs/pkg/flogfs"
)

var (
	verbose   bool
	quiet     bool
	sessionID string
)

var rootCmd = &cobra.Command{
	Use:   "flogfs",
	Short: "Drive a simulated flogfs NAND image",
	Long: `flogfs is a command-line demo harness for the flogfs log-structured
flash filesystem. It drives an in-memory simulated NAND device
(internal/flash.SimFlash) through format, mount, and file operations,
for exercising the crash-recovery and wear-leveling behavior described
in spec.md without real hardware.

Each command starts from a freshly erased in-memory medium.

Commands:
  format   Erase the simulated medium and write a fresh filesystem
  mount    Format a fresh medium and reconstruct filesystem state from it
  ls       List every live file on a freshly formatted demo medium
  cat      Write --data to a new file, then print it back
  write    Create a file on a freshly formatted medium and write --data to it
  rm       Write then delete a file, demonstrating the delete path
  fsck     Format, mount, and summarize the resulting filesystem state`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose diagnostic logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all but error output")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session-id", "", "correlation ID for this invocation (default: a fresh UUID)")
}

// logger builds the *slog.Logger each subcommand's Filesystem logs
// through, honoring --verbose/--quiet and tagging every line with the
// invocation's session ID for audit-log correlation across a
// long-running fsck/format.
func logger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("session_id", sessionID)
}

// openFilesystem loads configuration and stands up a fresh simulated
// medium and a Filesystem over it. The simulated image is process-local
// (internal/flash.SimFlash keeps no on-disk representation): each CLI
// invocation starts from a newly erased medium, so format/mount/fsck
// only demonstrate the recovery machinery within a single run (e.g. via
// --max-commits-style fault injection exercised in tests, not exposed
// here), not across separate process invocations.
func openFilesystem() (*flogfs.Filesystem, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger()
	sim := flash.New(cfg.FlashConfig(), log)
	lock := fslock.New()
	geo := flogfscore.Geometry{
		NumBlocks:      cfg.NumBlocks,
		PagesPerBlock:  cfg.PagesPerBlock,
		SectorsPerPage: cfg.SectorsPerPage,
	}
	fsys := flogfs.New(geo, sim, lock, log)
	if err := fsys.Init(); err != nil {
		return nil, err
	}
	return fsys, nil
}
