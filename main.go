package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/corosback/backup"
	"github.com/corosback/client"
	"github.com/corosback/config"
	"github.com/corosback/logging"
	"github.com/corosback/report"
)

func main() {
	// .env is optional; settings also come from corosback.yaml and
	// COROSBACK_* environment variables.
	_ = godotenv.Load()

	dirFlag := flag.String("dir", "", "backup directory (overrides config)")
	emailFlag := flag.String("email", "", "COROS account email (overrides config)")
	formatsFlag := flag.String("formats", "", "comma separated export formats, e.g. fit,tcx")
	openFlag := flag.Bool("open", false, "open the report in the browser (report mode)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *dirFlag != "" {
		cfg.BackupDir = *dirFlag
	}
	if *emailFlag != "" {
		cfg.Email = *emailFlag
	}
	if *formatsFlag != "" {
		cfg.Formats = strings.Split(*formatsFlag, ",")
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})

	mode := flag.Arg(0)
	if mode == "" {
		mode = "backup"
	}
	switch mode {
	case "backup":
		os.Exit(runBackup(cfg))
	case "report":
		os.Exit(runReport(cfg, *openFlag))
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q (want backup or report)\n", mode)
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: corosback [flags] [backup|report]

Incrementally backs up COROS Training Hub activities to local disk. The
first run downloads everything; later runs only download new activities.

Flags:
`)
	flag.PrintDefaults()
}

func runBackup(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	email := cfg.Email
	if email == "" {
		var err error
		if email, err = promptLine("COROS email: "); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return 1
		}
	}
	password := cfg.Password
	if password == "" {
		var err error
		if password, err = promptPassword("COROS password: "); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return 1
		}
	}

	remote := client.New(client.Config{
		BaseURL:           cfg.BaseURL,
		PageSize:          cfg.PageSize,
		Timeout:           cfg.RequestTimeout,
		RetryAttempts:     cfg.RetryAttempts,
		RetryDelay:        cfg.RetryDelay,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	store := backup.NewStateStore(filepath.Join(cfg.BackupDir, backup.StateFileName))
	orch := backup.NewOrchestrator(remote, store, cfg.BackupDir, cfg.ExportFormats(), cfg.Workers)

	fmt.Printf("Starting backup to %s...\n", cfg.BackupDir)
	summary, err := orch.Run(ctx, email, password)
	if err != nil {
		if summary != nil {
			printSummary(summary)
		}
		logging.Error().Err(err).Msg("backup failed")
		return 1
	}

	printSummary(summary)
	if summary.Failed > 0 {
		return 1
	}
	return 0
}

func runReport(cfg *config.Config, open bool) int {
	outPath := filepath.Join(cfg.BackupDir, report.DefaultFileName)
	if err := report.Generate(cfg.BackupDir, outPath); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	fmt.Println("Report written to", outPath)

	if open {
		if err := report.Open(outPath); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to open browser:", err)
			fmt.Println("Open the report manually:", outPath)
		}
	}
	return 0
}

func printSummary(s *backup.RunSummary) {
	line := strings.Repeat("=", 60)
	fmt.Println(line)
	fmt.Println("Backup Summary")
	fmt.Println(line)
	fmt.Printf("Activities found:     %d\n", s.Found)
	fmt.Printf("  - Downloaded:       %d\n", s.Downloaded)
	fmt.Printf("  - Skipped (cached): %d\n", s.Skipped)
	fmt.Printf("  - Failed:           %d\n", s.Failed)
	if len(s.FailedIDs) > 0 {
		fmt.Printf("Failed activity ids:  %s\n", strings.Join(s.FailedIDs, ", "))
	}
	fmt.Println(line)
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads the password without echo when stdin is a
// terminal. The value goes straight to the login call and is never
// written to config, state or logs.
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(prompt)
	}
	fmt.Print(prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
