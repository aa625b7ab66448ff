package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"topicrelay/internal/audit"
	"topicrelay/internal/channel"
	"topicrelay/internal/config"

	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run diagnostic checks on your topicrelay setup",
		Long: `Verifies that the configuration loads, the bot token is accepted by
Telegram, and the audit database and metrics address are usable. Reports
pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("topicrelay check v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			r := &checkResults{}

			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'topicrelay init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")
			r.pass("Routes", fmt.Sprintf("%d marker(s) from thread %d", len(cfg.Relay.Routes), cfg.Relay.SourceThreadID))

			switch {
			case !tokenConfigured(cfg.Telegram.Token):
				r.fail("Bot token", "not set")
			case offline:
				r.warn("Bot token", "set, not verified (--offline)")
			default:
				tg := channel.NewTelegram(channel.TelegramConfig{
					Token:          cfg.Telegram.Token,
					GroupID:        cfg.Relay.GroupID,
					RequestTimeout: 10 * time.Second,
					Logger:         logger,
				})
				if err := tg.Connect(); err != nil {
					r.fail("Bot token", err.Error())
				} else {
					r.pass("Bot token", "@"+tg.BotUsername())
				}
			}

			if cfg.Audit.Enabled {
				if err := checkDatabase(cfg.Audit.DBPath); err != nil {
					r.fail("Audit database", err.Error())
				} else {
					r.pass("Audit database", cfg.Audit.DBPath)
				}
			}

			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					r.warn("Metrics address", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
				} else {
					r.pass("Metrics address", cfg.Metrics.Addr+" available")
				}
			}

			if cfg.Log.File != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.Log.File)
				}
			}

			return r.summary()
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the Telegram getMe call")
	return cmd
}

type checkResults struct {
	passed, warned, failed int
}

func (r *checkResults) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *checkResults) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func (r *checkResults) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *checkResults) summary() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running topicrelay.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Printf("\ntopicrelay should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed! topicrelay is ready to run.\n")
	}
	return nil
}

// checkDatabase opens the audit store, which creates and migrates it.
func checkDatabase(dbPath string) error {
	store, err := audit.Open(dbPath, logger)
	if err != nil {
		return err
	}
	return store.Close()
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
