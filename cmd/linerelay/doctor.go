package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"linerelay/internal/record"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the relay setup",
		Long: `Verifies that the configuration, the local record database, the
object directory and the listen port are usable. AWS backends are only
checked for configuration, not reachability.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("linerelay doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r report

			cfg, err := loadConfig()
			if err != nil {
				r.fail("Config", err.Error())
				return r.finish()
			}
			r.pass("Config", "valid")

			if loc, err := cfg.General.Location(); err == nil {
				r.pass("Timezone", loc.String())
			}

			switch cfg.Records.Backend {
			case "sqlite":
				if err := checkDatabase(cfg.Records.DBPath, cfg.Records.TableName); err != nil {
					r.fail("Records", err.Error())
				} else {
					r.pass("Records", "sqlite "+cfg.Records.DBPath)
				}
			default:
				r.pass("Records", "dynamodb table "+cfg.Records.TableName)
			}

			switch cfg.Objects.Backend {
			case "filesystem":
				if err := checkWritableDir(filepath.Join(cfg.Objects.RootDir, cfg.Objects.BucketName)); err != nil {
					r.fail("Objects", err.Error())
				} else {
					r.pass("Objects", "filesystem "+cfg.Objects.RootDir)
				}
			default:
				r.pass("Objects", "s3 bucket "+cfg.Objects.BucketName)
			}

			if cfg.Classifier.Active() {
				if cfg.Objects.Backend != "s3" {
					r.fail("Classifier", "requires objects.backend=s3")
				} else {
					r.pass("Classifier", "rekognition")
				}
			}

			if cfg.LINE.ChannelSecret == "" {
				r.warn("Signature", "line.channelSecret unset, webhook signatures are not verified")
			} else {
				r.pass("Signature", "verified")
			}

			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				r.warn("Listen port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				r.pass("Listen port", fmt.Sprintf(":%d available", cfg.Server.Port))
			}

			return r.finish()
		},
	}
}

type report struct {
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func (r *report) finish() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

// checkDatabase opens the record store, which creates and migrates it, and
// scans it once.
func checkDatabase(dbPath, table string) error {
	store, err := record.NewSQLiteStore(dbPath, table, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.Scan(ctx); err != nil {
		return fmt.Errorf("cannot read: %w", err)
	}
	return nil
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	f.Close()
	return os.Remove(f.Name())
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
