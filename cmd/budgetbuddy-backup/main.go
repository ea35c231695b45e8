// Command budgetbuddy-backup exports an owner's ledger to a JSON document
// or replaces it from one, working directly against the configured store.
//
//	budgetbuddy-backup export -owner alice [-out file.json] [-currency EUR]
//	budgetbuddy-backup import -owner alice -in file.json -confirm
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"budgetbuddy/internal/backend"
	"budgetbuddy/internal/backup"
	"budgetbuddy/internal/cli"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/services"
	"budgetbuddy/internal/session"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: budgetbuddy-backup export -owner <id> [-out file] [-currency code]")
	fmt.Fprintln(os.Stderr, "       budgetbuddy-backup import -owner <id> -in <file> -confirm")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	owner := fs.String("owner", "", "owner whose ledger is exported or replaced")
	out := fs.String("out", "", "export destination (default budgetbuddy_export_<date>.json)")
	in := fs.String("in", "", "import source")
	currency := fs.String("currency", "", "currency recorded in the export (default DEFAULT_CURRENCY)")
	confirm := fs.Bool("confirm", false, "confirm that import replaces all existing data")
	_ = fs.Parse(os.Args[2:])

	if *owner == "" {
		usage()
	}

	cfg, logger := cli.Bootstrap(log.ComponentBackup)
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	if backendCfg.Type == backend.MemoryBackend {
		logger.Error("Backups need a persistent backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	ctx := session.WithOwner(context.Background(), *owner)
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger, nil).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error())
		os.Exit(1)
	}

	opts := services.Options{
		Logger:          logger.WithComponent(log.ComponentLedger),
		DefaultCurrency: cfg.DefaultCurrency,
		Rates:           cfg.Rates(),
	}
	if res.Events != nil {
		opts.Publisher = res.Events
	}
	ledger, err := services.NewLedgerService(res.Store, opts)
	if err != nil {
		logger.Error("Failed to create ledger service", log.FieldError, err.Error())
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		err = runExport(ctx, ledger, *out, *currency)
	case "import":
		err = runImport(ctx, ledger, *in, *confirm)
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if cerr := res.Cleanup(); cerr != nil {
		logger.Error("Backend cleanup error", log.FieldError, cerr.Error())
	}
	if err != nil {
		logger.Error("Backup failed", log.FieldOperation, os.Args[1], log.FieldOwner, *owner, log.FieldError, err.Error())
		os.Exit(1)
	}
}

func runExport(ctx context.Context, ledger *services.LedgerService, path, currency string) error {
	doc, err := ledger.Export(ctx, currency)
	if err != nil {
		return err
	}
	if path == "" {
		path = backup.FileName(time.Now())
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := backup.Encode(f, doc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "exported %d transactions and %d budgets to %s\n", len(doc.Transactions), len(doc.Budgets), path)
	return nil
}

func runImport(ctx context.Context, ledger *services.LedgerService, path string, confirmed bool) error {
	if path == "" {
		return fmt.Errorf("-in is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := backup.Decode(f)
	if err != nil {
		return err
	}
	if err := ledger.Import(ctx, doc, confirmed); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "imported %d transactions and %d budgets from %s\n", len(doc.Transactions), len(doc.Budgets), path)
	return nil
}
