// Command splitbill splits a single receipt from the terminal.
//
// The receipt comes either from a scanned link read from stdin (one line per
// scan, as printed by most USB code scanners) or from a raw resolution
// response on disk:
//
//	splitbill -resolver http://localhost:9000/resolve -n 3
//	splitbill -file receipt.json -mode itemized -n 2 -assign 1=item-1,item-2 -assign 2=item-3
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mmynk/receiptsplit/internal/allocation"
	"github.com/mmynk/receiptsplit/internal/export"
	"github.com/mmynk/receiptsplit/internal/ingest"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
	"github.com/mmynk/receiptsplit/internal/payref"
	"github.com/mmynk/receiptsplit/internal/resolver"
	"github.com/mmynk/receiptsplit/internal/scan"
	"github.com/mmynk/receiptsplit/internal/visualcode"
	"github.com/mmynk/receiptsplit/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "splitbill:", err)
		}
		os.Exit(1)
	}
}

// assignments maps a 1-based participant number to item ids.
type assignments map[int][]string

func (a assignments) String() string { return fmt.Sprint(map[int][]string(a)) }

func (a assignments) Set(v string) error {
	n, items, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("expected N=item,item got %q", v)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil || idx < 1 {
		return fmt.Errorf("invalid participant number %q", n)
	}
	for _, id := range strings.Split(items, ",") {
		if id = strings.TrimSpace(id); id != "" {
			a[idx] = append(a[idx], id)
		}
	}
	return nil
}

type options struct {
	resolverURL string
	file        string
	total       string
	count       int
	mode        string
	origin      string
	names       string
	xlsx        string
	codes       bool
	timeout     time.Duration
	logLevel    string
	assign      assignments
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{assign: assignments{}}
	fs := flag.NewFlagSet("splitbill", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.resolverURL, "resolver", os.Getenv("RESOLVER_URL"), "receipt resolution endpoint")
	fs.StringVar(&opts.file, "file", "", "read a resolution response from this file instead of scanning")
	fs.StringVar(&opts.total, "total", "", "split a typed total without a receipt")
	fs.IntVar(&opts.count, "n", 2, "number of participants")
	fs.StringVar(&opts.mode, "mode", string(models.SplitModeEqual), "split mode: equal or itemized")
	fs.StringVar(&opts.origin, "origin", payref.DefaultOrigin, "origin for payment references")
	fs.StringVar(&opts.names, "names", "", "comma-separated participant names")
	fs.StringVar(&opts.xlsx, "xlsx", "", "write the split to this workbook")
	fs.BoolVar(&opts.codes, "codes", false, "print a visual code for every reference")
	fs.DurationVar(&opts.timeout, "timeout", 15*time.Second, "resolution timeout")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	fs.Var(opts.assign, "assign", "itemized selection N=item,item (repeatable)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(logging.NewHandler(stderr, logging.ParseLevel(opts.logLevel), "text")))

	mode, ok := models.ParseSplitMode(opts.mode)
	if !ok {
		return fmt.Errorf("unknown split mode %q", opts.mode)
	}

	receipt, err := loadReceipt(ctx, opts, stdin, stderr)
	if err != nil {
		return err
	}
	if receipt == nil {
		fmt.Fprintln(stdout, "Link processed")
		return nil
	}

	engine := allocation.New(*receipt, payref.New(opts.origin))
	if err := engine.Generate(opts.count, mode); err != nil {
		return err
	}
	if err := applyEdits(engine, opts); err != nil {
		return err
	}

	printSplit(stdout, engine, opts.codes)

	if opts.xlsx != "" {
		if err := writeWorkbook(opts.xlsx, engine); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "\nSaved %s\n", opts.xlsx)
	}
	return nil
}

// loadReceipt returns nil without error when a scanned link was acknowledged
// but did not describe a receipt.
func loadReceipt(ctx context.Context, opts *options, stdin io.Reader, stderr io.Writer) (*models.Receipt, error) {
	switch {
	case opts.total != "":
		return ingest.Manual(opts.total), nil
	case opts.file != "":
		raw, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read receipt: %w", err)
		}
		return ingest.Ingest(raw)
	}

	session := scan.NewSession(scan.NewLineOpener(stdin), scan.Bell{W: stderr})
	defer session.Close()

	fmt.Fprintln(stderr, "Waiting for a scan...")
	link, err := session.Scan(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Scanned", "link", link)

	res := resolver.New(resolver.NewClient(opts.resolverURL, &http.Client{Timeout: opts.timeout}))
	result, err := res.Resolve(ctx, link)
	if err != nil {
		var rerr *resolver.Error
		if errors.As(err, &rerr) {
			return nil, errors.New(rerr.UserMessage())
		}
		return nil, err
	}
	if result.Acknowledged {
		slog.Info("Link acknowledged", "reason", result.Reason)
		return nil, nil
	}
	return result.Receipt, nil
}

func applyEdits(engine *allocation.Engine, opts *options) error {
	participants := engine.Participants()

	if opts.names != "" {
		for i, name := range strings.Split(opts.names, ",") {
			if i >= len(participants) {
				break
			}
			if err := engine.RenameParticipant(participants[i].ID, name); err != nil {
				return err
			}
		}
	}

	for n, items := range opts.assign {
		if n > len(participants) {
			return fmt.Errorf("participant %d does not exist", n)
		}
		for _, itemID := range items {
			if err := engine.ToggleItem(participants[n-1].ID, itemID); err != nil {
				return err
			}
		}
	}
	return nil
}

func printSplit(w io.Writer, engine *allocation.Engine, codes bool) {
	receipt := engine.Receipt()
	if receipt.Metadata.StoreName != "" {
		fmt.Fprintln(w, receipt.Metadata.StoreName)
	}
	fmt.Fprintf(w, "Receipt %s, total %s, %d items\n\n", receipt.ID, money.FormatAmount(receipt.Total), len(receipt.Items))

	for _, p := range engine.Participants() {
		fmt.Fprintf(w, "%-16s %12s  %s\n", p.Name, money.FormatAmount(p.Amount), p.Reference)
		if engine.Mode() == models.SplitModeItemized {
			for _, item := range engine.SelectedItems(p.ID) {
				fmt.Fprintf(w, "    %s %s\n", item.Name, money.FormatAmount(item.LineTotal))
			}
		}
		if codes {
			fmt.Fprint(w, visualcode.Render(p.Reference).String())
		}
	}

	totals := engine.Totals()
	fmt.Fprintf(w, "\nAssigned %s of %s", money.FormatAmount(totals.Assigned), money.FormatAmount(totals.Total))
	if totals.Balance != allocation.BalanceBalanced {
		fmt.Fprintf(w, " (%s by %s)", totals.Balance, money.FormatAmount(totals.Difference.Abs()))
	}
	fmt.Fprintln(w)
}

func writeWorkbook(path string, engine *allocation.Engine) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	if err := export.Write(f, engine.Receipt(), engine.Snapshot()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
