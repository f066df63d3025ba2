package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/daniela2708/ganaderia/pkg/importer"
)

// sourcesDB lives in the data dir; the leading dot keeps the watcher off it.
const sourcesDB = ".sources.db"

func cmdImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	cfgPath, envFile := commonFlags(fs)
	source := fs.String("source", "", "adapter ID to import (e.g. ica-bovinos)")
	all := fs.Bool("all", false, "import every source")
	setURL := fs.String("set-url", "", "store a new URL for -source instead of importing")
	fs.Parse(args)

	cfg, logger := mustConfig(*cfgPath, *envFile)

	sdb, err := openSources(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sources db: %v\n", err)
		os.Exit(1)
	}
	defer sdb.Close()

	if *setURL != "" {
		if *source == "" {
			fmt.Fprintln(os.Stderr, "-set-url requires -source")
			os.Exit(2)
		}
		if err := sdb.SetURL(*source, *setURL); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("[%s] source URL set to %s\n", *source, *setURL)
		return
	}

	if !*all && *source == "" {
		listSources(sdb)
		return
	}

	targets := importer.All()
	if !*all {
		a, err := importer.Get(*source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			listSources(sdb)
			os.Exit(1)
		}
		targets = []importer.Adapter{a}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	failed := 0
	for _, a := range targets {
		url, err := sdb.GetURL(a.ID())
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] ERROR (url): %v\n", a.ID(), err)
			failed++
			continue
		}
		fmt.Printf("[%s] importing %s\n", a.ID(), url)
		res, err := a.Import(ctx, url, cfg.DataDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] ERROR: %v\n", a.ID(), err)
			failed++
			continue
		}
		if err := sdb.RecordImport(a.ID(), res.Rows); err != nil {
			logger.Warn("record import", "adapter", a.ID(), "error", err)
		}
		fmt.Printf("[%s] OK -> %s (%d rows, %d skipped, %d merged names)\n",
			a.ID(), res.Path, res.Rows, res.Skipped, res.Merged)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func listSources(sdb *importer.SourceDB) {
	sources, err := sdb.ListSources()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return
	}
	fmt.Println("Available sources:")
	fmt.Println()
	for _, src := range sources {
		status := ""
		if p := src.LastProbe; p != nil {
			status = fmt.Sprintf("  [%d %s]", p.Status, p.At.Format(time.DateOnly))
		}
		rows := ""
		if !src.ImportedAt.IsZero() {
			rows = fmt.Sprintf("  imported %s, %d rows", src.ImportedAt.Format(time.DateOnly), src.ImportedRows)
		}
		fmt.Printf("  %-12s  %-8s  %s%s%s\n", src.AdapterID, src.Table, src.URL, status, rows)
	}
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ganaderia import -source <id>")
	fmt.Println("  ganaderia import -all")
	fmt.Println("  ganaderia import -source <id> -set-url <csv or zip url>")
}
