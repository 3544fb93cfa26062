package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fieldnotes.ai/internal/observation"
	"fieldnotes.ai/internal/persistence/store"
)

func dbCmd(args []string) {
	q := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		q = strings.TrimSpace(args[0])
		args = args[1:]
	}

	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	author := fs.String("author", "", "author filter (list)")
	limit := fs.Int("limit", 0, "result limit (list, 0 = all)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "observations.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	st, err := store.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch q {
	case "list":
		recs, err := st.LoadActive(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range filterRecords(recs, *author, *limit) {
			printJSON(r)
		}
	case "expire":
		n, err := st.DeactivateExpired(ctx, time.Now())
		if err != nil {
			fmt.Fprintln(os.Stderr, "expire:", err)
			os.Exit(1)
		}
		printJSON(map[string]int64{"deactivated": n})
	case "purge":
		n, err := st.PurgeInactive(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "purge:", err)
			os.Exit(1)
		}
		printJSON(map[string]int64{"purged": n})
	default:
		fmt.Fprintln(os.Stderr, "unknown db query:", q, "(want list|expire|purge)")
		os.Exit(2)
	}
}

func filterRecords(recs []observation.Record, author string, limit int) []observation.Record {
	var out []observation.Record
	for _, r := range recs {
		if author != "" && !strings.EqualFold(r.Author, author) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
