package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	persistlog "fieldnotes.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "sweep":
			sweepCmd(os.Args[2:])
			return
		}
	}
	dbCmd(append([]string{"list"}, os.Args[1:]...))
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	event := fs.String("event", "", "only entries with this event (e.g. EXPIRE)")
	id := fs.Int64("id", 0, "only entries for this observation id")
	_ = fs.Parse(args)

	entries, err := persistlog.ReadAudit(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if *event != "" && !strings.EqualFold(e.Event, *event) {
			continue
		}
		if *id != 0 && e.ID != *id {
			continue
		}
		printJSON(e)
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
