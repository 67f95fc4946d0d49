// Command huntctl is an operator tool for treasure hunt maps, activity
// archives and test identity tokens.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/playperu/treasurehunt/internal/activity"
	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/identity"
	"github.com/playperu/treasurehunt/internal/mapdef"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "validate":
		validateCmd(os.Args[2:])
	case "archive":
		archiveCmd(os.Args[2:])
	case "token":
		tokenCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: huntctl validate|archive|token [flags]")
}

func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	path := fs.String("map", "", "map definition file (YAML or JSON)")
	_ = fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "missing -map")
		os.Exit(2)
	}
	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	def, err := mapdef.Parse(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid:", err)
		os.Exit(1)
	}

	counts := map[hunt.NodeKind]int{}
	groups := map[string]bool{}
	for _, n := range def.Nodes {
		counts[n.Kind]++
		if n.GroupID != "" {
			groups[n.GroupID] = true
		}
	}
	fmt.Printf("%s: %d nodes (%d start, %d challenge, %d checkpoint), %d location groups\n",
		def.Name, len(def.Nodes),
		counts[hunt.NodeStart], counts[hunt.NodeChallenge], counts[hunt.NodeCheckpoint], len(groups))
}

func archiveCmd(args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	path := fs.String("in", "", "archive file (.jsonl.zst)")
	team := fs.String("team", "", "only show activity for this team (optional)")
	_ = fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}
	f, err := os.Open(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer f.Close()

	acts, err := activity.ReadArchive(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, a := range acts {
		if *team != "" && a.TeamID != *team {
			continue
		}
		_ = enc.Encode(a)
	}
}

func tokenCmd(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	key := fs.String("key", os.Getenv("IDENTITY_KEY"), "identity signing key (defaults to $IDENTITY_KEY)")
	id := fs.String("id", "", "caller id, e.g. discord:1234")
	name := fs.String("name", "", "display name")
	roles := fs.String("roles", "", "comma-separated roles")
	source := fs.String("source", identity.SourceWeb, "web or chat")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	_ = fs.Parse(args)

	if *key == "" || *id == "" {
		fmt.Fprintln(os.Stderr, "missing -key or -id")
		os.Exit(2)
	}
	caller := hunt.Caller{ID: *id, Name: *name, Source: *source}
	if *roles != "" {
		caller.Roles = strings.Split(*roles, ",")
	}
	tok, err := identity.NewVerifier(*key).Sign(caller, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign:", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
