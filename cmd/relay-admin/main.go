package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ngoyal88/auditrelay/pkg/cache"
	"github.com/ngoyal88/auditrelay/pkg/config"
	"github.com/ngoyal88/auditrelay/pkg/storage"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if err := config.LoadEnvFile(config.EnvFile); err != nil {
		log.Fatalf("failed to read %s: %v", config.EnvFile, err)
	}

	cmd := os.Args[1]
	switch cmd {
	case "init":
		token, err := generateToken()
		if err != nil {
			log.Fatalf("failed to generate token: %v", err)
		}
		if err := writeEnvVar(config.EnvFile, "PROXY_TOKEN", token); err != nil {
			log.Fatalf("failed to write .env: %v", err)
		}
		fmt.Printf("ProxyToken: %s\nSaved to .env (PROXY_TOKEN).\n", token)
	case "logs":
		store, closeFn := mustOpenStore()
		defer closeFn()
		handleLogs(store)
	case "show":
		store, closeFn := mustOpenStore()
		defer closeFn()
		handleShow(store)
	case "prune":
		store, closeFn := mustOpenStore()
		defer closeFn()
		handlePrune(store)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("relay-admin commands:")
	fmt.Println("  init                 Generate PROXY_TOKEN and store in .env")
	fmt.Println("  logs                 List captured exchanges, newest first")
	fmt.Println("     flags: -limit -before")
	fmt.Println("  show <id>            Print one captured exchange")
	fmt.Println("     flags: -format json|yaml")
	fmt.Println("  prune                Delete exchanges older than N days")
	fmt.Println("     flags: -days")
}

func mustOpenStore() (*storage.LogStore, func()) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	kv, _, err := cache.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Storage.Backend, err)
	}
	return storage.NewLogStore(kv, cfg.Listing.MaxLimit), func() { kv.Close() }
}

func generateToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "rt_" + base64.RawURLEncoding.EncodeToString(b), nil
}

// writeEnvVar sets key=value in the env file at path, replacing an existing
// assignment or appending a new one.
func writeEnvVar(path, key, value string) error {
	entry := fmt.Sprintf("%s=%s", key, value)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return os.WriteFile(path, []byte(entry+"\n"), 0600)
	}

	lines := strings.Split(string(data), "\n")
	replaced := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), key+"=") {
			lines[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		if n := len(lines); n > 0 && lines[n-1] == "" {
			lines = lines[:n-1]
		}
		lines = append(lines, entry)
	}

	content := strings.Join(lines, "\n")
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0600)
}

func handleLogs(store *storage.LogStore) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	limit := fs.Int("limit", config.DefaultListLimit, "Number of records")
	before := fs.Int64("before", 0, "Only records older than this epoch-ms timestamp (0 = newest)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	var cursor *int64
	if *before > 0 {
		cursor = before
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logs, err := store.List(ctx, *limit, cursor)
	if err != nil {
		log.Fatalf("failed to list logs: %v", err)
	}
	if len(logs) == 0 {
		fmt.Println("No captured exchanges found")
		return
	}
	printLogs(os.Stdout, logs)
	if len(logs) == store.ClampLimit(*limit) {
		fmt.Printf("\nmore: relay-admin logs -before %d\n", logs[len(logs)-1].Timestamp)
	}
}

func printLogs(w io.Writer, logs []*storage.CaptureRecord) {
	for i, rec := range logs {
		model := ""
		if rec.Request.Model != "" {
			model = " model=" + rec.Request.Model
		}
		fmt.Fprintf(w, "%d) %s %s %s %s -> %d (%dms)%s\n",
			i+1, rec.ID, rec.StartedAt().UTC().Format(time.RFC3339), rec.Method, rec.Path, rec.Status, rec.DurationMs, model)
	}
}

func handleShow(store *storage.LogStore) {
	if len(os.Args) < 3 || strings.HasPrefix(os.Args[2], "-") {
		log.Fatal("usage: relay-admin show <id> [-format json|yaml]")
	}
	id := os.Args[2]

	fs := flag.NewFlagSet("show", flag.ExitOnError)
	format := fs.String("format", "json", "Output format: json or yaml")
	if err := fs.Parse(os.Args[3:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		log.Fatalf("no captured exchange with id %s", id)
	}
	if err != nil {
		log.Fatalf("failed to load %s: %v", id, err)
	}

	out, err := render(rec, *format)
	if err != nil {
		log.Fatalf("failed to render %s: %v", id, err)
	}
	fmt.Print(out)
}

// render prints rec as indented JSON or as YAML with the same field names.
func render(rec *storage.CaptureRecord, format string) (string, error) {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	switch strings.ToLower(format) {
	case "json":
		return string(b) + "\n", nil
	case "yaml", "yml":
		var doc map[string]any
		if err := json.Unmarshal(b, &doc); err != nil {
			return "", err
		}
		y, err := yaml.Marshal(doc)
		if err != nil {
			return "", err
		}
		return string(y), nil
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

func handlePrune(store *storage.LogStore) {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	days := fs.Int("days", config.DefaultRetentionDays, "Delete records older than N days")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}
	if *days <= 0 {
		log.Fatal("-days must be positive")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	scheduler := storage.NewScheduler(store, "", time.Duration(*days)*24*time.Hour)
	deleted, err := scheduler.RunOnce(ctx)
	if err != nil {
		log.Fatalf("prune failed after %d records: %v", deleted, err)
	}
	fmt.Printf("Pruned %d records older than %d days\n", deleted, *days)
}
