// Command symfetch is a small CLI host exercising the composed store
// hierarchy: find a key through a cache stacked on one or more HTTP symbol
// servers, or clear the local cache. Flags and environment-variable
// fallback follow the teacher's main.go idiom (flags take precedence,
// env vars are the fallback default).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/richardartoul-symcache/symcache/cachefile"
	"github.com/richardartoul-symcache/symcache/dedupe"
	"github.com/richardartoul-symcache/symcache/store"
)

func main() {
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		switch subcommand := os.Args[1]; subcommand {
		case "find":
			runFindCommand()
			return
		case "clear":
			runClearCommand()
			return
		case "help", "-h", "--help":
			printHelp()
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", subcommand)
			printHelp()
			os.Exit(1)
		}
	}

	printHelp()
	os.Exit(1)
}

func printHelp() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "A layered symbol-file retrieval and caching client.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  find <key>    Look up key through the composed store, caching on success\n")
	fmt.Fprintf(os.Stderr, "  clear         Remove all entries from the local cache\n")
	fmt.Fprintf(os.Stderr, "  help          Show this help message\n")
}

type commonFlags struct {
	debug      bool
	cacheDir   string
	cacheKind  string
	dedupeKind string
	upstreams  string
	microsoft  bool
	errorRate  float64
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&c.debug, "debug", getEnvBool("DEBUG", false), "Enable debug tracing to stderr (env: DEBUG)")
	fs.StringVar(&c.cacheDir, "cache-dir", getEnv("CACHE_DIR", filepath.Join(os.TempDir(), "Symbols")), "Local cache directory (env: CACHE_DIR)")
	fs.StringVar(&c.cacheKind, "cache-kind", getEnv("CACHE_KIND", "identity"), "Cache layout: identity, legacy (env: CACHE_KIND)")
	fs.StringVar(&c.dedupeKind, "dedupe", getEnv("DEDUPE_KIND", "noop"), "Concurrent-miss dedupe: noop, singleflight, fslock (env: DEDUPE_KIND)")
	fs.StringVar(&c.upstreams, "upstreams", getEnv("UPSTREAMS", ""), "Comma-separated base URLs to query, unioned (env: UPSTREAMS)")
	fs.BoolVar(&c.microsoft, "microsoft", getEnvBool("MICROSOFT", false), "Use the Microsoft compound-query HTTP store variant (env: MICROSOFT)")
	fs.Float64Var(&c.errorRate, "error-rate", getEnvFloat("ERROR_RATE", 0), "Fraction of upstream queries to fail with OutcomeUnreachable, for resilience testing (env: ERROR_RATE)")
}

func runFindCommand() {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	var c commonFlags
	c.register(fs)
	statsFlag := fs.Bool("stats", getEnvBool("PRINT_STATS", false), "Print query statistics on exit (env: PRINT_STATS)")
	fs.Parse(os.Args[2:])

	args := fs.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "find requires exactly one key argument\n")
		os.Exit(1)
	}
	key := args[0]

	logger := newLogger(c.debug)
	composed, err := buildStore(c, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building store: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	result, err := composed.Find(context.Background(), key, store.DefaultCacheValidityPolicy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outcome := store.OutcomeUnreachable
	if result.Diagnostics != nil {
		outcome = result.Diagnostics.Outcome
	}

	if outcome == store.OutcomeSuccess {
		stream, err := result.OpenStream()
		if err == nil && stream != nil {
			defer stream.Close()
			n, _ := io.Copy(io.Discard, stream)
			fmt.Fprintf(os.Stdout, "HIT %s (%d bytes, %s)\n", result.Diagnostics.FilePath, n, time.Since(start))
		} else {
			fmt.Fprintf(os.Stdout, "HIT %s (stream error: %v)\n", result.Diagnostics.FilePath, err)
		}
	} else {
		fmt.Fprintf(os.Stdout, "%s %s\n", strings.ToUpper(outcome.String()), key)
	}

	if *statsFlag {
		printDiagnosticsChain(result.Diagnostics)
	}
}

func runClearCommand() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	var c commonFlags
	c.register(fs)
	fs.Parse(os.Args[2:])

	if err := os.RemoveAll(c.cacheDir); err != nil {
		fmt.Fprintf(os.Stderr, "error clearing cache: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(c.cacheDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "error recreating cache directory: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Cache cleared successfully\n")
}

// buildStore composes an upstream (a single HTTP store, the Microsoft
// variant, or a union of several) under a file cache, per common flags.
func buildStore(c commonFlags, logger *slog.Logger) (store.Store, error) {
	urls := splitNonEmpty(c.upstreams, ",")
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one -upstreams URL is required")
	}

	upstreamStores := make([]store.Store, 0, len(urls))
	for _, u := range urls {
		var s store.Store
		if c.microsoft {
			s = store.NewMicrosoftHttpStore(u, http.DefaultClient, logger, nil)
		} else {
			s = store.NewHttpStore(u, http.DefaultClient, logger)
		}
		if c.errorRate > 0 {
			s = store.NewErrorStore(s, c.errorRate)
		}
		if c.debug {
			s = store.NewDebugStore(s)
		}
		upstreamStores = append(upstreamStores, s)
	}

	var upstream store.Store
	if len(upstreamStores) == 1 {
		upstream = upstreamStores[0]
	} else {
		upstream = store.NewUnionStore(upstreamStores...)
	}

	var cache store.Store
	switch c.cacheKind {
	case "legacy":
		lc := cachefile.NewLegacyFileCache(c.cacheDir, upstream, logger)
		setDedupe(lc, c.dedupeKind)
		cache = lc
	case "identity", "":
		ic := cachefile.NewIdentityFileCache(c.cacheDir, upstream, logger)
		setDedupe(ic, c.dedupeKind)
		cache = ic
	default:
		return nil, fmt.Errorf("unknown cache-kind: %s (supported: identity, legacy)", c.cacheKind)
	}

	return cache, nil
}

// dedupeSetter is implemented by both cache variants via FileCacheBase.
type dedupeSetter interface {
	SetDedupeGroup(dedupe.Group)
}

func setDedupe(c dedupeSetter, kind string) {
	switch kind {
	case "singleflight":
		c.SetDedupeGroup(dedupe.NewSingleflightGroup())
	case "fslock":
		if g, err := dedupe.NewFlockGroup(""); err == nil {
			c.SetDedupeGroup(g)
		}
	case "noop", "":
		c.SetDedupeGroup(dedupe.NewNoOpGroup())
	}
}

func printDiagnosticsChain(d *store.Diagnostics) {
	depth := 0
	for node := d; node != nil; node = node.Upstream {
		fmt.Fprintf(os.Stderr, "%s[%d] store=%s outcome=%s path=%s time=%s\n",
			strings.Repeat("  ", depth), depth, node.StoreName, node.Outcome, node.FilePath,
			node.QueryTime.Format(time.RFC3339))
		depth++
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	return v == "true" || v == "1" || v == "yes"
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
