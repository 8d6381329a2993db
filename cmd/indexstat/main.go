package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"pyrock/config"
	"pyrock/internal/adapter/cache"
	"pyrock/internal/adapter/store"
	"pyrock/internal/domain"
	"pyrock/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Project directory holding pyrock settings")
	symbol := flag.String("q", "", "Symbol to look up")
	top := flag.Int("top", 10, "Number of largest buckets to show")
	flag.Parse()

	settings, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	st := store.NewJSONIndexStore(settings.IndexPath(), zerolog.Nop())
	idxCache := cache.NewIndexCache(st, st.Path())

	start := time.Now()
	idx, err := idxCache.Get()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading index %s: %v\n", st.Path(), err)
		os.Exit(1)
	}
	coldLoad := time.Since(start)

	start = time.Now()
	if _, err := idxCache.Get(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reloading index: %v\n", err)
		os.Exit(1)
	}
	warmLoad := time.Since(start)

	start = time.Now()
	res, err := idxCache.Resolver()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building resolver: %v\n", err)
		os.Exit(1)
	}
	resolverBuild := time.Since(start)
	hits, loads := idxCache.Stats()

	fmt.Println("IMPORT INDEX STATISTICS")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Index:       %s\n", st.Path())
	fmt.Printf("Entries:     %d\n", idx.Len())
	fmt.Printf("Cold load:   %s\n", coldLoad)
	fmt.Printf("Cached load: %s\n", warmLoad)
	fmt.Printf("Cache:       %d hits, %d loads\n", hits, loads)
	fmt.Printf("Paths:       %d distinct (resolver built in %s)\n", res.Len(), resolverBuild)
	printLastRun(settings.RegistryPath())

	type bucket struct {
		key  string
		size int
	}
	var buckets []bucket
	for first, byLast := range idx {
		for last, entries := range byLast {
			buckets = append(buckets, bucket{first + last, len(entries)})
		}
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].size != buckets[j].size {
			return buckets[i].size > buckets[j].size
		}
		return buckets[i].key < buckets[j].key
	})
	fmt.Printf("Buckets:     %d\n", len(buckets))
	fmt.Println()

	fmt.Printf("Largest %d buckets:\n", min(*top, len(buckets)))
	fmt.Println(strings.Repeat("-", 70))
	for i, b := range buckets {
		if i >= *top {
			break
		}
		fmt.Printf("  %-4s %d\n", b.key, b.size)
	}

	if *symbol == "" {
		return
	}

	fmt.Println()
	fmt.Printf("Query: %q\n", *symbol)
	fmt.Println(strings.Repeat("-", 70))

	start = time.Now()
	selected, err := usecase.CheckSelection(*symbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid query: %v\n", err)
		os.Exit(1)
	}
	groups := [][]domain.Candidate{usecase.CandidatesFromIndex(selected, idx)}
	if strings.Contains(selected, ".") {
		groups = append(groups, usecase.CandidatesFromDotted(selected, res))
	}
	cands := usecase.MergeCandidates(groups...)
	took := time.Since(start)

	fmt.Printf("Bucket size: %d\n", len(idx.Bucket(lastSegment(selected))))
	for i, c := range cands {
		fmt.Printf("%d. %s\n", i+1, c.DisplayKey)
	}
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Found %d imports in %s\n", len(cands), took)
}

func printLastRun(registryPath string) {
	run, err := store.LastIndexRun(store.LockPath(registryPath), 200*time.Millisecond)
	switch {
	case errors.Is(err, store.ErrRegistryBusy):
		fmt.Println("Last run:    indexing in progress")
	case err != nil:
		fmt.Printf("Last run:    unavailable (%v)\n", err)
	case run.ID == "":
		fmt.Println("Last run:    none recorded")
	default:
		status := "ok"
		if run.Failed {
			status = "failed"
		}
		fmt.Printf("Last run:    %s %s, %d entries, started %s\n",
			run.ID, status, run.Entries, run.Started.Format(time.RFC3339))
	}
}

func lastSegment(dotted string) string {
	if i := strings.LastIndexByte(dotted, '.'); i >= 0 {
		return dotted[i+1:]
	}
	return dotted
}
