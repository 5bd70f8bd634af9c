// build-tier-catalog scrapes the poe2db item class pages and writes the
// modifier tier catalog the price checker loads at startup.
//
// Usage: go run main.go -output=<file> [-page=<slug>] [-delay=1.5s]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/codyseavey/poe2-price-checker/backend/internal/services"
)

func main() {
	output := flag.String("output", "", "Output file for the catalog JSON (required)")
	baseURL := flag.String("base", services.Poe2DBBase, "poe2db base URL")
	delay := flag.Duration("delay", services.DefaultCatalogDelay, "Delay between page requests")
	page := flag.String("page", "", "Fetch only this page slug (optional, e.g., 'Rings')")
	flag.Parse()

	if *output == "" {
		fmt.Println("Usage: build-tier-catalog -output=<file> [-page=<slug>] [-delay=1.5s]")
		fmt.Println("")
		fmt.Println("Scrapes modifier tiers from poe2db and writes a tier catalog.")
		fmt.Println("")
		fmt.Println("Options:")
		fmt.Println("  -output  Output file, e.g. data/modifier_tiers.json")
		fmt.Println("  -base    poe2db base URL")
		fmt.Println("  -delay   Delay between page requests")
		fmt.Println("  -page    Fetch only one item class page (optional)")
		os.Exit(1)
	}

	pages := services.CatalogPages
	if *page != "" {
		pages = nil
		for _, p := range services.CatalogPages {
			if p.Slug == *page {
				pages = append(pages, p)
				break
			}
		}
		if len(pages) == 0 {
			log.Fatalf("Page not found: %s", *page)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	log.Printf("Fetching %d item class pages...", len(pages))
	catalog, err := services.NewCatalogBuilder(*baseURL, *delay).Build(ctx, pages)
	if err != nil {
		log.Fatalf("Failed to build catalog: %v", err)
	}

	data, err := services.MarshalCatalog(catalog)
	if err != nil {
		log.Fatalf("Failed to marshal catalog: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	if err := os.WriteFile(*output, data, 0644); err != nil {
		log.Fatalf("Failed to write catalog: %v", err)
	}

	log.Printf("Wrote %s (%d modifiers) in %s", *output, len(catalog.Modifiers), time.Since(start).Round(time.Second))
}
