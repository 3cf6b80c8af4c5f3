// Command matopiba-probe fetches and prints one city's forecast
// directly against the provider, bypassing the scheduler and both
// persistence layers. Useful for checking a single city's response
// shape or debugging a provider outage without waiting for the next
// scheduled run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/evaonline/matopiba-pipeline/internal/citycatalog"
	"github.com/evaonline/matopiba-pipeline/internal/config"
	"github.com/evaonline/matopiba-pipeline/internal/forecast"
)

func main() {
	cityCode := flag.String("city", "", "city code to fetch (see the bundled catalog for valid codes)")
	flag.Parse()

	if *cityCode == "" {
		fmt.Fprintln(os.Stderr, "usage: matopiba-probe -city=<code>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	catalog, err := citycatalog.Load()
	if err != nil {
		log.Fatalf("failed to load city catalog: %v", err)
	}

	city, ok := catalog.Lookup(*cityCode)
	if !ok {
		log.Fatalf("city code %q not found in the catalog", *cityCode)
	}

	forecastCfg := forecast.DefaultConfig(cfg.ProviderBaseURL)
	forecastCfg.RequestTimeout = cfg.FetchTimeout
	forecastCfg.HTTPClient = &http.Client{Timeout: cfg.FetchTimeout}
	client := forecast.NewClient(forecastCfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout+5*time.Second)
	defer cancel()

	result, err := client.FetchOne(ctx, city)
	if err != nil {
		log.Fatalf("fetch for %s (%s): %v", city.Name, city.Code, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("encode result: %v", err)
	}
}
