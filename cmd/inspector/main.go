// Inspector replays an event journal file and prints per-collateral activity
// tallies: order and claim counts, cleared batches and tapped withdrawals.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/curvebond/curvegate/internal/model"
	"github.com/shopspring/decimal"
)

type tally struct {
	buys, sells     int
	claims          int
	clearedBatches  int
	withdrawn       decimal.Decimal
	totalBuyReturn  decimal.Decimal
	totalSellReturn decimal.Decimal
}

func main() {
	path := flag.String("file", "", "path to an events-*.jsonl journal file")
	flag.Parse()
	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: inspector -file events-YYYY-MM-DD.jsonl")
		os.Exit(2)
	}

	f, err := os.Open(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open journal: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	tallies := make(map[string]*tally)
	total := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event model.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			fmt.Fprintf(os.Stderr, "skipping malformed line: %v\n", err)
			continue
		}
		total++

		key := event.Collateral.Hex()
		t, ok := tallies[key]
		if !ok {
			t = &tally{}
			tallies[key] = t
		}

		switch event.Type {
		case model.EventOpenBuyOrder:
			t.buys++
		case model.EventOpenSellOrder:
			t.sells++
		case model.EventClaimBuyOrder, model.EventClaimSellOrder:
			t.claims++
		case model.EventClearBatch:
			t.clearedBatches++
			t.totalBuyReturn = t.totalBuyReturn.Add(field(event, "total_buy_return"))
			t.totalSellReturn = t.totalSellReturn.Add(field(event, "total_sell_return"))
		case model.EventWithdraw:
			t.withdrawn = t.withdrawn.Add(field(event, "amount"))
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read journal: %v\n", err)
		os.Exit(1)
	}

	keys := make([]string, 0, len(tallies))
	for key := range tallies {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Printf("%d events\n", total)
	for _, key := range keys {
		t := tallies[key]
		fmt.Printf("%s\n", key)
		fmt.Printf("  orders:  %d buys, %d sells\n", t.buys, t.sells)
		fmt.Printf("  claims:  %d\n", t.claims)
		fmt.Printf("  batches: %d cleared (minted %s, released %s)\n", t.clearedBatches, t.totalBuyReturn, t.totalSellReturn)
		fmt.Printf("  tapped:  %s withdrawn\n", t.withdrawn)
	}
}

func field(event model.Event, name string) decimal.Decimal {
	out, err := decimal.NewFromString(event.Fields[name])
	if err != nil {
		return decimal.Zero
	}
	return out
}
