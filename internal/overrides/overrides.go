package overrides

import (
	"bufio"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/alexnikon/wgbot/internal/subscription"
)

var peerListSep = regexp.MustCompile(`[,\s;]+`)

// Resolver answers price adjustments and manual peer bindings from two flat
// text files. Files are re-read on every call; both are tiny and edited by
// hand, so there is no cache to invalidate.
//
// promo.txt lines: `<owner_id>=<signed percent>`, e.g. `42=-20` or `99=+10`.
// custom_clients.txt lines: `<owner_id>=<peer_ref>[,peer_ref...]` (`:` also
// accepted as separator, peer lists split on comma/space/semicolon).
// `#` starts a comment; malformed lines are skipped.
type Resolver struct {
	promoFile   string
	clientsFile string
	log         *slog.Logger
}

func NewResolver(promoFile, clientsFile string, log *slog.Logger) *Resolver {
	return &Resolver{promoFile: promoFile, clientsFile: clientsFile, log: log}
}

// ResolvePrice applies the owner's signed percentage adjustment to the
// tariff's list price in the given currency. Owners without an entry pay the
// list price. The result never goes below zero.
func (r *Resolver) ResolvePrice(ownerID int64, tariff subscription.Tariff, currency subscription.Currency) int64 {
	price := tariff.Price(currency)
	pct, ok := r.promoPercent(ownerID)
	if !ok {
		return price
	}
	adjusted := price * (100 + pct) / 100
	if adjusted < 0 {
		return 0
	}
	return adjusted
}

// AdditionalPeers returns control-plane peers manually bound to the owner.
// Read-side only: these never participate in lifecycle transitions.
func (r *Resolver) AdditionalPeers(ownerID int64) []string {
	f, err := os.Open(r.clientsFile)
	if err != nil {
		return nil
	}
	defer f.Close()

	uid := strconv.FormatInt(ownerID, 10)
	var result []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id, peers, ok := parseClientLine(scanner.Text())
		if !ok || id != uid {
			continue
		}
		for _, peer := range peers {
			if seen[peer] {
				continue
			}
			seen[peer] = true
			result = append(result, peer)
		}
	}
	if err := scanner.Err(); err != nil {
		r.log.Error("reading custom clients file", "file", r.clientsFile, "error", err)
		return nil
	}
	return result
}

func (r *Resolver) promoPercent(ownerID int64) (int64, bool) {
	f, err := os.Open(r.promoFile)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	uid := strconv.FormatInt(ownerID, 10)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}
		id, value, ok := splitEntry(line)
		if !ok || id != uid {
			continue
		}
		pct, err := strconv.ParseInt(strings.TrimPrefix(value, "+"), 10, 64)
		if err != nil {
			r.log.Warn("skipping malformed promo line", "line", line)
			continue
		}
		return pct, true
	}
	return 0, false
}

func parseClientLine(raw string) (string, []string, bool) {
	line := stripComment(raw)
	if line == "" {
		return "", nil, false
	}
	id, value, ok := splitEntry(line)
	if !ok {
		return "", nil, false
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return "", nil, false
	}
	var peers []string
	for _, p := range peerListSep.Split(strings.TrimSpace(value), -1) {
		if p != "" {
			peers = append(peers, p)
		}
	}
	if len(peers) == 0 {
		return "", nil, false
	}
	return id, peers, true
}

func splitEntry(line string) (string, string, bool) {
	var id, value string
	if i := strings.Index(line, "="); i >= 0 {
		id, value = line[:i], line[i+1:]
	} else if i := strings.Index(line, ":"); i >= 0 {
		id, value = line[:i], line[i+1:]
	} else {
		return "", "", false
	}
	id = strings.TrimSpace(id)
	value = strings.TrimSpace(value)
	if id == "" || value == "" {
		return "", "", false
	}
	return id, value, true
}

func stripComment(raw string) string {
	line := raw
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}
