package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hodlhunt/internal/game"

	"github.com/fatih/color"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	numbers     = message.NewPrinter(language.English)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type fishListPayload struct {
	Fish []game.FishView `json:"fish"`
}

type leaderboardPayload struct {
	Rows []game.LeaderboardRow `json:"leaderboard"`
}

type walletPayload struct {
	PlayerID        string  `json:"player_id"`
	Balance         uint64  `json:"balance"`
	OperatorBalance *uint64 `json:"operator_balance"`
}

type eventRecord struct {
	Seq     int64           `json:"seq"`
	Kind    string          `json:"kind"`
	At      int64           `json:"at"`
	FishID  uint64          `json:"fish_id"`
	Owner   string          `json:"owner"`
	Payload json.RawMessage `json:"payload"`
}

type eventsPayload struct {
	Events []eventRecord `json:"events"`
}

type replayPayload struct {
	Results []struct {
		Path           string `json:"path"`
		IdempotencyKey string `json:"idempotency_key"`
		Status         string `json:"status"`
		Reason         string `json:"reason"`
	} `json:"results"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// promptSecret hides input on a terminal and falls back to a plain read when
// stdin is piped.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// parseSOL converts a decimal SOL amount such as "1.25" to lamports without
// going through floating point.
func parseSOL(s string) (uint64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "sol"))
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 9 {
		return 0, fmt.Errorf("amount %q has more than 9 decimals", s)
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	var f uint64
	if frac != "" {
		f, err = strconv.ParseUint(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
	}
	if w > (^uint64(0)-f)/game.LamportsPerSol {
		return 0, fmt.Errorf("amount %q is too large", s)
	}
	return w*game.LamportsPerSol + f, nil
}

func parseFishID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid fish id %q", s)
	}
	return id, nil
}

// emit writes raw in the requested format. table defers to render.
func emit(format string, raw map[string]any, render func(map[string]any) error) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		return render(raw)
	case "json":
		body, err := json.MarshalIndent(raw, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	case "yaml":
		body, err := toYAML(raw)
		if err != nil {
			return err
		}
		fmt.Print(string(body))
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// toYAML goes through a yaml.Node so integers keep their exact JSON text.
func toYAML(raw map[string]any) ([]byte, error) {
	body, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(body, &node); err != nil {
		return nil, err
	}
	blockStyle(&node)
	return yaml.Marshal(&node)
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func renderOcean(raw map[string]any) error {
	o, err := decodeInto[game.OceanView](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== OCEAN ==")
	fmt.Printf("Mode:             %s (feeding %s)\n", colorizeMode(o.Mode), bps(o.FeedingBps))
	fmt.Printf("Next Mode Change: %s\n", formatTime(o.NextModeChange))
	fmt.Printf("Pool Balance:     %s\n", formatLamports(o.Balance))
	fmt.Printf("Vault:            %s\n", formatLamports(o.Vault))
	fmt.Printf("Total Shares:     %s\n", comma(o.TotalShares))
	fmt.Printf("Share Price:      %s\n", o.SharePrice)
	fmt.Printf("Fish Alive:       %d (next id %d)\n", o.FishCount, o.NextFishID)
	fmt.Printf("Admin:            %s\n", o.Admin)
	fmt.Println()
	return nil
}

func renderFishList(raw map[string]any) error {
	out, err := decodeInto[fishListPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== MY FISH ==")
	if len(out.Fish) == 0 {
		printInfo("No fish yet. Create one with `hh fish create`.")
		return nil
	}
	fmt.Printf("%-6s %-20s %16s %16s %-10s %-10s %-20s\n", "ID", "NAME", "SHARE", "VALUE", "STATUS", "HUNT", "HUNGRY AT")
	for _, f := range out.Fish {
		fmt.Printf("%-6d %-20s %16s %16s %-10s %-10s %-20s\n",
			f.ID,
			truncate(f.Name, 20),
			comma(f.Share),
			formatLamports(f.Value),
			fishStatus(f),
			yesNo(f.CanHuntNow),
			formatTime(f.HungryAt),
		)
	}
	fmt.Println()
	return nil
}

func renderFish(raw map[string]any) error {
	f, err := decodeInto[game.FishView](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== FISH #%d %s ==\n", f.ID, f.Name)
	fmt.Printf("Owner:          %s\n", f.Owner)
	fmt.Printf("Status:         %s\n", fishStatus(f))
	fmt.Printf("Share:          %s\n", comma(f.Share))
	fmt.Printf("Value:          %s\n", formatLamports(f.Value))
	if f.Alive {
		fmt.Printf("Min Feeding:    %s\n", formatLamports(f.MinFeeding))
		fmt.Printf("Hungry At:      %s\n", formatTime(f.HungryAt))
		fmt.Printf("Can Hunt After: %s\n", formatTime(f.CanHuntAfter))
	}
	if f.IsProtected {
		fmt.Printf("Protected Till: %s\n", formatTime(f.ProtectionEndsAt))
	}
	fmt.Printf("Hunts:          %d (income %s)\n", f.TotalHunts, comma(f.TotalHuntIncome))
	fmt.Printf("Marks Placed:   %d\n", f.MarksPlaced)
	if f.MarkActive {
		fmt.Printf("Marked By:      #%d until %s\n", f.MarkedByHunterID, formatTime(f.MarkExpiresAt))
	}
	fmt.Println()
	return nil
}

func renderLeaderboard(raw map[string]any) error {
	out, err := decodeInto[leaderboardPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== LEADERBOARD ==")
	if len(out.Rows) == 0 {
		printInfo("No fish in the ocean yet.")
		return nil
	}
	fmt.Printf("%-6s %-6s %-20s %-14s %16s %16s\n", "RANK", "ID", "NAME", "OWNER", "SHARE", "VALUE")
	for _, row := range out.Rows {
		fmt.Printf("%-6d %-6d %-20s %-14s %16s %16s\n",
			row.Rank,
			row.FishID,
			truncate(row.Name, 20),
			truncate(row.Owner, 14),
			comma(row.Share),
			formatLamports(row.Value),
		)
	}
	fmt.Println()
	return nil
}

func renderWallet(raw map[string]any) error {
	out, err := decodeInto[walletPayload](raw)
	if err != nil {
		return err
	}
	fmt.Printf("Balance:          %s\n", formatLamports(out.Balance))
	if out.OperatorBalance != nil {
		fmt.Printf("Operator Balance: %s\n", formatLamports(*out.OperatorBalance))
	}
	return nil
}

func renderEvents(raw map[string]any) error {
	out, err := decodeInto[eventsPayload](raw)
	if err != nil {
		return err
	}
	if len(out.Events) == 0 {
		printInfo("No events recorded.")
		return nil
	}
	fmt.Printf("%-8s %-20s %-20s %-6s %s\n", "SEQ", "AT", "KIND", "FISH", "PAYLOAD")
	for _, ev := range out.Events {
		fish := "-"
		if ev.FishID != 0 {
			fish = strconv.FormatUint(ev.FishID, 10)
		}
		fmt.Printf("%-8d %-20s %-20s %-6s %s\n", ev.Seq, formatTime(ev.At), ev.Kind, fish, truncate(string(ev.Payload), 80))
	}
	return nil
}

// renderAction prints a one-line summary for a mutation result.
func renderAction(msg string) func(map[string]any) error {
	return func(map[string]any) error {
		printSuccess(msg)
		return nil
	}
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func fishStatus(f game.FishView) string {
	switch {
	case !f.Alive:
		return danger.Sprint("dead")
	case f.Protected:
		return accent.Sprint("protected")
	case f.Huntable:
		return warn.Sprint("hungry")
	default:
		return success.Sprint("fed")
	}
}

func colorizeMode(m game.Mode) string {
	if m == game.ModeStorm {
		return danger.Sprint("STORM")
	}
	return success.Sprint("calm")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func bps(v uint16) string {
	return fmt.Sprintf("%d.%02d%%", v/100, v%100)
}

func formatLamports(v uint64) string {
	whole := v / game.LamportsPerSol
	frac := (v % game.LamportsPerSol) / 100_000
	return fmt.Sprintf("%s.%04d SOL", comma(whole), frac)
}

func formatTime(unix int64) string {
	if unix <= 0 {
		return "-"
	}
	return time.Unix(unix, 0).Local().Format("2006-01-02 15:04")
}

func comma(v uint64) string {
	return numbers.Sprintf("%d", v)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
