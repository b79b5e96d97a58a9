package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"hodlhunt/internal/auth"
	cl "hodlhunt/internal/cli"
	"hodlhunt/internal/config"
	"hodlhunt/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type app struct {
	apiBase string
	output  string
}

func main() {
	cfg := config.LoadCLIFromEnv()
	a := &app{apiBase: cfg.APIBaseURL}

	root := &cobra.Command{
		Use:          "hh",
		Short:        "HODL Hunt CLI game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.apiBase, "api", a.apiBase, "API base URL")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table, json or yaml")

	root.AddCommand(
		a.newSignupCmd(),
		a.newLoginCmd(),
		a.newLogoutCmd(),
		a.newOceanCmd(),
		a.newQuoteCmd(),
		a.newFishCmd(),
		a.newLeaderboardCmd(),
		a.newWalletCmd(),
		a.newEventsCmd(),
		a.newSyncCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) client() *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(a.apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func (a *app) newSignupCmd() *cobra.Command {
	return a.credentialsCmd("signup", "Create a HODL Hunt account", "Signup complete. Session saved.", (*cl.Client).Signup)
}

func (a *app) newLoginCmd() *cobra.Command {
	return a.credentialsCmd("login", "Login to HODL Hunt", "Login successful.", (*cl.Client).Login)
}

func (a *app) credentialsCmd(use, short, done string, call func(*cl.Client, context.Context, string, string) (auth.Session, error)) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if strings.TrimSpace(username) == "" {
				if username, err = promptRequired("Username"); err != nil {
					return err
				}
			}
			password, err := promptSecret("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := call(a.client(), ctx, strings.TrimSpace(username), password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken: session.AccessToken,
				Username:    session.User.Username,
				UserID:      session.User.ID,
				APIBaseURL:  a.apiBase,
			}); err != nil {
				return err
			}
			printSuccess(done)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	return cmd
}

func (a *app) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func (a *app) newOceanCmd() *cobra.Command {
	ocean := &cobra.Command{
		Use:   "ocean",
		Short: "Show the ocean state",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := a.client().Ocean(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			return emit(a.output, out, renderOcean)
		},
	}
	ocean.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize the ocean (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := a.client().InitOcean(ctx, sess.AccessToken, uuid.NewString())
			if err != nil {
				return err
			}
			return emit(a.output, out, renderAction("Ocean initialized."))
		},
	})
	ocean.AddCommand(&cobra.Command{
		Use:   "daily",
		Short: "Run the daily calm/storm roll if it is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := a.client().DailyUpdate(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			return emit(a.output, out, func(raw map[string]any) error {
				if changed, _ := raw["changed"].(bool); !changed {
					printInfo(fmt.Sprintf("Not due yet. Mode stays %v.", raw["mode"]))
					return nil
				}
				printSuccess(fmt.Sprintf("Ocean is now %v.", raw["mode"]))
				return nil
			})
		},
	})
	return ocean
}

func (a *app) newQuoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote <sol>",
		Short: "Shares a deposit of this value would mint right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			value, err := parseSOL(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := a.client().Quote(ctx, sess.AccessToken, value)
			if err != nil {
				return err
			}
			return emit(a.output, out, func(raw map[string]any) error {
				fmt.Printf("%s buys %v shares\n", formatLamports(value), raw["shares"])
				return nil
			})
		},
	}
}

func (a *app) newFishCmd() *cobra.Command {
	fish := &cobra.Command{
		Use:   "fish",
		Short: "Fish commands",
	}
	fish.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your fish",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := a.client().MyFish(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			return emit(a.output, out, renderFishList)
		},
	})
	fish.AddCommand(&cobra.Command{
		Use:   "info <fish_id>",
		Short: "Show one fish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			id, err := parseFishID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := a.client().FishInfo(ctx, sess.AccessToken, id)
			if err != nil {
				return err
			}
			return emit(a.output, out, renderFish)
		},
	})
	fish.AddCommand(&cobra.Command{
		Use:   "create <name> <deposit_sol>",
		Short: "Deposit into the ocean and mint a fish",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deposit, err := parseSOL(args[1])
			if err != nil {
				return err
			}
			name := strings.TrimSpace(args[0])
			return a.mutate(cmd, http.MethodPost, "/v1/fish", map[string]any{"name": name, "deposit": deposit},
				fmt.Sprintf("Fish %q created with %s.", name, formatLamports(deposit)))
		},
	})
	fish.AddCommand(&cobra.Command{
		Use:   "feed <fish_id> <amount_sol>",
		Short: "Feed a fish to reset its hunger timer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFishID(args[0])
			if err != nil {
				return err
			}
			amount, err := parseSOL(args[1])
			if err != nil {
				return err
			}
			return a.mutate(cmd, http.MethodPost, fishAction(id, "feed"), map[string]any{"amount": amount},
				fmt.Sprintf("Fed fish #%d with %s.", id, formatLamports(amount)))
		},
	})
	var expectedShare uint64
	hunt := &cobra.Command{
		Use:   "hunt <hunter_id> <prey_id>",
		Short: "Hunt a hungry fish",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hunter, err := parseFishID(args[0])
			if err != nil {
				return err
			}
			prey, err := parseFishID(args[1])
			if err != nil {
				return err
			}
			if expectedShare == 0 {
				if expectedShare, err = a.currentShare(cmd, prey); err != nil {
					return err
				}
			}
			return a.mutate(cmd, http.MethodPost, fishAction(hunter, "hunt"),
				map[string]any{"prey_id": prey, "expected_prey_share": expectedShare},
				fmt.Sprintf("Fish #%d hunted fish #%d.", hunter, prey))
		},
	}
	hunt.Flags().Uint64Var(&expectedShare, "expected-share", 0, "prey share you expect (defaults to its current share)")
	fish.AddCommand(hunt)
	fish.AddCommand(&cobra.Command{
		Use:   "mark <hunter_id> <prey_id>",
		Short: "Reserve a fish about to go hungry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hunter, err := parseFishID(args[0])
			if err != nil {
				return err
			}
			prey, err := parseFishID(args[1])
			if err != nil {
				return err
			}
			return a.mutate(cmd, http.MethodPost, fishAction(hunter, "marks"), map[string]any{"prey_id": prey},
				fmt.Sprintf("Fish #%d marked fish #%d.", hunter, prey))
		},
	})
	fish.AddCommand(&cobra.Command{
		Use:   "exit <fish_id>",
		Short: "Burn a fish and withdraw its value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFishID(args[0])
			if err != nil {
				return err
			}
			return a.mutate(cmd, http.MethodPost, fishAction(id, "exit"), map[string]any{},
				fmt.Sprintf("Fish #%d exited.", id))
		},
	})
	fish.AddCommand(&cobra.Command{
		Use:   "resurrect <dead_fish_id> <name> <deposit_sol>",
		Short: "Replace a dead fish with a new one",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFishID(args[0])
			if err != nil {
				return err
			}
			deposit, err := parseSOL(args[2])
			if err != nil {
				return err
			}
			name := strings.TrimSpace(args[1])
			return a.mutate(cmd, http.MethodPost, fishAction(id, "resurrect"), map[string]any{"name": name, "deposit": deposit},
				fmt.Sprintf("Fish #%d resurrected as %q.", id, name))
		},
	})
	fish.AddCommand(&cobra.Command{
		Use:   "transfer <fish_id> <username>",
		Short: "Give a fish to another player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFishID(args[0])
			if err != nil {
				return err
			}
			to := strings.TrimSpace(args[1])
			return a.mutate(cmd, http.MethodPost, fishAction(id, "transfer"), map[string]any{"new_owner": to},
				fmt.Sprintf("Fish #%d transferred to %s.", id, to))
		},
	})
	return fish
}

// mutate sends a write with a fresh idempotency key and queues it for
// `hh sync` when the API is unreachable.
func (a *app) mutate(cmd *cobra.Command, method, path string, body map[string]any, done string) error {
	sess, err := requireSession()
	if err != nil {
		return err
	}
	idem := uuid.NewString()
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := a.client().Do(ctx, method, path, sess.AccessToken, body, idem)
	if err != nil {
		return queueOnNetworkError(err, path, body, idem)
	}
	return emit(a.output, out, renderAction(done))
}

func (a *app) currentShare(cmd *cobra.Command, fishID uint64) (uint64, error) {
	sess, err := requireSession()
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := a.client().FishInfo(ctx, sess.AccessToken, fishID)
	if err != nil {
		return 0, err
	}
	share, err := strconv.ParseUint(fmt.Sprint(out["share"]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("read share of fish #%d: %w", fishID, err)
	}
	return share, nil
}

func (a *app) newLeaderboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Biggest fish in the ocean",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := a.client().Leaderboard(ctx, sess.AccessToken, limit)
			if err != nil {
				return err
			}
			return emit(a.output, out, renderLeaderboard)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "rows to show")
	return cmd
}

func (a *app) newWalletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Show your balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := a.client().Wallet(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			return emit(a.output, out, renderWallet)
		},
	}
}

func (a *app) newEventsCmd() *cobra.Command {
	var q cl.EventQuery
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Recent archived game events",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := a.client().Events(ctx, sess.AccessToken, q)
			if err != nil {
				return err
			}
			return emit(a.output, out, renderEvents)
		},
	}
	cmd.Flags().StringVar(&q.Kind, "kind", "", "event kind, e.g. fish_hunted")
	cmd.Flags().Uint64Var(&q.FishID, "fish", 0, "fish id")
	cmd.Flags().StringVar(&q.Owner, "owner", "", "player id")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 0, "rows to show")
	return cmd
}

func (a *app) newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay locally queued offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := a.client()
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			batch := make([]map[string]any, 0, len(queue))
			for _, q := range queue {
				batch = append(batch, map[string]any{
					"method":          q.Method,
					"path":            q.Path,
					"body":            q.Body,
					"idempotency_key": q.IdempotencyKey,
				})
			}
			checked, err := client.SyncReplay(ctx, sess.AccessToken, batch)
			if err != nil {
				return err
			}
			verdicts, err := decodeInto[replayPayload](checked)
			if err != nil {
				return err
			}
			rejected := make(map[string]string, len(verdicts.Results))
			for _, r := range verdicts.Results {
				if r.Status != "accepted" {
					rejected[r.IdempotencyKey] = r.Reason
				}
			}

			remaining := make([]syncq.Command, 0, len(queue))
			success, dropped := 0, 0
			for _, q := range queue {
				if reason, bad := rejected[q.IdempotencyKey]; bad {
					dropped++
					printWarn(fmt.Sprintf("Dropped %s: %s", q.Describe(), reason))
					continue
				}
				_, err := client.Do(ctx, q.Method, q.Path, sess.AccessToken, q.Body, q.IdempotencyKey)
				switch {
				case err == nil:
					success++
				case cl.IsAPIError(err):
					dropped++
					printError(fmt.Sprintf("Rejected %s: %v", q.Describe(), err))
				default:
					remaining = append(remaining, q)
					printError(fmt.Sprintf("Sync failed for %s: %v", q.Describe(), err))
				}
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d dropped=%d remaining=%d", success, dropped, len(remaining)))
			return nil
		},
	}
}

func queueOnNetworkError(err error, path string, body map[string]any, idem string) error {
	if err == nil {
		return nil
	}
	if cl.IsAPIError(err) {
		return err
	}
	cmd, qerr := syncq.NewCommand(path, body, idem)
	if qerr != nil {
		return err
	}
	if qerr := syncq.Push(cmd); qerr != nil {
		return fmt.Errorf("request failed: %w (queue: %v)", err, qerr)
	}
	printWarn("API unreachable. Queued for `hh sync`.")
	return nil
}

func fishAction(id uint64, action string) string {
	return "/v1/fish/" + strconv.FormatUint(id, 10) + "/" + action
}
