package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/ashureev/schema-quest/internal/domain"
	"github.com/ashureev/schema-quest/internal/export"
	"github.com/ashureev/schema-quest/internal/opsgrpc"
	"github.com/ashureev/schema-quest/internal/progression"
	"github.com/ashureev/schema-quest/internal/store"
)

const defaultDBPath = "./data/schemaquest.db"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SCHEMAQUEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "questctl",
		Short:         "Schema Quest operator CLI",
		Long:          "questctl lists, inspects, exports and sweeps quest sessions stored by the Schema Quest server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("db", defaultDBPath, "path to the SQLite database")
	root.PersistentFlags().Bool("json", false, "output JSON")
	_ = v.BindPFlag("db", root.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	// The server's DB_PATH is honoured when no SCHEMAQUEST_DB is set.
	_ = v.BindEnv("db", "SCHEMAQUEST_DB", "DB_PATH")

	root.AddCommand(sessionsCmd(v))
	root.AddCommand(showCmd(v))
	root.AddCommand(exportCmd(v))
	root.AddCommand(sweepCmd(v))
	root.AddCommand(healthCmd(v))
	return root
}

func withStore(ctx context.Context, v *viper.Viper, fn func(ctx context.Context, repo store.Repository) error) error {
	path := v.GetString("db")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open database %s: %w", path, err)
	}
	repo, err := store.NewSQLite(path)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(ctx, repo)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadSession(ctx context.Context, repo store.Repository, id string) (*domain.SessionRecord, *progression.Session, error) {
	rec, err := repo.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, fmt.Errorf("session %s not found", id)
	}
	sess := &progression.Session{}
	if err := json.Unmarshal([]byte(rec.StateJSON), sess); err != nil {
		return nil, nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return rec, sess, nil
}

func sessionsCmd(v *viper.Viper) *cobra.Command {
	var f store.SessionFilter
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), v, func(ctx context.Context, repo store.Repository) error {
				recs, err := repo.ListSessions(ctx, f)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if v.GetBool("json") {
					rows := make([]map[string]any, 0, len(recs))
					for _, r := range recs {
						rows = append(rows, map[string]any{
							"session_id": r.SessionID,
							"user_id":    r.UserID,
							"source":     r.SourceName,
							"tier":       r.Tier,
							"score":      r.Score,
							"status":     progression.ComputeStatusLevel(r.Score),
							"decisions":  r.Decisions,
							"completed":  r.Completed,
							"updated_at": r.UpdatedAt,
						})
					}
					return printJSON(out, rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(out)
				tw.AppendHeader(table.Row{"ID", "User", "Source", "Tier", "Score", "Status", "Decisions", "Completed", "Updated"})
				for _, r := range recs {
					tw.AppendRow(table.Row{
						r.SessionID, r.UserID, r.SourceName, r.Tier, r.Score,
						progression.ComputeStatusLevel(r.Score).Label(),
						fmt.Sprintf("%d/%d", r.Decisions, progression.CompleteAt),
						r.Completed, r.UpdatedAt.Format(time.RFC3339),
					})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "", "", "", "Total", len(recs)})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.UserID, "user", "", "only sessions owned by this user")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum number of sessions")
	return cmd
}

func showCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session's decisions, score and status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), v, func(ctx context.Context, repo store.Repository) error {
				rec, sess, err := loadSession(ctx, repo, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if v.GetBool("json") {
					return printJSON(out, sess)
				}

				fmt.Fprintf(out, "Session:  %s (user %s)\n", sess.ID, rec.UserID)
				fmt.Fprintf(out, "Source:   %s\n", sess.SourceName)
				fmt.Fprintf(out, "Tier:     %s\n", sess.Tier)
				fmt.Fprintf(out, "Score:    %d (%s)\n", sess.Score, sess.Status().Label())
				fmt.Fprintf(out, "Complete: %t\n", sess.Completed)

				tw := table.NewWriter()
				tw.SetOutputMirror(out)
				tw.AppendHeader(table.Row{"#", "Field", "Decision", "Tier", "Points", "Rationale"})
				for _, d := range sess.Decisions {
					tw.AppendRow(table.Row{d.ID, d.FieldID, d.Value, d.Tier, progression.ScoreDelta(d.Tier, d.Rationale), d.Rationale})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func exportCmd(v *viper.Viper) *cobra.Command {
	var formatFlag, outPath string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a completed session's final package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), v, func(ctx context.Context, repo store.Repository) error {
				_, sess, err := loadSession(ctx, repo, args[0])
				if err != nil {
					return err
				}
				if sess.Package == nil {
					return errors.New("session has no final package yet")
				}
				data, err := export.Marshal(sess.Package, format)
				if err != nil {
					return err
				}
				if outPath == "" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(outPath, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outPath, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", outPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&formatFlag, "format", "json", "json or yaml")
	cmd.Flags().StringVar(&outPath, "out", "", "write to file instead of stdout")
	return cmd
}

func sweepCmd(v *viper.Viper) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete incomplete sessions idle longer than --ttl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}
			return withStore(cmd.Context(), v, func(ctx context.Context, repo store.Repository) error {
				n, err := repo.CleanupStaleSessions(ctx, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d stale sessions\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "idle time after which incomplete sessions are deleted")
	return cmd
}

func healthCmd(v *viper.Viper) *cobra.Command {
	var addr string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the server's gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			status, err := opsgrpc.Probe(ctx, addr, opsgrpc.ServiceName)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				data, err := protojson.Marshal(&healthpb.HealthCheckResponse{Status: status})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9090", "gRPC health address")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "probe timeout")
	return cmd
}
