package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/parcel-intake-backend/internal/manifests"
	"github.com/angelmondragon/parcel-intake-backend/pkg/pagination"
)

func newManifestsCommand(ctx *commandContext) *cobra.Command {
	manifestsCmd := &cobra.Command{
		Use:   "manifests",
		Short: "Inspect and manage ingested manifests",
	}

	manifestsCmd.AddCommand(newManifestsListCommand(ctx))
	manifestsCmd.AddCommand(newManifestsStatsCommand(ctx))
	manifestsCmd.AddCommand(newManifestsShowCommand(ctx))
	manifestsCmd.AddCommand(newManifestsReportCommand(ctx))
	manifestsCmd.AddCommand(newManifestsDeleteCommand(ctx))

	return manifestsCmd
}

func newManifestsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var cursor string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List manifests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				list, err := svc.manifests.List(cmd.Context(), pagination.Params{Limit: limit, Cursor: cursor})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, list)
				}
				if len(list.Manifests) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No manifests")
					return nil
				}
				rows := make([][]string, 0, len(list.Manifests))
				for _, m := range list.Manifests {
					rows = append(rows, []string{
						m.ManifestNumber,
						formatDate(m.Date),
						orDash(m.UploadedBy),
						strconv.Itoa(m.ParcelCount),
						strconv.Itoa(m.ReceivedCount),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Manifest", "Date", "Uploaded By", "Parcels", "Received"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				if list.NextCursor != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "next cursor: %s\n", list.NextCursor)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", pagination.DefaultLimit, "Page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Cursor returned by a previous page")
	return cmd
}

func newManifestsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show scan progress per manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				stats, err := svc.manifests.ScanStats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No manifests")
					return nil
				}
				rows := make([][]string, 0, len(stats))
				for _, s := range stats {
					rows = append(rows, []string{
						s.ManifestNumber,
						formatDate(s.Date),
						strconv.Itoa(s.Total),
						strconv.Itoa(s.Scanned),
						strconv.Itoa(s.Pending),
						strconv.FormatFloat(s.Percentage, 'f', 1, 64) + "%",
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Manifest", "Date", "Total", "Scanned", "Pending", "Done"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newManifestsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <manifest-number>",
		Short: "Show the parcels of one manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				detail, err := svc.manifests.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, detail)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Manifest %s (%s): %d/%d received\n",
					detail.ManifestNumber, formatDate(detail.Date), detail.ReceivedCount, detail.ParcelCount)
				fmt.Fprint(cmd.OutOrStdout(), renderParcels(detail.Parcels))
				return nil
			})
		},
	}
}

func renderParcels(parcels []manifests.ParcelDTO) string {
	rows := make([][]string, 0, len(parcels))
	for _, p := range parcels {
		received := "no"
		if p.Received {
			received = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(p.Position),
			p.TrackingNumber,
			orDash(p.ConsigneeName),
			received,
			formatTime(p.ReceivedAt),
			orDash(p.ScannedByUser),
		})
	}
	return renderTable(
		[]string{"#", "Tracking", "Consignee", "Received", "At", "By"},
		rows,
		[]columnAlignment{alignRight},
	)
}

func newManifestsReportCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "report <manifest-number>",
		Short: "Write the CSV scan report of one manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				out := cmd.OutOrStdout()
				if outPath != "" {
					f, err := os.Create(outPath)
					if err != nil {
						return err
					}
					defer f.Close()
					out = f
				}
				w := bufio.NewWriter(out)
				if err := svc.manifests.Report(cmd.Context(), args[0], w); err != nil {
					return err
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (defaults to stdout)")
	return cmd
}

func newManifestsDeleteCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <manifest-number>",
		Short: "Delete a manifest and its parcels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm(cmd, fmt.Sprintf("Delete manifest %s and all of its parcels?", args[0])) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				if err := svc.manifests.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted manifest %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	answer, err := reader.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
