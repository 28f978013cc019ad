package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newCustomersCommand(ctx *commandContext) *cobra.Command {
	var manifestNumber string
	var multiOnly bool

	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Show per-consignee parcel statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				var filter *string
				if strings.TrimSpace(manifestNumber) != "" {
					filter = &manifestNumber
				}
				result, err := svc.stats.CustomerStats(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if multiOnly {
					kept := result.Customers[:0]
					for _, c := range result.Customers {
						if c.MultiParcel {
							kept = append(kept, c)
						}
					}
					result.Customers = kept
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				if len(result.Customers) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No customers")
					return nil
				}
				rows := make([][]string, 0, len(result.Customers))
				for _, c := range result.Customers {
					multi := ""
					if c.MultiParcel {
						multi = "*"
					}
					rows = append(rows, []string{
						c.ConsigneeName,
						strconv.Itoa(c.ParcelCount),
						strconv.Itoa(c.ReceivedCount),
						strconv.Itoa(c.PendingCount),
						strconv.FormatFloat(c.ReceivedRate, 'f', 0, 64) + "%",
						formatTime(c.LastScanAt),
						orDash(c.LastScannedBy),
						multi,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Consignee", "Parcels", "Received", "Pending", "Rate", "Last Scan", "By", "Multi"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				fmt.Fprintf(cmd.OutOrStdout(), "total parcels: %d\n", result.TotalParcels)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&manifestNumber, "manifest", "", "Restrict to one manifest")
	cmd.Flags().BoolVar(&multiOnly, "multi", false, "Only consignees with multiple parcels")
	return cmd
}
