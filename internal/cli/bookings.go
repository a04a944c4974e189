package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soyeahso/clinicbot/internal/store"
)

func newBookingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "Inspect saved bookings",
	}

	cmd.AddCommand(newBookingsListCmd())
	cmd.AddCommand(newBookingsSearchCmd())
	cmd.AddCommand(newBookingsShowCmd())
	cmd.AddCommand(newBookingsStatsCmd())
	return cmd
}

// withBookings opens the configured booking repository for one command.
func withBookings(ctx context.Context, fn func(repo store.BookingRepository) error) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, closeRepo, err := openBookings(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeRepo()
	return fn(repo)
}

func newBookingsListCmd() *cobra.Command {
	var (
		limit int
		asCSV bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bookings, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			return withBookings(cmd.Context(), func(repo store.BookingRepository) error {
				list, err := repo.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asCSV {
					return writeBookingsCSV(cmd.OutOrStdout(), list)
				}
				return writeBookingsTable(cmd.OutOrStdout(), list)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of bookings (0 for all)")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "write CSV instead of a table")
	return cmd
}

func newBookingsSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search TERM",
		Short: "Find bookings by customer name or email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBookings(cmd.Context(), func(repo store.BookingRepository) error {
				list, err := repo.Search(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeBookingsTable(cmd.OutOrStdout(), list)
			})
		},
	}
}

func newBookingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid booking id %q", args[0])
			}
			return withBookings(cmd.Context(), func(repo store.BookingRepository) error {
				b, err := repo.Get(cmd.Context(), id)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("booking %d not found", id)
				}
				if err != nil {
					return err
				}
				writeBooking(cmd.OutOrStdout(), b)
				return nil
			})
		},
	}
}

func newBookingsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise bookings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBookings(cmd.Context(), func(repo store.BookingRepository) error {
				st, err := repo.Stats(cmd.Context())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Total:            %d\n", st.Total)
				fmt.Fprintf(w, "Today:            %d\n", st.Today)
				fmt.Fprintf(w, "Confirmed:        %d\n", st.Confirmed)
				fmt.Fprintf(w, "Unique customers: %d\n", st.UniqueCustomers)
				return nil
			})
		},
	}
}

var bookingColumns = []string{"id", "name", "email", "phone", "type", "date", "time", "status", "created"}

func bookingRow(b store.Booking) []string {
	return []string{
		strconv.FormatInt(b.ID, 10),
		b.Customer.Name,
		b.Customer.Email,
		b.Customer.Phone,
		b.BookingType,
		b.Date,
		b.Time,
		b.Status,
		b.CreatedAt.UTC().Format("2006-01-02 15:04"),
	}
}

func writeBookingsTable(w io.Writer, list []store.Booking) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No bookings.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE\tTYPE\tDATE\tTIME\tSTATUS\tCREATED")
	for _, b := range list {
		row := bookingRow(b)
		for i, col := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, col)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func writeBookingsCSV(w io.Writer, list []store.Booking) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(bookingColumns); err != nil {
		return err
	}
	for _, b := range list {
		if err := cw.Write(bookingRow(b)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeBooking(w io.Writer, b *store.Booking) {
	fmt.Fprintf(w, "Booking #%d (%s)\n", b.ID, b.Status)
	fmt.Fprintf(w, "  Name:     %s\n", b.Customer.Name)
	fmt.Fprintf(w, "  Email:    %s\n", b.Customer.Email)
	fmt.Fprintf(w, "  Phone:    %s\n", b.Customer.Phone)
	fmt.Fprintf(w, "  Type:     %s\n", b.BookingType)
	fmt.Fprintf(w, "  Date:     %s\n", b.Date)
	fmt.Fprintf(w, "  Time:     %s\n", b.Time)
	fmt.Fprintf(w, "  Created:  %s\n", b.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
}
