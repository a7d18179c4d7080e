package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/cargoviz-realtime/internal/geometry"
	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
)

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func projectsCmd() *cobra.Command {
	var mine bool

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects of the organization (or only yours with --mine)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			user, err := a.requireUser()
			if err != nil {
				return err
			}

			var projects []model.Project
			if mine {
				projects, err = a.client.GetProjectsForUser(cmd.Context(), user.ID)
			} else {
				projects, err = a.client.GetProjects(cmd.Context(), user.OrganizationID)
			}
			if err != nil {
				return fmt.Errorf("fetching projects: %w", err)
			}

			tw := newTable()
			fmt.Fprintln(tw, "ID\tNAME\tSTART\tEND")
			for _, p := range projects {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.StartDate, p.EndDate)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&mine, "mine", false, "only projects assigned to the logged-in user")
	return cmd
}

func areasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "areas",
		Short: "List and manage yard zones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			user, err := a.requireUser()
			if err != nil {
				return err
			}

			areas, err := a.client.GetAreas(cmd.Context(), user.OrganizationID)
			if err != nil {
				return fmt.Errorf("fetching areas: %w", err)
			}

			tw := newTable()
			fmt.Fprintln(tw, "ID\tNAME\tSURFACE\tSQ FT\tWIDTH (m)\tLENGTH (m)\tPERIMETER (m)")
			for _, area := range areas {
				m := geometry.Measure(area.Coordinates)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f\t%.1f\t%.1f\t%.1f\n",
					area.ID, area.Name, area.Surface, area.Area, m.WidthM, m.LengthM, m.PerimeterM)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(areaCreateCmd())
	cmd.AddCommand(areaDeleteCmd())
	return cmd
}

func areaCreateCmd() *cobra.Command {
	var (
		surface string
		coords  string
	)

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a zone from a polygon",
		Long: `Create a zone. Coordinates are a JSON array of [lat, lon] pairs; the area
in square feet is computed from the polygon.

Example:
  cargoviz areas create "Overflow" --coords '[[47.606,-122.332],[47.607,-122.332],[47.607,-122.330]]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var points []model.Point
			if err := json.Unmarshal([]byte(coords), &points); err != nil {
				return fmt.Errorf("invalid --coords: %w", err)
			}
			if len(points) < 3 {
				return fmt.Errorf("a zone needs at least three coordinates")
			}

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			user, err := a.requireUser()
			if err != nil {
				return err
			}

			created, err := a.client.CreateArea(cmd.Context(), model.CreateAreaRequest{
				Name:           args[0],
				Surface:        surface,
				Coordinates:    points,
				Area:           geometry.SquareFeet(geometry.Measure(points).AreaM2),
				OrganizationID: user.OrganizationID,
			})
			if err != nil {
				return fmt.Errorf("creating area: %w", err)
			}
			fmt.Printf("Created %s (%s, %.0f sq ft)\n", created.Name, created.ID, created.Area)
			return nil
		},
	}

	cmd.Flags().StringVar(&surface, "surface", "", "surface type")
	cmd.Flags().StringVar(&coords, "coords", "", "polygon as JSON [[lat,lon],...]")
	_ = cmd.MarkFlagRequired("coords")
	return cmd
}

func areaDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			if _, err := a.requireUser(); err != nil {
				return err
			}
			if err := a.client.DeleteArea(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting area: %w", err)
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func cargoCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "cargo",
		Short: "List and manage cargo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			user, err := a.requireUser()
			if err != nil {
				return err
			}

			cargo, err := a.client.GetCargo(cmd.Context(), user.OrganizationID)
			if err != nil {
				return fmt.Errorf("fetching cargo: %w", err)
			}

			tw := newTable()
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tZONE\tWEIGHT")
			for _, c := range cargo {
				if status != "" && string(c.Status) != status {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, c.Status, c.Zone, c.Weight)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show cargo with this status")
	cmd.AddCommand(cargoStatusCmd())
	cmd.AddCommand(cargoDeleteCmd())
	return cmd
}

func cargoStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status ID STATUS",
		Short: "Set a cargo item's status (Placed, Pending or Conflict)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := model.CargoStatus(args[1])
			if !model.ValidStatus(status) {
				return fmt.Errorf("invalid status %q", args[1])
			}

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			if _, err := a.requireUser(); err != nil {
				return err
			}

			updated, err := a.client.UpdateCargo(cmd.Context(), args[0], model.UpdateCargoRequest{Status: &status})
			if err != nil {
				return fmt.Errorf("updating cargo: %w", err)
			}
			fmt.Printf("%s is now %s\n", updated.Name, updated.Status)
			return nil
		},
	}
}

func cargoDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a cargo item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			if _, err := a.requireUser(); err != nil {
				return err
			}
			if err := a.client.DeleteCargo(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting cargo: %w", err)
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}
