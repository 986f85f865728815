package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newMaterialsCommand(ctx *commandContext) *cobra.Command {
	materialsCmd := &cobra.Command{
		Use:   "materials",
		Short: "Inspect the physics materials database",
	}

	materialsCmd.AddCommand(newMaterialsListCommand(ctx))
	materialsCmd.AddCommand(newMaterialsCategoriesCommand(ctx))
	materialsCmd.AddCommand(newMaterialsResolveCommand(ctx))

	return materialsCmd
}

func newMaterialsResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <name>",
		Short: "Show how a material name resolves, including fuzzy fallback",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := materialsDatabase(cfg)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			props, match := db.Resolve(query)
			rows := [][]string{
				{"Query", query},
				{"Match", string(match)},
				{"Material", props.Name},
				{"Density", fmt.Sprintf("%.0f", props.Density)},
				{"Friction", fmt.Sprintf("%.2f", props.Friction)},
				{"Restitution", fmt.Sprintf("%.2f", props.Restitution)},
				{"Shape", props.CollisionShape},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}
}

func newMaterialsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every material and its physical constants",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := materialsDatabase(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			rows := make([][]string, 0, db.Len())
			for _, name := range db.Names() {
				props, _ := db.Get(name)
				rows = append(rows, []string{
					name,
					fmt.Sprintf("%.0f", props.Density),
					fmt.Sprintf("%.2f", props.Friction),
					fmt.Sprintf("%.2f", props.Restitution),
					props.CollisionShape,
				})
			}
			table := renderTable(
				[]string{"Material", "Density", "Friction", "Restitution", "Shape"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
			)
			fmt.Fprintln(out, table)

			fluidNames := db.FluidNames()
			if len(fluidNames) == 0 {
				return nil
			}
			fluidRows := make([][]string, 0, len(fluidNames))
			for _, name := range fluidNames {
				props, _ := db.ResolveFluid(name)
				fluidRows = append(fluidRows, []string{
					name,
					fmt.Sprintf("%.0f", props.Density),
					fmt.Sprintf("%.4f", props.Viscosity),
				})
			}
			fluidTable := renderTable(
				[]string{"Fluid", "Density", "Viscosity"},
				fluidRows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			)
			fmt.Fprintln(out, fluidTable)
			return nil
		},
	}
}

func newMaterialsCategoriesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List materials grouped by family",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := materialsDatabase(cfg)
			if err != nil {
				return err
			}

			groups := db.Categories()
			families := make([]string, 0, len(groups))
			for family := range groups {
				families = append(families, family)
			}
			sort.Strings(families)

			rows := make([][]string, 0, len(families))
			for _, family := range families {
				members := groups[family]
				rows = append(rows, []string{
					family,
					fmt.Sprintf("%d", len(members)),
					joinTruncated(members, 60),
				})
			}
			table := renderTable(
				[]string{"Family", "Count", "Materials"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func joinTruncated(values []string, limit int) string {
	joined := ""
	for i, value := range values {
		candidate := joined
		if i > 0 {
			candidate += ", "
		}
		candidate += value
		if len(candidate) > limit {
			return joined + fmt.Sprintf(", +%d more", len(values)-i)
		}
		joined = candidate
	}
	return joined
}
