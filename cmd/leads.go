package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/servio-ai/prospector-cli/internal/crm"
	"github.com/servio-ai/prospector-cli/internal/filter"
	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Manage leads",
	Long:  "Commands for adding, listing, moving and logging activity on leads.",
}

// -- leads add --

var leadsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lead, err := leadFromFlags(cmd, args[0])
		if err != nil {
			return err
		}

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		created, err := svc.CreateLead(ctx, lead)
		if err != nil {
			return eris.Wrap(err, "leads add")
		}
		fmt.Fprintf(os.Stdout, "Created lead %s (score %d, %s)\n", created.ID, created.Score, created.Temperature)
		return nil
	},
}

func leadFromFlags(cmd *cobra.Command, name string) (*model.Lead, error) {
	f := cmd.Flags()
	email, _ := f.GetString("email")
	phone, _ := f.GetString("phone")
	company, _ := f.GetString("company")
	category, _ := f.GetString("category")
	location, _ := f.GetString("location")
	stage, _ := f.GetString("stage")
	source, _ := f.GetString("source")
	notes, _ := f.GetString("notes")
	tags, _ := f.GetStringSlice("tags")

	if strings.TrimSpace(name) == "" {
		return nil, eris.New("leads add: name is required")
	}
	st, err := model.ParseStage(stage)
	if err != nil {
		return nil, eris.Wrap(err, "leads add")
	}
	return &model.Lead{
		Name:     strings.TrimSpace(name),
		Email:    email,
		Phone:    phone,
		Company:  company,
		Category: category,
		Location: location,
		Stage:    st,
		Source:   model.ParseSource(source),
		Notes:    notes,
		Tags:     tags,
	}, nil
}

// -- leads list --

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads, optionally filtered",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		conds, err := conditionsFromFlags(cmd)
		if err != nil {
			return err
		}

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := svc.Leads(ctx, conds)
		if err != nil {
			return eris.Wrap(err, "leads list")
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(leads) > limit {
			leads = leads[:limit]
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, leads)
		}
		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}
		formatLeads(os.Stdout, leads)
		return nil
	},
}

// conditionsFromFlags combines --conditions (file), --where (inline JSON)
// and the --stage/--temperature shortcuts, in that order.
func conditionsFromFlags(cmd *cobra.Command) ([]filter.Condition, error) {
	var conds []filter.Condition
	f := cmd.Flags()

	if path, _ := f.GetString("conditions"); path != "" {
		loaded, err := filter.LoadConditions(path)
		if err != nil {
			return nil, err
		}
		conds = append(conds, loaded...)
	}
	if where, _ := f.GetString("where"); where != "" {
		inline, err := filter.DecodeConditions([]byte(where))
		if err != nil {
			return nil, err
		}
		conds = append(conds, inline...)
	}
	if stage, _ := f.GetString("stage"); stage != "" {
		st, err := model.ParseStage(stage)
		if err != nil {
			return nil, err
		}
		conds = append(conds, filter.Condition{Field: "stage", Operator: filter.OpEquals, Value: string(st)})
	}
	if temp, _ := f.GetString("temperature"); temp != "" {
		conds = append(conds, filter.Condition{Field: "temperature", Operator: filter.OpEquals, Value: strings.ToLower(temp)})
	}
	return conds, nil
}

// -- leads move --

var leadsMoveCmd = &cobra.Command{
	Use:   "move <lead-id> <stage>",
	Short: "Move a lead to another funnel stage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		stage, err := model.ParseStage(args[1])
		if err != nil {
			return err
		}

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		id, err := resolveLeadID(ctx, svc, args[0])
		if err != nil {
			return err
		}
		lead, err := svc.MoveStage(ctx, id, stage)
		if err != nil {
			return eris.Wrap(err, "leads move")
		}
		fmt.Fprintf(os.Stdout, "%s is now %s (score %d, %s)\n", lead.Name, lead.Stage, lead.Score, lead.Temperature)
		return nil
	},
}

// -- leads log --

var leadsLogCmd = &cobra.Command{
	Use:   "log <lead-id> <kind> [note]",
	Short: "Log an activity (call, email, message, note) against a lead",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		id, err := resolveLeadID(ctx, svc, args[0])
		if err != nil {
			return err
		}
		note := ""
		if len(args) == 3 {
			note = args[2]
		}
		a, err := svc.LogActivity(ctx, id, strings.ToLower(args[1]), note)
		if err != nil {
			return eris.Wrap(err, "leads log")
		}
		fmt.Fprintf(os.Stdout, "Logged %s on %s at %s\n", a.Kind, truncateID(a.LeadID), a.At.Format("2006-01-02 15:04"))
		return nil
	},
}

// resolveLeadID accepts a full lead ID or the short prefix shown by list.
func resolveLeadID(ctx context.Context, svc *crm.Service, arg string) (string, error) {
	if _, err := svc.Lead(ctx, arg); err == nil {
		return arg, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	matches, err := svc.Leads(ctx, []filter.Condition{{Field: "id", Operator: filter.OpStartsWith, Value: arg}})
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", eris.Wrapf(store.ErrNotFound, "lead %s", arg)
	case 1:
		return matches[0].ID, nil
	default:
		return "", eris.Errorf("lead prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func init() {
	af := leadsAddCmd.Flags()
	af.String("email", "", "contact email")
	af.String("phone", "", "contact phone")
	af.String("company", "", "company name")
	af.String("category", "", "business category")
	af.String("location", "", "city or region")
	af.String("stage", string(model.StageNew), "funnel stage")
	af.String("source", string(model.SourceOther), "lead source")
	af.String("notes", "", "free-form notes")
	af.StringSlice("tags", nil, "comma-separated tags")

	lf := leadsListCmd.Flags()
	lf.String("conditions", "", "YAML or JSON file with filter conditions")
	lf.String("where", "", "inline JSON condition array")
	lf.String("stage", "", "only leads in this stage")
	lf.String("temperature", "", "only hot, warm or cold leads")
	lf.Int("limit", 0, "maximum number of leads to show (0 = all)")
	lf.Bool("json", false, "print JSON instead of a table")

	leadsCmd.AddCommand(leadsAddCmd, leadsListCmd, leadsMoveCmd, leadsLogCmd)
	rootCmd.AddCommand(leadsCmd)
}
