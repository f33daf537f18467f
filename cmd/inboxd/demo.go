package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/inboxd/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	bodyStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	budgetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

type demoScenario struct {
	title string
	input string
}

var demoScenarios = []demoScenario{
	{
		title: "Simple task",
		input: "I need to finish the Q3 report for the client by Friday. It's a high priority for work.",
	},
	{
		title: "Note with embedded task",
		input: "Meeting summary from yesterday: We discussed the new marketing campaign. " +
			"The budget is tight this quarter. Scaling the team is on hold. " +
			"Follow up with Jane on the final budget, which is a high priority task for finance.",
	},
}

func newDemoCmd(flags *globalFlags) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the built-in scenarios in one session",
		Long: `Run two sample inputs, a simple task and a meeting note with a follow-up,
through one session and print each entry list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				return runDemo(ctx, cmd.OutOrStdout(), a, plain)
			})
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "disable styling")
	return cmd
}

func runDemo(ctx context.Context, w io.Writer, a *app, plain bool) error {
	render := func(s lipgloss.Style, text string) string {
		if plain {
			return text
		}
		return s.Render(text)
	}

	sess := session.New()
	limit := a.orch.Rules().MaxHighPriority

	for i, sc := range demoScenarios {
		res, err := a.orch.Run(ctx, sc.input, sess)
		if err != nil {
			return err
		}

		body, err := json.MarshalIndent(res.Entries, "", "  ")
		if err != nil {
			return err
		}

		fmt.Fprintln(w, render(headerStyle, fmt.Sprintf("Scenario %d: %s", i+1, sc.title)))
		fmt.Fprintln(w, render(inputStyle, sc.input))
		fmt.Fprintln(w, render(bodyStyle, string(body)))
		for _, se := range res.Errors {
			fmt.Fprintln(w, render(errorStyle, fmt.Sprintf("%s: %s", se.Stage, se.Message)))
		}
		fmt.Fprintln(w, render(budgetStyle, fmt.Sprintf("high priority used: %d/%d", res.HighPriorityCount, limit)))
		fmt.Fprintln(w)
	}
	return nil
}
