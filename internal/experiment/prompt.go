package experiment

import (
	"fmt"
	"strings"

	"labloop/internal/agent"
	"labloop/internal/idea"
	"labloop/internal/results"
	"labloop/internal/runner"
	"labloop/internal/workspace"
)

// PlotPrompt opens the plotting phase.
func PlotPrompt(interpreter string) string {
	return "Great job! Please modify `plot.py` to generate the most relevant plots for the final writeup. \n\n" +
		"In particular, be sure to fill in the \"labels\" dictionary with the correct names for each run that you want to plot.\n\n" +
		"Only the runs in the `labels` dictionary will be plotted, so make sure to include all relevant runs.\n\n" +
		fmt.Sprintf("We will be running the command `%s %s` to generate the plots.", interpreter, workspace.PlotScript)
}

// NotesPrompt is the single write-up instruction.
const NotesPrompt = "Please modify `notes.txt` with a description of what each plot shows along with the filename of the figure. Please do so in-depth.\n\n" +
	"Somebody else will be using `notes.txt` to write a report on this in the future."

const noBaseline = "none available"

func experimentCommand(interpreter string, runDir string) string {
	return fmt.Sprintf("%s %s --out_dir=%s", interpreter, workspace.ExperimentScript, runDir)
}

// SeedPrompt is the first prompt of a session.
func SeedPrompt(i idea.Idea, maxRuns int, baseline results.Summary, interpreter string) string {
	baselineText := noBaseline
	if baseline != nil {
		baselineText = results.Format(baseline)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your goal is to implement the following idea: %s.\n", i.Title)
	fmt.Fprintf(&b, "The proposed experiment is as follows: %s.\n", i.Experiment)
	fmt.Fprintf(&b, "You are given a total of up to %d runs to complete the necessary experiments. You do not need to use all %d.\n\n", maxRuns, maxRuns)
	b.WriteString("First, plan the list of experiments you would like to run. For example, if you are sweeping over a specific hyperparameter, plan each value you would like to test for each run.\n\n")
	b.WriteString("Note that we already provide the vanilla baseline results, so you do not need to re-run it.\n\n")
	fmt.Fprintf(&b, "For reference, the baseline results are as follows:\n\n%s\n\n", baselineText)
	fmt.Fprintf(&b, "After you complete each change, we will run the command `%s` where i is the run number and evaluate the results.\n", experimentCommand(interpreter, "run_i"))
	b.WriteString("YOUR PROPOSED CHANGE MUST USE THIS COMMAND FORMAT, DO NOT ADD ADDITIONAL COMMAND LINE ARGS.\n")
	b.WriteString("You can then implement the next thing on your list.")
	return b.String()
}

// SuccessPrompt reports the results of run and pins the command of the next one.
func SuccessPrompt(run int, summary results.Summary, interpreter string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %d completed. Here are the results:\n%s\n\n", run, results.Format(summary))
	b.WriteString("Decide if you need to re-plan your experiments given the result (you often will not need to).\n\n")
	b.WriteString("Someone else will be using `notes.txt` to perform a writeup on this in the future.\n")
	fmt.Fprintf(&b, "Please include *all* relevant information for the writeup on Run %d, including an experiment description and the run number. Be as verbose as necessary.\n\n", run)
	b.WriteString("Then, implement the next thing on your list.\n")
	fmt.Fprintf(&b, "We will then run the command `%s`.\n", experimentCommand(interpreter, workspace.RunDirName(run+1)))
	b.WriteString("YOUR PROPOSED CHANGE MUST USE THIS COMMAND FORMAT, DO NOT ADD ADDITIONAL COMMAND LINE ARGS.\n")
	fmt.Fprintf(&b, "If you are finished with experiments, respond with '%s'.", agent.CompletionMarker)
	return b.String()
}

// RunFailurePrompt reports a failed or timed-out experiment run.
func RunFailurePrompt(outcome runner.Outcome) string {
	if outcome.Status == runner.StatusTimedOut {
		return "Run " + outcome.Diagnostic
	}
	return "Run failed with the following error " + outcome.Diagnostic
}

// PlotFailurePrompt reports a failed or timed-out plotting run.
func PlotFailurePrompt(outcome runner.Outcome) string {
	if outcome.Status == runner.StatusTimedOut {
		return "Plotting " + outcome.Diagnostic
	}
	return "Plotting failed with the following error " + outcome.Diagnostic
}
