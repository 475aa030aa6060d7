// Command triage-cli runs one triage interview in the terminal.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/triage-assist/server/internal/agent/graph"
	"github.com/triage-assist/server/internal/agent/model"
	"github.com/triage-assist/server/internal/app"
	"github.com/triage-assist/server/internal/core"
	logx "github.com/triage-assist/server/pkg/logger"
)

func main() {
	var (
		offline  = flag.Bool("offline", false, "use the scripted demo model and an in-memory session store")
		symptoms = flag.String("symptoms", "", "comma separated symptoms (prompted when empty)")
		history  = flag.String("history", "", "medical history as text or a JSON object")
		threadID = flag.String("thread", "", "session id (generated when empty)")
		verbose  = flag.Bool("v", false, "log graph activity")
	)
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	opts := cfg.LoggerOpts()
	if !*verbose {
		opts.Environment = core.Production
		opts.Level = "error"
	}
	logx.Init(opts)

	if *offline {
		cfg.LLM.Provider = app.ProviderDemo
		cfg.Session.Store = app.StoreMemory
	}

	ctx := context.Background()
	svc, err := app.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start:", err)
		os.Exit(1)
	}
	defer svc.Close()

	if *threadID == "" {
		*threadID = uuid.NewString()
	}
	cli := &driver{
		machine: svc.Machine,
		in:      bufio.NewScanner(os.Stdin),
		out:     os.Stdout,
	}
	if err := cli.run(ctx, *threadID, *symptoms, *history); err != nil {
		fmt.Fprintln(os.Stderr, "interview failed:", err)
		svc.Close()
		os.Exit(1)
	}
}

type driver struct {
	machine *graph.Machine
	in      *bufio.Scanner
	out     io.Writer
}

func (d *driver) run(ctx context.Context, threadID, symptoms, history string) error {
	if strings.TrimSpace(symptoms) == "" {
		symptoms = d.prompt("Describe your symptoms (comma separated):")
	}
	list := splitSymptoms(symptoms)
	if len(list) == 0 {
		return fmt.Errorf("at least one symptom is required")
	}

	fmt.Fprintln(d.out, "Medical triage interview starting...")
	fmt.Fprintf(d.out, "Patient symptoms: %s\n", strings.Join(list, ", "))
	if history != "" {
		fmt.Fprintf(d.out, "Medical history: %s\n", history)
	}

	res, err := d.machine.Start(ctx, threadID, list, model.NewMedicalHistory(history))
	for err == nil {
		switch res.Type {
		case model.TurnQuestion:
			answer := d.ask(res)
			fmt.Fprintf(d.out, "   Response recorded: %s\n", answer)
			res, err = d.machine.Resume(ctx, threadID, answer, res.Query)
		case model.TurnConfirmation:
			reply := d.prompt(fmt.Sprintf("\n%s (y/N)", res.Message))
			res, err = d.machine.Confirm(ctx, threadID, isYes(reply))
		case model.TurnDiagnosis:
			return d.printDiagnosis(res.Diagnosis)
		default:
			return fmt.Errorf("unexpected result: %s", res.Error)
		}
	}
	return err
}

func (d *driver) ask(res *model.TurnResult) string {
	fmt.Fprintf(d.out, "\nTriage Assistant asks: %s\n", res.Query)
	if res.Format == model.FormatFreeText || len(res.Options) == 0 {
		fmt.Fprintln(d.out, "   (Please describe in your own words)")
		return resolveAnswer(d.prompt("\n Patient response:"), res.Format, res.Options)
	}

	fmt.Fprintln(d.out, "   Available options:")
	for i, opt := range res.Options {
		if opt.Description != "" {
			fmt.Fprintf(d.out, "     %d. %s: %s\n", i+1, opt.Label, opt.Description)
		} else {
			fmt.Fprintf(d.out, "     %d. %s\n", i+1, opt.Label)
		}
	}
	label := "\n Patient response (choose number or describe):"
	if res.Format == model.FormatMultiSelect {
		label = "\n Patient response (numbers separated by commas, or describe):"
	}
	return resolveAnswer(d.prompt(label), res.Format, res.Options)
}

func (d *driver) prompt(label string) string {
	fmt.Fprint(d.out, label+" ")
	if !d.in.Scan() {
		return ""
	}
	return strings.TrimSpace(d.in.Text())
}

func (d *driver) printDiagnosis(res *model.DiagnosisResult) error {
	fmt.Fprintln(d.out, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(d.out, "DIFFERENTIAL DIAGNOSIS (JSON)")
	fmt.Fprintln(d.out, strings.Repeat("=", 60))
	if res == nil {
		fmt.Fprintln(d.out, "No diagnosis was produced.")
		return nil
	}
	if res.Structured == nil {
		fmt.Fprintln(d.out, "Raw output (not valid JSON):")
		fmt.Fprintln(d.out, res.RawText)
		return nil
	}
	enc := json.NewEncoder(d.out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Structured)
}
