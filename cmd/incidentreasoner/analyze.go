package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/incidentreasoner/internal/logging"
	"github.com/dshills/incidentreasoner/internal/pipeline"
	"github.com/dshills/incidentreasoner/internal/render"
	"github.com/dshills/incidentreasoner/internal/safety"
	"github.com/dshills/incidentreasoner/internal/schema"
)

type analyzeFlags struct {
	configPath     string
	profileName    string
	format         string
	out            string
	failOnNeedInfo bool
	noEscalation   bool
	checkCommand   string
	input          string // file path, "" or "-" for stdin
	stdin          io.Reader
	stdout         io.Writer
}

func newAnalyzeCmd() *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze [log-file]",
		Short: "Analyze an incident log and print a remediation plan",
		Long: "Analyze reads a log from the named file, or from stdin when the file is\n" +
			"omitted or \"-\", and prints a safety-checked StructuredPlan.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.input = args[0]
			}
			f.stdin = cmd.InOrStdin()
			f.stdout = cmd.OutOrStdout()
			return runAnalyze(cmd.Context(), f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	fl.StringVarP(&f.profileName, "profile", "p", "", "incident profile (see 'profiles')")
	fl.StringVarP(&f.format, "format", "f", "json", "output format: json or markdown")
	fl.StringVarP(&f.out, "out", "o", "", "write output to this file instead of stdout")
	fl.BoolVar(&f.failOnNeedInfo, "fail-on-need-info", false, "exit 2 when the result is need_more_info")
	fl.BoolVar(&f.noEscalation, "no-escalation", false, "disable the fallback evidence round")
	fl.StringVar(&f.checkCommand, "check-command", "", "only run the safety gate on this command and exit")
	return cmd
}

func runAnalyze(ctx context.Context, f analyzeFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if f.stdout == nil {
		f.stdout = os.Stdout
	}
	if f.checkCommand != "" {
		return runCheckCommand(f.stdout, f.checkCommand)
	}
	if f.format != "json" && f.format != "markdown" {
		return withCode(exitCodeBadInput, fmt.Errorf("--format must be json or markdown, got %q", f.format))
	}

	logText, err := readInput(f)
	if err != nil {
		return withCode(exitCodeBadInput, err)
	}
	if strings.TrimSpace(logText) == "" {
		return withCode(exitCodeBadInput, errors.New("empty log"))
	}

	cfg, err := loadConfig(f.configPath, f.profileName)
	if err != nil {
		return err
	}
	if f.noEscalation {
		disabled := false
		cfg.Pipeline.Escalation = &disabled
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	plan, err := a.orch.Analyze(ctx, logText)
	if err != nil {
		var te *pipeline.TransportError
		if errors.As(err, &te) {
			return withCode(exitCodeAPIError, err)
		}
		return err
	}

	if err := writeOutput(f, plan); err != nil {
		return err
	}
	if f.failOnNeedInfo && plan.Status == schema.StatusNeedMoreInfo {
		return withCode(exitCodeNeedMoreInfo, errors.New("analysis needs more information"))
	}
	return nil
}

func readInput(f analyzeFlags) (string, error) {
	if f.input == "" || f.input == "-" {
		if f.stdin == nil {
			f.stdin = os.Stdin
		}
		b, err := io.ReadAll(f.stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(f.input)
	if err != nil {
		return "", fmt.Errorf("read log: %w", err)
	}
	return strings.ToValidUTF8(string(b), ""), nil
}

func writeOutput(f analyzeFlags, plan schema.StructuredPlan) error {
	var data []byte
	switch f.format {
	case "markdown":
		data = []byte(render.RenderMarkdown(plan))
	default:
		b, err := render.RenderJSON(plan)
		if err != nil {
			return err
		}
		data = append(b, '\n')
	}

	if f.out == "" {
		_, err := f.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(f.out, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func runCheckCommand(w io.Writer, command string) error {
	if pattern, unsafe := safety.Match(command); unsafe {
		fmt.Fprintf(w, "unsafe (%s): %s\n", pattern, command)
		return withCode(exitCodeNeedMoreInfo, fmt.Errorf("command matches destructive pattern %q", pattern))
	}
	fmt.Fprintf(w, "ok: %s\n", command)
	return nil
}
