package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"
)

// New builds the remedyctl command tree.
func New() *cli.Command {
	return &cli.Command{
		Name:  "remedyctl",
		Usage: "operate the remediation orchestration service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "base URL of the remedy API",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("REMEDY_SERVER"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "request timeout",
				Value: 0,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "job",
				Usage: "content jobs",
				Commands: []*cli.Command{
					{
						Name:  "get",
						Usage: "show a job status",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "id", Usage: "job id", Required: true},
						},
						Action: JobGetAction,
					},
					{
						Name:  "submit",
						Usage: "create and start a content job",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "id", Usage: "job id (generated when empty)"},
							&cli.StringSliceFlag{Name: "mode", Usage: "stage to run, repeatable (e.g. reading, learn_by_solving)", Required: true},
							&cli.StringFlag{Name: "topic", Usage: "topic or focus"},
							&cli.StringFlag{Name: "grade", Usage: "grade level, e.g. grade_7"},
							&cli.StringFlag{Name: "payload", Usage: "extra payload as a JSON object"},
						},
						Action: JobSubmitAction,
					},
				},
			},
			{
				Name:  "plan",
				Usage: "multi-gap remediation plans",
				Commands: []*cli.Command{
					{
						Name:  "submit",
						Usage: "submit a plan from gap codes or a JSON request file",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "student", Usage: "student id"},
							&cli.StringSliceFlag{Name: "gap", Usage: "gap code, repeatable"},
							&cli.StringFlag{Name: "file", Usage: "path to a JSON plan request"},
						},
						Action: PlanSubmitAction,
					},
					{
						Name:  "aggregate",
						Usage: "show a plan with all child content",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "id", Usage: "plan job id", Required: true},
						},
						Action: PlanAggregateAction,
					},
				},
			},
			{
				Name:  "escalate",
				Usage: "run the foundational escalation loop for one gap",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "gap", Usage: "gap code", Required: true},
					&cli.StringFlag{Name: "student", Usage: "student id", Required: true},
					&cli.StringFlag{Name: "grade", Usage: "grade level, e.g. grade_10", Required: true},
					&cli.StringFlag{Name: "subject", Usage: "subject"},
					&cli.StringSliceFlag{Name: "score", Usage: "scripted score per cycle, repeatable"},
				},
				Action: EscalateAction,
			},
			{
				Name:  "prereq",
				Usage: "prerequisite discovery",
				Commands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "discover prerequisites for a gap",
						Flags:  append(prereqKeyFlags(), &cli.IntFlag{Name: "depth", Usage: "grade levels to walk down", Value: 2}),
						Action: PrereqShowAction,
					},
					{
						Name:   "invalidate",
						Usage:  "drop a cached discovery result",
						Flags:  prereqKeyFlags(),
						Action: PrereqInvalidateAction,
					},
				},
			},
		},
	}
}

func prereqKeyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "gap", Usage: "gap code", Required: true},
		&cli.StringFlag{Name: "grade", Usage: "grade level", Required: true},
		&cli.StringFlag{Name: "subject", Usage: "subject"},
	}
}

func clientFor(cmd *cli.Command) *apiClient {
	return newAPIClient(cmd.String("server"), cmd.Duration("timeout"))
}

func printJSON(cmd *cli.Command, v any) error {
	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func JobGetAction(ctx context.Context, cmd *cli.Command) error {
	out, err := clientFor(cmd).do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(cmd.String("id")), nil, nil)
	if err != nil {
		return err
	}
	return printJSON(cmd, out["job"])
}

func JobSubmitAction(ctx context.Context, cmd *cli.Command) error {
	payload := map[string]any{}
	if raw := strings.TrimSpace(cmd.String("payload")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return fmt.Errorf("--payload must be a JSON object: %w", err)
		}
	}
	if v := cmd.String("topic"); v != "" {
		payload["topic"] = v
	}
	if v := cmd.String("grade"); v != "" {
		payload["grade_level"] = v
	}
	out, err := clientFor(cmd).do(ctx, http.MethodPost, "/v1/content/jobs", nil, map[string]any{
		"job_id":  cmd.String("id"),
		"modes":   cmd.StringSlice("mode"),
		"payload": payload,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func PlanSubmitAction(ctx context.Context, cmd *cli.Command) error {
	var body map[string]any
	if path := cmd.String("file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read plan file: %w", err)
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return fmt.Errorf("parse plan file: %w", err)
		}
	} else {
		codes := cmd.StringSlice("gap")
		if cmd.String("student") == "" || len(codes) == 0 {
			return fmt.Errorf("either --file or --student with at least one --gap is required")
		}
		gaps := make([]map[string]any, 0, len(codes))
		for _, c := range codes {
			gaps = append(gaps, map[string]any{"code": c})
		}
		body = map[string]any{"student_id": cmd.String("student"), "gaps": gaps}
	}
	out, err := clientFor(cmd).do(ctx, http.MethodPost, "/v1/plans", nil, body)
	if err != nil {
		if out != nil {
			_ = printJSON(cmd, out)
		}
		return err
	}
	return printJSON(cmd, out)
}

func PlanAggregateAction(ctx context.Context, cmd *cli.Command) error {
	out, err := clientFor(cmd).do(ctx, http.MethodGet, "/v1/plans/"+url.PathEscape(cmd.String("id"))+"/aggregate", nil, nil)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func EscalateAction(ctx context.Context, cmd *cli.Command) error {
	scores, err := parseScores(cmd.StringSlice("score"))
	if err != nil {
		return err
	}
	body := map[string]any{
		"gap_code":    cmd.String("gap"),
		"student_id":  cmd.String("student"),
		"grade_level": cmd.String("grade"),
		"subject":     cmd.String("subject"),
	}
	if len(scores) > 0 {
		body["scores"] = scores
	}
	out, err := clientFor(cmd).do(ctx, http.MethodPost, "/v1/remediation/escalate", nil, body)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func PrereqShowAction(ctx context.Context, cmd *cli.Command) error {
	q := prereqQuery(cmd)
	q.Set("depth", strconv.Itoa(int(cmd.Int("depth"))))
	out, err := clientFor(cmd).do(ctx, http.MethodGet, "/v1/prerequisites", q, nil)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func PrereqInvalidateAction(ctx context.Context, cmd *cli.Command) error {
	out, err := clientFor(cmd).do(ctx, http.MethodDelete, "/v1/prerequisites/cache", prereqQuery(cmd), nil)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func prereqQuery(cmd *cli.Command) url.Values {
	q := url.Values{}
	q.Set("gap_code", cmd.String("gap"))
	q.Set("grade_level", cmd.String("grade"))
	if s := cmd.String("subject"); s != "" {
		q.Set("subject", s)
	}
	return q
}

func parseScores(raw []string) ([]float64, error) {
	out := make([]float64, 0, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			f, err := strconv.ParseFloat(part, 64)
			if err != nil || f < 0 || f > 1 {
				return nil, fmt.Errorf("--score %q must be a number in [0,1]", part)
			}
			out = append(out, f)
		}
	}
	return out, nil
}
