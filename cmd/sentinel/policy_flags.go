package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/cloudsentinel/internal/model"
)

// policyFlags collects an access policy from the command line.
type policyFlags struct {
	users   []string
	regions []string
	from    string
	until   string
}

func (p *policyFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&p.users, "allow", nil, "users allowed to download (default: anyone)")
	cmd.Flags().StringSliceVar(&p.regions, "regions", nil, "region codes allowed to download (default: any)")
	cmd.Flags().StringVar(&p.from, "from", "", "RFC3339 start of the access window")
	cmd.Flags().StringVar(&p.until, "until", "", "RFC3339 end of the access window")
}

func (p *policyFlags) policy() (model.AccessPolicy, error) {
	out := model.AccessPolicy{AllowedUsers: p.users, AllowedRegions: p.regions}
	if p.from == "" && p.until == "" {
		return out, nil
	}
	if p.from == "" || p.until == "" {
		return out, errors.New("--from and --until must be given together")
	}
	start, err := parseTime("from", p.from)
	if err != nil {
		return out, err
	}
	end, err := parseTime("until", p.until)
	if err != nil {
		return out, err
	}
	out.Window = &model.TimeWindow{Start: start, End: end}
	return out, nil
}

func parseTime(flag, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: want RFC3339, got %q", flag, v)
	}
	return t.UTC(), nil
}
