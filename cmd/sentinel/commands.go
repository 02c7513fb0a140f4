package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/cloudsentinel/internal/model"
)

// cli carries what every command shares.
type cli struct {
	open opener
	ov   overrides
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}
	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Encrypted file storage with zero-trust access policies",
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.ov.dsn, "dsn", "", "PostgreSQL DSN (overrides DATABASE_DSN)")
	pf.StringVar(&c.ov.records, "records", "", "record backend: postgres or memory (overrides RECORD_BACKEND)")
	pf.StringVar(&c.ov.blob, "blob", "", "blob backend: minio, s3, fs or memory (overrides BLOB_BACKEND)")
	pf.BoolVar(&c.ov.debug, "debug", false, "development logging at debug level")
	root.AddCommand(
		newMigrateCmd(c),
		newRegisterCmd(c),
		newLoginCmd(c),
		newLogoutCmd(),
		newUploadCmd(c),
		newDownloadCmd(c),
		newShareCmd(c),
		newDeleteCmd(c),
		newInfoCmd(c),
		newFilesCmd(c),
		newAuditCmd(c),
		newReportCmd(c),
	)
	return root
}

type runFunc func(cmd *cobra.Command, a *app, args []string) error

// withApp opens the app for the duration of one command.
func (c *cli) withApp(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := c.open(cmd.Context(), c.ov)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

// identity returns the user of the saved token.
func identity(ctx context.Context, a *app) (string, error) {
	tok, err := loadToken()
	if err != nil {
		return "", err
	}
	return a.auth.Authenticate(ctx, tok)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func parseFileID(s string) (uuid.UUID, error) {
	id, err := uuid.FromString(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad file id %q: %w", s, err)
	}
	return id, nil
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			v, err := a.migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		}),
	}
}

func newRegisterCmd(c *cli) *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			id, err := a.auth.Register(cmd.Context(), username, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (id %s)\n", username, id)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCmd(c *cli) *cobra.Command {
	var username, password, addr string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and save the access token",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			tok, err := a.auth.Login(cmd.Context(), username, password, addr)
			if err != nil {
				return err
			}
			if err := saveToken(username, tok.AccessToken, tok.ExpiresAt); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s until %s\n", username, tok.ExpiresAt.Format(time.RFC3339))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1", "client address used for throttling and region tagging")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return removeToken()
		},
	}
}

func newUploadCmd(c *cli) *cobra.Command {
	var (
		password, name, region string
		pf                     policyFlags
	)
	cmd := &cobra.Command{
		Use:   "upload <file|->",
		Short: "Encrypt and store a file",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, a *app, args []string) error {
			me, err := identity(cmd.Context(), a)
			if err != nil {
				return err
			}
			p, err := pf.policy()
			if err != nil {
				return err
			}
			data, err := readAll(args[0])
			if err != nil {
				return err
			}
			if name == "" && args[0] != "-" {
				name = filepath.Base(args[0])
			}
			s, err := a.engine.Upload(cmd.Context(), model.UploadRequest{
				OwnerID:  me,
				Password: password,
				Filename: name,
				Data:     data,
				Policy:   p,
				Region:   region,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		}),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "file encryption password")
	cmd.Flags().StringVar(&name, "name", "", "stored filename (default: base name of the path)")
	cmd.Flags().StringVar(&region, "region", "", "source region recorded in the audit log")
	_ = cmd.MarkFlagRequired("password")
	pf.bind(cmd)
	return cmd
}

func newDownloadCmd(c *cli) *cobra.Command {
	var password, region, addr, out string
	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Fetch and decrypt a file if its policy allows",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, a *app, args []string) error {
			me, err := identity(cmd.Context(), a)
			if err != nil {
				return err
			}
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			pt, s, err := a.engine.Download(cmd.Context(), model.DownloadRequest{
				RequesterID: me,
				FileID:      id,
				Password:    password,
				Region:      region,
				Addr:        addr,
			})
			if err != nil {
				return err
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(pt)
				return err
			}
			if out == "" {
				out = s.OriginalFilename
			}
			if err := os.WriteFile(out, pt, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(pt), out)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "file encryption password")
	cmd.Flags().StringVar(&region, "region", "", "requester region code")
	cmd.Flags().StringVar(&addr, "addr", "", "requester address, resolved to a region when --region is empty")
	cmd.Flags().StringVarP(&out, "out", "o", "", `output path, "-" for stdout (default: original filename)`)
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newShareCmd(c *cli) *cobra.Command {
	var (
		base   int64
		region string
		pf     policyFlags
	)
	cmd := &cobra.Command{
		Use:   "share <file-id>",
		Short: "Replace the access policy of a file you own",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, a *app, args []string) error {
			me, err := identity(cmd.Context(), a)
			if err != nil {
				return err
			}
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			p, err := pf.policy()
			if err != nil {
				return err
			}
			s, err := a.engine.SharePolicy(cmd.Context(), model.ShareRequest{
				RequesterID: me,
				FileID:      id,
				Policy:      p,
				BaseVersion: base,
				Region:      region,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		}),
	}
	cmd.Flags().Int64Var(&base, "base-version", 0, "fail unless the current policy version matches")
	cmd.Flags().StringVar(&region, "region", "", "source region recorded in the audit log")
	pf.bind(cmd)
	return cmd
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file-id>",
		Short: "Delete a file you own",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, a *app, args []string) error {
			me, err := identity(cmd.Context(), a)
			if err != nil {
				return err
			}
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			if err := a.engine.DeleteFile(cmd.Context(), me, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			return nil
		}),
	}
}

func newInfoCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file-id>",
		Short: "Show file metadata and policy",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, a *app, args []string) error {
			me, err := identity(cmd.Context(), a)
			if err != nil {
				return err
			}
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			s, err := a.engine.GetFile(cmd.Context(), me, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		}),
	}
}

func newFilesCmd(c *cli) *cobra.Command {
	var accessible bool
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List your files, or files shared with you",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			me, err := identity(cmd.Context(), a)
			if err != nil {
				return err
			}
			var list []model.FileSummary
			if accessible {
				list, err = a.engine.ListAccessibleFiles(cmd.Context(), me)
			} else {
				list, err = a.engine.ListMyFiles(cmd.Context(), me)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		}),
	}
	cmd.Flags().BoolVar(&accessible, "accessible", false, "list files of other owners you may access")
	return cmd
}

type auditFlags struct {
	actor, file  string
	types        []string
	since, until string
	limit        int
}

func (f *auditFlags) bind(cmd *cobra.Command, withLimit bool) {
	cmd.Flags().StringVar(&f.file, "file", "", "only events of this file id")
	cmd.Flags().StringVar(&f.actor, "actor", "", "only events of this actor")
	cmd.Flags().StringSliceVar(&f.types, "type", nil, "event types (UPLOAD, DOWNLOAD, ACCESS_DENIED, SHARE, DELETE, LOGIN, LOGIN_FAILED)")
	cmd.Flags().StringVar(&f.since, "since", "", "RFC3339 lower bound")
	cmd.Flags().StringVar(&f.until, "until", "", "RFC3339 upper bound")
	if withLimit {
		cmd.Flags().IntVar(&f.limit, "limit", 0, "keep only the most recent N events")
	}
}

func (f *auditFlags) filter() (model.AuditFilter, error) {
	out := model.AuditFilter{ActorID: f.actor, Limit: f.limit}
	if f.file != "" {
		id, err := parseFileID(f.file)
		if err != nil {
			return out, err
		}
		out.FileID = &id
	}
	for _, t := range f.types {
		out.Types = append(out.Types, model.EventType(strings.ToUpper(strings.TrimSpace(t))))
	}
	var err error
	if out.Since, err = parseTime("since", f.since); err != nil {
		return out, err
	}
	if out.Until, err = parseTime("until", f.until); err != nil {
		return out, err
	}
	if f.limit < 0 {
		return out, errors.New("--limit must not be negative")
	}
	return out, nil
}

func newAuditCmd(c *cli) *cobra.Command {
	var af auditFlags
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show audit events you may see",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			me, err := identity(cmd.Context(), a)
			if err != nil {
				return err
			}
			f, err := af.filter()
			if err != nil {
				return err
			}
			events, err := a.engine.ListAuditEvents(cmd.Context(), me, f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), events)
		}),
	}
	af.bind(cmd, true)
	return cmd
}

func newReportCmd(c *cli) *cobra.Command {
	var af auditFlags
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize your security activity",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			me, err := identity(cmd.Context(), a)
			if err != nil {
				return err
			}
			f, err := af.filter()
			if err != nil {
				return err
			}
			sum, err := a.engine.SecuritySummary(cmd.Context(), me, f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		}),
	}
	af.bind(cmd, false)
	return cmd
}
