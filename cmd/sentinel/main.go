// Command sentinel drives the CloudSentinel engine: accounts, encrypted
// uploads, policy-checked downloads, sharing and the audit trail.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/cloudsentinel/internal/errs"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(envOpener).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describeErr(err))
		os.Exit(1)
	}
}

// describeErr hides details of denials and decryption failures and keeps
// plain operator errors (config, flags) readable.
func describeErr(err error) string {
	if msg := errs.PublicMessage(err); msg != "internal error" {
		return msg
	}
	return err.Error()
}
