package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ochinchina/stackpanel/account"
	"github.com/ochinchina/stackpanel/faults"
	"github.com/ochinchina/stackpanel/reconcile"
	"github.com/ochinchina/stackpanel/status"
	"github.com/ochinchina/stackpanel/types"
)

// DomainsCommand patches proxy settings: stackpanel domains APP_DOMAIN=x ...
type DomainsCommand struct {
	OutputOptions
}

// EnvShowCommand prints the environment file
type EnvShowCommand struct {
	OutputOptions
}

// EnvReplaceCommand overwrites the environment file
type EnvReplaceCommand struct {
	OutputOptions
	File    string `short:"f" long:"file" description:"read the new content from file instead of stdin"`
	Restart bool   `long:"restart" description:"restart the whole stack after writing"`
}

// ProxyCommand prints or applies the proxy configuration
type ProxyCommand struct {
	OutputOptions
	Apply bool `long:"apply" description:"write the proxy configuration and restart the proxy"`
}

// AccountListCommand lists accounts
type AccountListCommand struct {
	OutputOptions
}

// AccountCreateCommand creates an account, the password is read from stdin
type AccountCreateCommand struct {
	OutputOptions
}

// AccountPasswdCommand changes a password, the password is read from stdin
type AccountPasswdCommand struct{}

// AccountDeleteCommand deletes an account
type AccountDeleteCommand struct{}

// AccountGroupCommand adds an account to a group
type AccountGroupCommand struct{}

// StatusCommand prints the host and stack status
type StatusCommand struct {
	OutputOptions
}

var (
	domainsCommand       DomainsCommand
	envShowCommand       EnvShowCommand
	envReplaceCommand    EnvReplaceCommand
	proxyCommand         ProxyCommand
	accountListCommand   AccountListCommand
	accountCreateCommand AccountCreateCommand
	accountPasswdCommand AccountPasswdCommand
	accountDeleteCommand AccountDeleteCommand
	accountGroupCommand  AccountGroupCommand
	statusCommand        StatusCommand
)

var stdin io.Reader = os.Stdin

// openPanel is replaced in tests
var openPanel = func() (*Panel, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return NewPanel(settings)
}

// checkArgs fails when fewer than least arguments were given
func checkArgs(args []string, least int, usage string) error {
	if len(args) < least {
		return fmt.Errorf("invalid arguments.\nUsage: stackpanel %v", usage)
	}
	return nil
}

func withPanel(fn func(ctx context.Context, p *Panel) error) error {
	p, err := openPanel()
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(context.Background(), p)
}

// Execute implements flags.Commander
func (x *DomainsCommand) Execute(args []string) error {
	if err := checkArgs(args, 1, "domains KEY=VALUE [KEY=VALUE...]"); err != nil {
		return err
	}
	desired := make(map[string]string)
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return faults.ValidationError("%q is not KEY=VALUE", arg)
		}
		desired[k] = v
	}
	return withPanel(func(ctx context.Context, p *Panel) error {
		return x.printResult(p.Reconciler.ApplyDomains(ctx, desired))
	})
}

// Execute implements flags.Commander
func (x *EnvShowCommand) Execute(args []string) error {
	return withPanel(func(ctx context.Context, p *Panel) error {
		doc, err := envDocument(p)
		if err != nil {
			return err
		}
		return x.print(doc, func(w io.Writer) {
			fmt.Fprint(w, doc.Content)
		})
	})
}

// Execute implements flags.Commander
func (x *EnvReplaceCommand) Execute(args []string) error {
	var r io.Reader = stdin
	if x.File != "" && x.File != "-" {
		f, err := os.Open(x.File)
		if err != nil {
			return faults.IOError(err, "open %s", x.File)
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return faults.IOError(err, "read new environment")
	}
	if len(b) > maxBodyBytes {
		return faults.ValidationError("environment file larger than %d bytes", maxBodyBytes)
	}
	return withPanel(func(ctx context.Context, p *Panel) error {
		return x.printResult(p.Reconciler.ReplaceEnv(ctx, string(b), x.Restart))
	})
}

// Execute implements flags.Commander
func (x *ProxyCommand) Execute(args []string) error {
	return withPanel(func(ctx context.Context, p *Panel) error {
		if x.Apply {
			return x.printResult(p.Reconciler.Converge(ctx))
		}
		content, err := p.Reconciler.Render()
		if err != nil {
			return err
		}
		doc := types.ProxyDocument{Path: p.Settings.Stack.Caddyfile, Content: content}
		return x.print(doc, func(w io.Writer) {
			fmt.Fprint(w, content)
		})
	})
}

// Execute implements flags.Commander
func (x *AccountListCommand) Execute(args []string) error {
	return withPanel(func(ctx context.Context, p *Panel) error {
		accounts, err := p.Accounts.List(ctx)
		if err != nil {
			return err
		}
		return x.print(accounts, func(w io.Writer) {
			printAccounts(w, accounts)
		})
	})
}

// Execute implements flags.Commander
func (x *AccountCreateCommand) Execute(args []string) error {
	if err := checkArgs(args, 1, "account create <username>"); err != nil {
		return err
	}
	password, err := readPassword()
	if err != nil {
		return err
	}
	return withPanel(func(ctx context.Context, p *Panel) error {
		a, err := p.Accounts.Create(ctx, args[0], password)
		if err != nil {
			return err
		}
		return x.print(a, func(w io.Writer) {
			printAccounts(w, []account.SystemAccount{*a})
		})
	})
}

// Execute implements flags.Commander
func (x *AccountPasswdCommand) Execute(args []string) error {
	if err := checkArgs(args, 1, "account passwd <username>"); err != nil {
		return err
	}
	password, err := readPassword()
	if err != nil {
		return err
	}
	return withPanel(func(ctx context.Context, p *Panel) error {
		if err := p.Accounts.SetPassword(ctx, args[0], password); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "password of %s changed\n", args[0])
		return nil
	})
}

// Execute implements flags.Commander
func (x *AccountDeleteCommand) Execute(args []string) error {
	if err := checkArgs(args, 1, "account delete <username>"); err != nil {
		return err
	}
	return withPanel(func(ctx context.Context, p *Panel) error {
		if err := p.Accounts.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s deleted\n", args[0])
		return nil
	})
}

// Execute implements flags.Commander
func (x *AccountGroupCommand) Execute(args []string) error {
	if err := checkArgs(args, 2, "account group <username> <group>"); err != nil {
		return err
	}
	return withPanel(func(ctx context.Context, p *Panel) error {
		added, err := p.Accounts.EnsureInGroup(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if added {
			fmt.Fprintf(stdout, "%s added to %s\n", args[0], args[1])
		} else {
			fmt.Fprintf(stdout, "%s already in %s\n", args[0], args[1])
		}
		return nil
	})
}

// Execute implements flags.Commander
func (x *StatusCommand) Execute(args []string) error {
	return withPanel(func(ctx context.Context, p *Panel) error {
		s := p.Status.Collect(ctx)
		return x.print(s, func(w io.Writer) {
			printStatus(w, s)
		})
	})
}

// printResult prints a reconciliation report and turns a failure into the
// command's error
func (o OutputOptions) printResult(res reconcile.Result) error {
	report := reconcileReport(res)
	err := o.print(report, func(w io.Writer) {
		printReport(w, report)
	})
	if err != nil {
		return err
	}
	return res.Err
}

func printReport(w io.Writer, r types.ReconcileReport) {
	fmt.Fprintf(w, "status:        %s\n", r.Status)
	fmt.Fprintf(w, "persisted:     %v\n", r.Persisted)
	fmt.Fprintf(w, "proxy written: %v (changed: %v)\n", r.ProxyWritten, r.ProxyChanged)
	if r.RestartTarget != "" {
		fmt.Fprintf(w, "restarted:     %s %v\n", r.RestartTarget, r.Restarted)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning:       %s\n", warning)
	}
}

func printAccounts(w io.Writer, accounts []account.SystemAccount) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tUID\tHOME\tSHELL\tGROUPS\tACCESS")
	for _, a := range accounts {
		access := "no"
		if a.HasAccess {
			access = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", a.Username, a.UID, a.HomeDir, a.Shell, strings.Join(a.Groups, ","), access)
	}
	tw.Flush()
}

func printStatus(w io.Writer, s status.Snapshot) {
	fmt.Fprintf(w, "host:        %s\n", s.Hostname)
	fmt.Fprintf(w, "uptime:      %s\n", s.Uptime)
	fmt.Fprintf(w, "load:        %.2f %.2f %.2f\n", s.LoadAvg[0], s.LoadAvg[1], s.LoadAvg[2])
	fmt.Fprintf(w, "last deploy: %s\n", s.LastDeploy)
	fmt.Fprintf(w, "bot:         %t\n", s.BotEnabled)
	fmt.Fprintf(w, "\n%s\n\n%s\n\n%s\n", s.Memory, s.Disk, s.Containers)
}

// readPassword reads the first line of stdin
func readPassword() (string, error) {
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", faults.IOError(err, "read password from stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	parser.AddCommand("domains",
		"set proxy settings",
		"The domains subcommand patches KEY=VALUE proxy settings into the environment file, regenerates the proxy configuration and restarts the proxy",
		&domainsCommand)

	envCmd, _ := parser.AddCommand("env",
		"show or replace the environment file",
		"The env subcommand shows or replaces the stack environment file",
		&struct{}{})
	envCmd.AddCommand("show",
		"print the environment file",
		"print the environment file",
		&envShowCommand)
	envCmd.AddCommand("replace",
		"replace the environment file",
		"replace the environment file with stdin or --file and regenerate the proxy configuration",
		&envReplaceCommand)

	parser.AddCommand("proxy",
		"print or apply the proxy configuration",
		"The proxy subcommand prints the proxy configuration generated from the environment file, --apply writes it and restarts the proxy",
		&proxyCommand)

	accountCmd, _ := parser.AddCommand("account",
		"manage file transfer accounts",
		"The account subcommand manages local accounts. Passwords are read from stdin.",
		&struct{}{})
	accountCmd.AddCommand("list", "list accounts", "list accounts with an allowed login shell", &accountListCommand)
	accountCmd.AddCommand("create", "create an account", "create an account, the password is read from stdin", &accountCreateCommand)
	accountCmd.AddCommand("passwd", "change a password", "change the password of an account, the password is read from stdin", &accountPasswdCommand)
	accountCmd.AddCommand("delete", "delete an account", "delete an account and its home directory", &accountDeleteCommand)
	accountCmd.AddCommand("group", "add an account to a group", "add an account to a group unless it is a member already", &accountGroupCommand)

	parser.AddCommand("status",
		"show host and stack status",
		"show memory, disk, containers and the last deploy time",
		&statusCommand)

}
