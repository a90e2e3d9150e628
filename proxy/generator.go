package proxy

import (
	"fmt"
	"strings"

	"github.com/ochinchina/stackpanel/envfile"
)

const header = "# Generated by stackpanel from the stack environment file. Manual edits are overwritten.\n"

// Generate renders the Caddyfile for entries. The output depends only on the
// values of the keys the generator reads, never on their order in the file,
// so identical settings always produce identical bytes.
func Generate(entries envfile.Entries) string {
	var b strings.Builder
	b.WriteString(header)
	writeGlobalOptions(&b, entries)
	for _, r := range Routes(entries) {
		b.WriteString("\n")
		writeRoute(&b, r)
	}
	return b.String()
}

func writeGlobalOptions(b *strings.Builder, entries envfile.Entries) {
	b.WriteString("{\n")
	if email := strings.TrimSpace(entries.Value(KeyAcmeEmail)); email != "" {
		fmt.Fprintf(b, "\temail %s\n", email)
	}
	b.WriteString("}\n")
}

func writeRoute(b *strings.Builder, r Route) {
	fmt.Fprintf(b, "%s {\n", r.Domain)
	if r.HasAuth() {
		b.WriteString("\tbasicauth {\n")
		fmt.Fprintf(b, "\t\t%s %s\n", r.AuthUser, r.AuthHash)
		b.WriteString("\t}\n")
	}
	switch r.Kind {
	case Static:
		fmt.Fprintf(b, "\troot * %s\n", r.Root)
		fmt.Fprintf(b, "\tphp_fastcgi %s\n", r.Upstream)
		b.WriteString("\tfile_server\n")
		b.WriteString("\tencode gzip\n")
	default:
		fmt.Fprintf(b, "\treverse_proxy %s\n", r.Upstream)
	}
	b.WriteString("}\n")
}
