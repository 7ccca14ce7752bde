package config

import (
	"fmt"
	"strings"
	"time"
)

// GenerateCUE renders cfg in the config file format. The output loads back
// into the same settings.
func GenerateCUE(cfg *Config) string {
	var b strings.Builder

	str := func(indent, key, val string) {
		fmt.Fprintf(&b, "%s%s: %q\n", indent, key, val)
	}
	dur := func(indent, key string, d time.Duration) {
		fmt.Fprintf(&b, "%s%s: %q\n", indent, key, d.String())
	}
	list := func(indent, key string, vals []string) {
		quoted := make([]string, len(vals))
		for i, v := range vals {
			quoted[i] = fmt.Sprintf("%q", v)
		}
		fmt.Fprintf(&b, "%s%s: [%s]\n", indent, key, strings.Join(quoted, ", "))
	}

	b.WriteString("// zipbuilder configuration\n\n")
	str("", "svn_url", cfg.SVNURL)
	str("", "svn_user", cfg.SVNUser)
	str("", "svn_pass", cfg.SVNPass)
	str("", "source_root", cfg.SourceRoot)
	str("", "backend", cfg.Backend)
	str("", "tmp_dir", cfg.TmpDir)
	str("", "x_accel_redirect_location", cfg.XAccelRedirectLocation)
	list("", "externals_allowed", cfg.ExternalsAllowed)
	fmt.Fprintf(&b, "allow_noop_commit: %t\n", cfg.AllowNoopCommit)

	b.WriteString("\npurge: {\n")
	list("\t", "hosts", cfg.Purge.Hosts)
	dur("\t", "timeout", cfg.Purge.Timeout)
	fmt.Fprintf(&b, "\tconcurrency: %d\n", cfg.Purge.Concurrency)
	b.WriteString("}\n")

	b.WriteString("\ntimeouts: {\n")
	dur("\t", "export", cfg.Timeouts.Export)
	dur("\t", "commit", cfg.Timeouts.Commit)
	b.WriteString("}\n")

	b.WriteString("\nmetrics: {\n")
	str("\t", "textfile", cfg.Metrics.Textfile)
	str("\t", "namespace", cfg.Metrics.Namespace)
	b.WriteString("}\n")

	b.WriteString("\ngit: {\n")
	str("\t", "author_name", cfg.Git.AuthorName)
	str("\t", "author_email", cfg.Git.AuthorEmail)
	b.WriteString("}\n")

	b.WriteString("\nlog: {\n")
	str("\t", "level", cfg.Log.Level)
	b.WriteString("}\n")

	return b.String()
}
