package config

import (
	"context"
	_ "embed"
	"path"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	"github.com/tellyworth/plugin-directory-old-experiment/fs"
	billyfs "github.com/tellyworth/plugin-directory-old-experiment/fs/billy"
)

//go:embed config_schema.cue
var configSchema string

// LoadOptions configures Load.
type LoadOptions struct {
	// Path names the config file. It must exist when set; otherwise the XDG
	// config directories are searched and a missing file is not an error.
	Path string
	// Filesystem reads the config file. Defaults to the host filesystem.
	Filesystem fs.Filesystem
	// SkipValidation disables the checks run after decoding.
	SkipValidation bool
}

// Load resolves the configuration. It returns the config file used, or ""
// when none was found.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", zberrors.Wrap(err, zberrors.CodeInvalidConfig, "load config canceled")
	}

	fsys := opts.Filesystem
	if fsys == nil {
		fsys = billyfs.NewBaseOSFS()
	}

	v := newViper()

	file := opts.Path
	if file != "" {
		exists, err := fsys.Exists(file)
		if err != nil || !exists {
			return nil, "", zberrors.WrapWithContext(err, zberrors.CodeInvalidConfig,
				"config file not found", map[string]interface{}{"path": file})
		}
	} else if found, err := xdg.SearchConfigFile(path.Join(AppName, FileName)); err == nil {
		file = found
	}

	if file != "" {
		if err := loadCUEIntoViper(fsys, v, file); err != nil {
			return nil, "", zberrors.WrapWithContext(err, zberrors.CodeInvalidConfig,
				"failed to load config file", map[string]interface{}{"path": file})
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", zberrors.Wrap(err, zberrors.CodeInvalidConfig, "failed to parse config")
	}

	if !opts.SkipValidation {
		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}
	}
	return &cfg, file, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default for environment overrides to reach Unmarshal.
	d := Default()
	v.SetDefault("svn_url", d.SVNURL)
	v.SetDefault("svn_user", d.SVNUser)
	v.SetDefault("svn_pass", d.SVNPass)
	v.SetDefault("source_root", d.SourceRoot)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("tmp_dir", d.TmpDir)
	v.SetDefault("x_accel_redirect_location", d.XAccelRedirectLocation)
	v.SetDefault("externals_allowed", d.ExternalsAllowed)
	v.SetDefault("allow_noop_commit", d.AllowNoopCommit)
	v.SetDefault("purge.hosts", d.Purge.Hosts)
	v.SetDefault("purge.timeout", d.Purge.Timeout)
	v.SetDefault("purge.concurrency", d.Purge.Concurrency)
	v.SetDefault("timeouts.export", d.Timeouts.Export)
	v.SetDefault("timeouts.commit", d.Timeouts.Commit)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("git.author_name", d.Git.AuthorName)
	v.SetDefault("git.author_email", d.Git.AuthorEmail)
	v.SetDefault("log.level", d.Log.Level)
	return v
}

// loadCUEIntoViper validates the file at p against #Config and merges it
// into v. Fields stay optional, so validation is not concrete.
func loadCUEIntoViper(fsys fs.Filesystem, v *viper.Viper, p string) error {
	data, err := fsys.ReadFile(p)
	if err != nil {
		return err
	}

	cctx := cuecontext.New()
	schemaValue := cctx.CompileString(configSchema)
	if err := schemaValue.Err(); err != nil {
		return zberrors.Wrap(err, zberrors.CodeInternal, "failed to compile config schema")
	}

	userValue := cctx.CompileBytes(data, cue.Filename(p))
	if err := userValue.Err(); err != nil {
		return err
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return err
	}

	var m map[string]any
	if err := unified.Decode(&m); err != nil {
		return err
	}
	return v.MergeConfigMap(m)
}
