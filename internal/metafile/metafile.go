// Package metafile parses the YAML recipes newpkg builds packages from,
// including the @MAKEJOBS@/@DESTDIR@ command interpolation.
package metafile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// Stage is the bootstrap phase a package belongs to.
type Stage string

const (
	StagePass1  Stage = "pass1"
	StagePass2  Stage = "pass2"
	StageNormal Stage = "normal"
)

// Commands holds the three optional build commands a recipe may override.
type Commands struct {
	Configure string `yaml:"configure"`
	Build     string `yaml:"build"`
	Install   string `yaml:"install"`
}

// Depends holds the two dependency lists a recipe declares.
type Depends struct {
	Build []string `yaml:"build"`
	Run   []string `yaml:"run"`
}

// Metafile is the parsed form of one recipe.
type Metafile struct {
	Name          string            `yaml:"name"`
	Version       string            `yaml:"version"`
	Stage         Stage             `yaml:"stage"`
	Sources       []string          `yaml:"sources"`
	Patches       []string          `yaml:"patches"`
	Commands      Commands          `yaml:"commands"`
	Depends       Depends           `yaml:"depends"`
	Provides      []string          `yaml:"provides"`
	InstallPrefix string            `yaml:"install_prefix"`
	BuildDir      string            `yaml:"build_dir"`
	Environment   map[string]string `yaml:"environment"`
	Origin        string            `yaml:"origin"`

	// Path is set by Load, not part of the YAML document; callers use it
	// to report where a malformed recipe came from.
	Path string `yaml:"-"`
}

// ID returns the canonical "name-version" identifier.
func (m *Metafile) ID() string {
	return m.Name + "-" + m.Version
}

// Load reads and validates a metafile from path. Unknown top-level keys
// are ignored, yaml.v3's default unmarshal behavior for a struct target.
func Load(path string) (*Metafile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap("metafile.load", pkgerrors.KindIO, path, err)
	}
	var m Metafile
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, pkgerrors.Wrap("metafile.load", pkgerrors.KindMalformed, path, err)
	}
	if m.Name == "" || m.Version == "" {
		return nil, pkgerrors.Wrap("metafile.load", pkgerrors.KindMalformed, path, fmt.Errorf("missing name/version"))
	}
	if m.Stage == "" {
		m.Stage = StageNormal
	}
	if m.Environment == nil {
		m.Environment = map[string]string{}
	}
	m.Path = path
	return &m, nil
}

// DefaultConfigureCommand is used when a recipe omits commands.configure.
const DefaultConfigureCommand = "./configure --prefix=@PREFIX@"

// DefaultBuildCommand is used when a recipe omits commands.build.
const DefaultBuildCommand = "make -j@MAKEJOBS@"

// DefaultInstallCommand is used when a recipe omits commands.install.
const DefaultInstallCommand = "make DESTDIR=@DESTDIR@ install"

// EffectiveCommands returns the recipe's build commands, substituting
// conventional defaults when a step is blank.
func (m *Metafile) EffectiveCommands() Commands {
	c := m.Commands
	if strings.TrimSpace(c.Configure) == "" {
		c.Configure = DefaultConfigureCommand
	}
	if strings.TrimSpace(c.Build) == "" {
		c.Build = DefaultBuildCommand
	}
	if strings.TrimSpace(c.Install) == "" {
		c.Install = DefaultInstallCommand
	}
	return c
}

// Interpolate substitutes @MAKEJOBS@ and @DESTDIR@ (and @PREFIX@, a
// convenience extension used by the default configure command) in cmd.
func Interpolate(cmd string, makejobs int, destdir, prefix string) string {
	cmd = strings.ReplaceAll(cmd, "@MAKEJOBS@", strconv.Itoa(makejobs))
	cmd = strings.ReplaceAll(cmd, "@DESTDIR@", destdir)
	cmd = strings.ReplaceAll(cmd, "@PREFIX@", prefix)
	return cmd
}

// Prefix returns the recipe's install_prefix, defaulting to /usr.
func (m *Metafile) Prefix() string {
	if m.InstallPrefix != "" {
		return m.InstallPrefix
	}
	return "/usr"
}

// ValidateDependsToken parses a dependency token like "lib>=1.0" into its
// bare name, stripping any version predicate. The predicate itself is
// discarded; dependency edges resolve on name only.
func ValidateDependsToken(tok string) (name string, err error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", fmt.Errorf("empty dependency token")
	}
	for _, op := range []string{">=", "<=", "==", "!=", ">", "<", "="} {
		if idx := strings.Index(tok, op); idx > 0 {
			return strings.TrimSpace(tok[:idx]), nil
		}
	}
	return tok, nil
}
