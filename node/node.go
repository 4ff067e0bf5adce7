// Package node drives the Node.js toolchain a fluidframe project uses for
// its stylesheet: package.json, the Tailwind config, npm installs and the
// tailwindcss build.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/fluidframe/horosafe"
)

// ErrNodeMissing is returned by CheckInstalled when node cannot be run.
var ErrNodeMissing = errors.New("node: Node.js not found, install it from https://nodejs.org/en/download/package-manager")

// ErrNotInitialised is returned when the build directory does not exist.
var ErrNotInitialised = errors.New("node: build directory not found, run 'fluidframe init <project_name>' first")

// Runner runs an external command in dir.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs commands with os/exec, streaming their output.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

// Project is a fluidframe project on disk.
type Project struct {
	// BuildDir holds package.json, node_modules, input.css and dist/.
	BuildDir string
	// SrcDir holds the user's sources; Tailwind scans it for classes.
	SrcDir string
	// Safelist are classes Tailwind must emit even if no scanned file
	// mentions them.
	Safelist []string
	Runner   Runner
	Log      *slog.Logger
}

func (p *Project) log() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

func (p *Project) runner() Runner {
	if p.Runner != nil {
		return p.Runner
	}
	return ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// CheckInstalled reports whether node can be run.
func (p *Project) CheckInstalled(ctx context.Context) error {
	if err := p.runner().Run(ctx, "", "node", "--version"); err != nil {
		return fmt.Errorf("%w: %w", ErrNodeMissing, err)
	}
	return nil
}

// Init creates the build and source directories, writes package.json,
// tailwind.config.js and input.css, installs dependencies and runs a first
// CSS build. A failed install aborts; a failed build is only logged.
func (p *Project) Init(ctx context.Context, name string) error {
	if err := horosafe.ValidateIdentifier(name); err != nil {
		return fmt.Errorf("node: project name: %w", err)
	}
	for _, d := range []string{p.BuildDir, p.SrcDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("node: mkdir %s: %w", d, err)
		}
	}
	if err := p.WritePackageJSON(name); err != nil {
		return err
	}
	if err := p.WriteTailwindConfig(); err != nil {
		return err
	}
	if err := p.WriteInputCSS(); err != nil {
		return err
	}

	if err := p.runner().Run(ctx, p.BuildDir, "npm", "install"); err != nil {
		return fmt.Errorf("node: install dependencies: %w", err)
	}
	p.log().Info("node: dependencies installed")

	if err := p.BuildCSS(ctx, false); err != nil {
		p.log().Warn("node: initial CSS build failed", "error", err)
	} else {
		p.log().Info("node: initial CSS built")
	}
	return nil
}

type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	Private         bool              `json:"private"`
	Scripts         map[string]string `json:"scripts"`
	License         string            `json:"license"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// WritePackageJSON writes a fresh package.json for project name, with
// tailwindcss as a dev dependency and build/watch scripts.
func (p *Project) WritePackageJSON(name string) error {
	pkg := packageJSON{
		Name:        strings.ToLower(name),
		Version:     "1.0.0",
		Description: fmt.Sprintf("A FluidFrame project named %s", name),
		Private:     true,
		Scripts: map[string]string{
			"build": "tailwindcss -i input.css -o dist/output.css",
			"watch": "tailwindcss -i input.css -o dist/output.css --watch",
		},
		License:         "ISC",
		Dependencies:    map[string]string{},
		DevDependencies: map[string]string{"tailwindcss": "^3.4.0"},
	}
	data, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return fmt.Errorf("node: encode package.json: %w", err)
	}
	return p.write("package.json", append(data, '\n'))
}

// WriteTailwindConfig writes tailwind.config.js scanning the source
// directory and safelisting p.Safelist.
func (p *Project) WriteTailwindConfig() error {
	src, err := filepath.Rel(p.BuildDir, p.SrcDir)
	if err != nil {
		return fmt.Errorf("node: tailwind content path: %w", err)
	}
	src = filepath.ToSlash(src)

	var b strings.Builder
	b.WriteString("/** @type {import('tailwindcss').Config} */\n")
	b.WriteString("module.exports = {\n  content: [\n")
	fmt.Fprintf(&b, "    '%s/**/*.{html,go,yaml}',\n", src)
	b.WriteString("    '../*.go',\n  ],\n  safelist: [\n")
	for _, c := range p.Safelist {
		fmt.Fprintf(&b, "    '%s',\n", strings.ReplaceAll(c, "'", `\'`))
	}
	b.WriteString("  ],\n  theme: {\n    extend: {},\n  },\n  plugins: [],\n}\n")
	return p.write("tailwind.config.js", []byte(b.String()))
}

// WriteInputCSS writes the Tailwind entry stylesheet.
func (p *Project) WriteInputCSS() error {
	return p.write("input.css", []byte("@tailwind base;\n@tailwind components;\n@tailwind utilities;\n"))
}

// Install runs npm install pkg in the build directory.
func (p *Project) Install(ctx context.Context, pkg string) error {
	if err := horosafe.ValidatePackage(pkg); err != nil {
		return err
	}
	if err := p.requireBuildDir(); err != nil {
		return err
	}
	p.log().Info("node: installing package", "package", pkg)
	if err := p.runner().Run(ctx, p.BuildDir, "npm", "install", pkg); err != nil {
		return fmt.Errorf("node: install %s: %w", pkg, err)
	}
	return nil
}

// BuildCSS compiles input.css to dist/output.css. With watch it keeps
// rebuilding until ctx is cancelled.
func (p *Project) BuildCSS(ctx context.Context, watch bool) error {
	if err := p.requireBuildDir(); err != nil {
		return err
	}
	args := []string{"tailwindcss", "-i", "input.css", "-o", "dist/output.css"}
	if watch {
		args = append(args, "--watch")
	}
	if err := p.runner().Run(ctx, p.BuildDir, "npx", args...); err != nil {
		return fmt.Errorf("node: tailwind build: %w", err)
	}
	return nil
}

// DistDir is the directory the CSS build writes to.
func (p *Project) DistDir() string { return filepath.Join(p.BuildDir, "dist") }

func (p *Project) requireBuildDir() error {
	info, err := os.Stat(p.BuildDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotInitialised, p.BuildDir)
	}
	return nil
}

func (p *Project) write(name string, data []byte) error {
	path, err := horosafe.SafePath(p.BuildDir, name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("node: write %s: %w", name, err)
	}
	p.log().Info("node: wrote file", "path", path)
	return nil
}
