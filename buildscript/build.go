// Package buildscript holds the tasks run by build.go.
package buildscript

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/craiggwilson/goke/pkg/git"
	"github.com/craiggwilson/goke/pkg/sh"
	"github.com/craiggwilson/goke/task"
	"github.com/mongodb-labs/bulkmodify/common/testtype"
	"golang.org/x/mod/semver"
)

const toolName = "bulkmodify"

// pkgNames is a list of the names of all the packages to test.
var pkgNames = []string{
	"bulkmodify",
	"common",
}

// minimumGoVersion must be prefixed with v to be parsed by golang.org/x/mod/semver
var minimumGoVersion = "v1.23.0"

var goVersionPattern = regexp.MustCompile(`go(\d+\.\d+\.*\d*)`)

// ParseGoVersion extracts a semver version from the output of `go version`.
func ParseGoVersion(goVersionStr string) (string, error) {
	goVersionMatches := goVersionPattern.FindStringSubmatch(goVersionStr)
	if len(goVersionMatches) < 2 {
		return "", fmt.Errorf("Could not find version string in the output of `go version`. Output: %s", goVersionStr)
	}
	return fmt.Sprintf("v%s", goVersionMatches[1]), nil
}

func CheckMinimumGoVersion(ctx *task.Context) error {
	goVersionStr, err := runCmd(ctx, "go", "version")
	if err != nil {
		return fmt.Errorf("failed to get current go version: %w", err)
	}

	_, _ = ctx.Write([]byte(fmt.Sprintf("Found Go version \"%s\"\n", goVersionStr)))

	goVersion, err := ParseGoVersion(goVersionStr)
	if err != nil {
		return err
	}
	if semver.Compare(goVersion, minimumGoVersion) < 0 {
		return fmt.Errorf("Could not find minimum desired Go version. Found %s, Wanted at least %s", goVersion, minimumGoVersion)
	}

	return nil
}

// BuildTool is an Executor that builds bin/bulkmodify.
func BuildTool(ctx *task.Context) error {
	outPath := filepath.Join("bin", toolName)
	if runtime.GOOS == "windows" {
		outPath += ".exe"
	}
	_ = sh.Remove(ctx, outPath)

	ldflags, err := getLdflags(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ldflags: %w", err)
	}

	mainFile := filepath.Join(toolName, "main", fmt.Sprintf("%s.go", toolName))
	cmd := exec.CommandContext(ctx, "go", "build", "-o", outPath, "-ldflags", ldflags, mainFile)
	sh.LogCmd(ctx, cmd)
	output, err := cmd.CombinedOutput()

	if len(output) > 0 {
		_, _ = ctx.Write(output)
	}

	if err != nil {
		return fmt.Errorf("failed to build %s: %w", toolName, err)
	}
	return nil
}

// TestUnit is an Executor that runs all unit tests for the selected packages.
func TestUnit(ctx *task.Context) error {
	return runTests(ctx, selectedPkgs(ctx), testtype.UnitTestType)
}

// TestIntegration is an Executor that runs all integration tests for the selected packages.
func TestIntegration(ctx *task.Context) error {
	return runTests(ctx, selectedPkgs(ctx), testtype.IntegrationTestType)
}

// runTests runs the tests of the provided testType for the provided packages.
func runTests(ctx *task.Context, pkgs []string, testType string) error {
	for _, pkg := range pkgs {
		outFile, err := sh.CreateFileR(ctx, fmt.Sprintf("testing_output/%s.suite", pkg))
		if err != nil {
			return fmt.Errorf("failed to create testing output file: %w", err)
		}
		defer outFile.Close()

		// Use the recursive wildcard (...) to run all tests
		// of the provided testType for the current pkg.
		args := []string{"test", "./" + pkg + "/..."}
		if ctx.Verbose {
			args = append(args, "-v")
		}

		// Append any existing environment variables, along
		// with the one indicating which test type to run.
		env := append([]string{}, os.Environ()...)
		env = append(env, testType+"=true")

		out := io.MultiWriter(ctx, outFile)

		cmd := exec.CommandContext(ctx, "go", args...)
		cmd.Stdout = out
		cmd.Stderr = out
		cmd.Env = env

		err = sh.RunCmd(ctx, cmd)
		if err != nil {
			return err
		}
	}

	return nil
}

// getLdflags sets main.VersionStr and main.GitCommit.
func getLdflags(ctx *task.Context) (string, error) {
	versionStr, err := runCmd(ctx, "git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		return "", fmt.Errorf("failed to get current version: %w", err)
	}

	gitCommit, err := git.SHA1(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get git commit hash: %w", err)
	}

	return fmt.Sprintf("-X main.VersionStr=%s -X main.GitCommit=%s", versionStr, gitCommit), nil
}

// runCmd runs the command with the provided name and arguments, and
// returns the command's output as a trimmed string.
func runCmd(ctx *task.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	sh.LogCmd(ctx, cmd)
	output, err := cmd.CombinedOutput()
	return string(bytes.TrimSpace(output)), err
}

// selectedPkgs gets the list of packages selected via the pkgs argument,
// defaulting to the list of all packages.
func selectedPkgs(ctx *task.Context) []string {
	selectedPkgs := pkgNames
	if pkgs := ctx.Get("pkgs"); pkgs != "" {
		selectedPkgs = strings.Split(pkgs, ",")
	}
	return selectedPkgs
}
