//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the ontology project using Mage.
//
// Usage:
//
//	mage build         Compile the ontology binary to bin/
//	mage test:all      Run all tests
//	mage test:unit     Run tests in short mode
//	mage test:race     Run all tests with the race detector
//	mage test:cover    Write a coverage profile to bin/coverage.out
//	mage lint          Run golangci-lint
//	mage vet           Run go vet
//	mage clean         Remove build artifacts
//	mage install       Install ontology to GOPATH/bin
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "ontology"
	binaryDir  = "bin"
	cmdDir     = "./cmd/ontology"
	versionVar = "github.com/mesh-intelligence/ontology/internal/cli.Version"
)

// ldflags stamps the version from ONTOLOGY_VERSION, or from git describe
// when that is unset. Outside a git checkout the compiled default stays.
func ldflags() string {
	version := os.Getenv("ONTOLOGY_VERSION")
	if version == "" {
		out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
		if err != nil {
			return ""
		}
		version = strings.TrimPrefix(out, "v")
	}
	return "-X " + versionVar + "=" + version
}

// Build compiles the ontology binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	args := []string{"build", "-v", "-o", filepath.Join(binaryDir, binaryName)}
	if flags := ldflags(); flags != "" {
		args = append(args, "-ldflags", flags)
	}
	return sh.RunV(binGo, append(args, cmdDir)...)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
