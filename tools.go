// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

//go:build tools

// Package main pins test dependencies used only behind build tags.
package main

import (
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"
)
