// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package sandbox

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Describe renders the bwrap invocation's mount/namespace contract as an
// OCI runtime-spec-shaped value, purely as documentation: nothing in the
// worker calls it or hands its result to a container runtime. It states,
// as a typed value, the isolation that the argument builders in bwrap.go
// ask bwrap to provide, the way the teacher documents task isolation
// contracts with runtime-spec types.
func Describe(tempDir, envRoot string, fontDirsPresent bool) *specs.Spec {
	mounts := []specs.Mount{
		{Destination: "/tmp", Type: "tmpfs"},
		{Destination: "/lib", Source: "/lib", Options: []string{"ro", "rbind"}},
		{Destination: "/lib64", Source: "/lib64", Options: []string{"ro", "rbind"}},
		{Destination: "/usr/lib", Source: "/usr/lib", Options: []string{"ro", "rbind"}},
		{Destination: "/proc", Type: "proc"},
		{Destination: "/dev", Type: "dev"},
		{Destination: "/data", Source: tempDir, Options: []string{"rbind"}},
		{Destination: "/env", Source: envRoot, Options: []string{"ro", "rbind"}},
	}
	if fontDirsPresent {
		mounts = append(mounts,
			specs.Mount{Destination: systemFontDir, Source: systemFontDir, Options: []string{"ro", "rbind"}},
			specs.Mount{Destination: systemFontDir + "/more", Source: localFontDir, Options: []string{"ro", "rbind"}},
		)
	}

	return &specs.Spec{
		Version: "1.1.0",
		Root:    &specs.Root{Path: "/", Readonly: true},
		Mounts:  mounts,
		Linux: &specs.Linux{
			Namespaces: []specs.LinuxNamespace{
				{Type: specs.PIDNamespace},
				{Type: specs.NetworkNamespace},
				{Type: specs.MountNamespace},
				{Type: specs.IPCNamespace},
				{Type: specs.UTSNamespace},
				{Type: specs.UserNamespace},
				{Type: specs.CgroupNamespace},
			},
		},
	}
}
