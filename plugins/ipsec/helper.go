// Copyright (c) 2016 Midokura SARL
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ipsec

import (
	"context"
	"os/exec"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
)

// DefaultHelperCommand is the vpn-helper executable resolved via PATH.
const DefaultHelperCommand = "vpn-helper"

// CommandRunner executes one external command to completion. A non-nil
// error means a non-zero exit or a spawn failure.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands through os/exec, logging their combined output.
type ExecRunner struct {
	Log logging.Logger
}

// Run implements CommandRunner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if len(output) > 0 {
		r.Log.Debugf("%s %v: %s", name, args, output)
	}
	if err != nil {
		return errors.Wrapf(err, "%s %v failed", name, args)
	}
	return nil
}

// VpnHelper wraps the vpn-helper command surface. Every method maps to one
// helper subcommand with stable flags.
type VpnHelper struct {
	runner  CommandRunner
	command string
}

// NewVpnHelper creates a helper facade over the given runner. An empty
// command falls back to DefaultHelperCommand.
func NewVpnHelper(runner CommandRunner, command string) *VpnHelper {
	if command == "" {
		command = DefaultHelperCommand
	}
	return &VpnHelper{runner: runner, command: command}
}

// Prepare loads the kernel modules and sysctl state the namespaces need.
func (h *VpnHelper) Prepare(ctx context.Context) error {
	return h.runner.Run(ctx, h.command, "prepare")
}

// CleanNS removes the service namespace, if present.
func (h *VpnHelper) CleanNS(ctx context.Context, name string) error {
	return h.runner.Run(ctx, h.command, "cleanns", "-n", name)
}

// MakeNS builds the service namespace and its veth plumbing.
func (h *VpnHelper) MakeNS(ctx context.Context, service *ServiceDef) error {
	return h.runner.Run(ctx, h.command, "makens",
		"-n", service.Name,
		"-g", service.NamespaceGatewayIP.String(),
		"-G", service.NamespaceGatewayMAC.String(),
		"-l", service.LocalEndpointIP.String(),
		"-i", service.NamespaceInterfaceIP.String(),
		"-m", service.LocalEndpointMAC.String())
}

// StartService starts pluto inside the namespace against the rendered
// config directory.
func (h *VpnHelper) StartService(ctx context.Context, name, path string) error {
	return h.runner.Run(ctx, h.command, "start_service", "-n", name, "-p", path)
}

// InitConns brings up every rendered connection.
func (h *VpnHelper) InitConns(ctx context.Context, name, path string,
	gatewayIP string, conns []string) error {

	args := []string{"init_conns", "-n", name, "-p", path, "-g", gatewayIP}
	for _, conn := range conns {
		args = append(args, "-c", conn)
	}
	return h.runner.Run(ctx, h.command, args...)
}

// StopService stops pluto inside the namespace.
func (h *VpnHelper) StopService(ctx context.Context, name, path string) error {
	return h.runner.Run(ctx, h.command, "stop_service", "-n", name, "-p", path)
}
