// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cmgzone/notebookllm/audit"
	"github.com/cmgzone/notebookllm/lib/clock"
	"github.com/cmgzone/notebookllm/lib/codec"
	"github.com/cmgzone/notebookllm/lib/service"
	"github.com/cmgzone/notebookllm/permission"
)

// controlDeps are the dependencies the control socket actions close
// over.
type controlDeps struct {
	manager   *permission.Manager
	audits    *audit.Store
	clock     clock.Clock
	startedAt time.Time
	address   string
	root      string
}

// registerControlActions wires the operator surface onto the socket
// server. The control socket is root-only on the local machine, so
// actions take an explicit user parameter instead of trusting a
// header.
func registerControlActions(server *service.SocketServer, deps *controlDeps) {
	server.Handle("status", deps.status)
	server.Handle("permission/list", deps.permissionList)
	server.Handle("permission/revoke", deps.permissionRevoke)
	server.Handle("request/list", deps.requestList)
	server.Handle("request/approve", deps.requestApprove)
	server.Handle("request/deny", deps.requestDeny)
	server.Handle("audit/tail", deps.auditTail)
}

type statusReply struct {
	StartedAt     time.Time `cbor:"started_at"`
	UptimeSeconds int64     `cbor:"uptime_seconds"`
	Address       string    `cbor:"address"`
	SandboxRoot   string    `cbor:"sandbox_root"`
}

func (d *controlDeps) status(ctx context.Context, raw []byte) (any, error) {
	now := d.clock.Now()
	return statusReply{
		StartedAt:     d.startedAt,
		UptimeSeconds: int64(now.Sub(d.startedAt).Seconds()),
		Address:       d.address,
		SandboxRoot:   d.root,
	}, nil
}

type permissionListRequest struct {
	User     string `cbor:"user"`
	Resource string `cbor:"resource,omitempty"`
}

func (d *controlDeps) permissionList(ctx context.Context, raw []byte) (any, error) {
	var request permissionListRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	if request.User == "" {
		return nil, fmt.Errorf("user is required")
	}

	permissions, err := d.manager.List(ctx, request.User, permission.Resource(request.Resource))
	if err != nil {
		return nil, err
	}
	return map[string]any{"permissions": permission.WirePermissions(permissions)}, nil
}

type permissionRevokeRequest struct {
	User string `cbor:"user"`
	ID   string `cbor:"id"`
}

func (d *controlDeps) permissionRevoke(ctx context.Context, raw []byte) (any, error) {
	var request permissionRevokeRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	if request.User == "" || request.ID == "" {
		return nil, fmt.Errorf("user and id are required")
	}
	if err := d.manager.Revoke(ctx, request.User, request.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

type requestListRequest struct {
	User   string `cbor:"user,omitempty"`
	Status string `cbor:"status,omitempty"`
}

func (d *controlDeps) requestList(ctx context.Context, raw []byte) (any, error) {
	var request requestListRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	requests, err := d.manager.ListRequests(ctx, request.User,
		permission.RequestStatus(request.Status))
	if err != nil {
		return nil, err
	}
	return map[string]any{"requests": permission.WireRequests(requests)}, nil
}

type requestResolveRequest struct {
	ID string `cbor:"id"`
}

func (d *controlDeps) requestApprove(ctx context.Context, raw []byte) (any, error) {
	var request requestResolveRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	if request.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	resolved, granted, err := d.manager.Approve(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"request": resolved.Wire(), "permission": granted.Wire()}, nil
}

func (d *controlDeps) requestDeny(ctx context.Context, raw []byte) (any, error) {
	var request requestResolveRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	if request.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	resolved, err := d.manager.Deny(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"request": resolved.Wire()}, nil
}

type auditTailRequest struct {
	User  string `cbor:"user"`
	Kind  string `cbor:"kind"` // "file" or "shell"
	Limit int    `cbor:"limit,omitempty"`
}

func (d *controlDeps) auditTail(ctx context.Context, raw []byte) (any, error) {
	var request auditTailRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	if request.User == "" {
		return nil, fmt.Errorf("user is required")
	}

	switch request.Kind {
	case "file":
		entries, err := d.audits.ListFile(ctx, audit.FileFilter{
			UserID: request.User, Limit: request.Limit,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"entries": entries}, nil

	case "shell":
		entries, err := d.audits.ListShell(ctx, audit.ShellFilter{
			UserID: request.User, Limit: request.Limit,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"entries": entries}, nil

	default:
		return nil, fmt.Errorf("kind must be file or shell, got %q", request.Kind)
	}
}
