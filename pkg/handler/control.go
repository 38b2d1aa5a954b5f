// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jensmeindertsma/sail/pkg/protocol"
	"github.com/jensmeindertsma/sail/pkg/settings"
)

// errUnchanged aborts an update that would not modify anything.
var errUnchanged = errors.New("unchanged")

// Control applies control requests to a settings store.
type Control struct {
	store *settings.Store
}

var _ Handler = (*Control)(nil)

// NewControl returns a handler backed by store.
func NewControl(store *settings.Store) *Control {
	return &Control{store: store}
}

// Handle implements Handler.
func (c *Control) Handle(ctx context.Context, hctx *Context, req protocol.Request) (protocol.Response, error) {
	switch req.Kind {
	case protocol.CreateApplication:
		return c.update(protocol.CreatedApplication, func(s *settings.Settings) error {
			if s.Find(req.Name) >= 0 {
				return protocol.NameInUse
			}
			if s.FindHostname(req.Hostname) >= 0 {
				return protocol.HostnameInUse
			}
			s.Applications = append(s.Applications, settings.Application{
				Name:     req.Name,
				Hostname: req.Hostname,
			})
			return nil
		})

	case protocol.GetApplication:
		current := c.store.Get()
		i := current.Find(req.Name)
		if i < 0 {
			return protocol.Err(protocol.ApplicationNotFound), nil
		}
		return protocol.Ok(protocol.Success{
			Kind:        protocol.GotApplication,
			Application: current.Applications[i],
		}), nil

	case protocol.GetApplications:
		return protocol.Ok(protocol.Success{
			Kind:         protocol.GotApplications,
			Applications: c.store.Get().Applications,
		}), nil

	case protocol.EditApplication:
		return c.update(protocol.EditedApplication, func(s *settings.Settings) error {
			i := s.Find(req.Name)
			if i < 0 {
				return protocol.ApplicationNotFound
			}
			if req.NewName != nil && *req.NewName != req.Name && s.Find(*req.NewName) >= 0 {
				return protocol.NameInUse
			}
			if req.NewHostname != nil {
				if j := s.FindHostname(*req.NewHostname); j >= 0 && j != i {
					return protocol.HostnameInUse
				}
			}

			app := &s.Applications[i]
			before := app.Clone()
			if req.NewName != nil {
				app.Name = *req.NewName
			}
			if req.NewHostname != nil {
				app.Hostname = *req.NewHostname
			}
			if app.Name == before.Name && app.Hostname == before.Hostname {
				return errUnchanged
			}
			return nil
		})

	case protocol.DeleteApplication:
		return c.update(protocol.DeletedApplication, func(s *settings.Settings) error {
			i := s.Find(req.Name)
			if i < 0 {
				return errUnchanged
			}
			s.Applications = slices.Delete(s.Applications, i, i+1)
			return nil
		})

	case protocol.GetDashboardHost:
		return protocol.Ok(protocol.Success{
			Kind:     protocol.GotDashboardHost,
			Hostname: c.store.Get().Dashboard.Hostname,
		}), nil

	case protocol.EditDashboardHost:
		return c.update(protocol.EditedDashboardHost, func(s *settings.Settings) error {
			if s.Dashboard.Hostname == req.Hostname {
				return errUnchanged
			}
			s.Dashboard.Hostname = req.Hostname
			return nil
		})

	case protocol.GetRegistryHost:
		return protocol.Ok(protocol.Success{
			Kind:     protocol.GotRegistryHost,
			Hostname: c.store.Get().Registry.Hostname,
		}), nil

	case protocol.EditRegistryHost:
		return c.update(protocol.EditedRegistryHost, func(s *settings.Settings) error {
			if s.Registry.Hostname == req.Hostname {
				return errUnchanged
			}
			s.Registry.Hostname = req.Hostname
			return nil
		})
	}

	return protocol.Response{}, fmt.Errorf("unsupported request kind %q", req.Kind)
}

// update runs fn atomically against the store and maps its result to a
// response: nil or errUnchanged succeed with kind, a protocol.Failure is
// returned to the client.
func (c *Control) update(kind protocol.SuccessKind, fn func(*settings.Settings) error) (protocol.Response, error) {
	_, err := c.store.Update(fn)

	var failure protocol.Failure
	switch {
	case err == nil, errors.Is(err, errUnchanged):
		return protocol.Ok(protocol.Success{Kind: kind}), nil
	case errors.As(err, &failure):
		return protocol.Err(failure), nil
	default:
		return protocol.Response{}, err
	}
}
