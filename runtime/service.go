// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"fmt"
	"maps"
	"slices"

	. "import.name/type/context"
)

// WritebackService number is reserved for attribute writeback.
const WritebackService = 0

// Service handles remote procedure calls made by kernels.  The arguments have
// been decoded according to the tag.  An error which is an *exception.Exception
// is raised in the kernel as such; other errors are raised as RuntimeError.
type Service interface {
	Call(ctx Context, tag string, args []any) (result any, err error)
}

// ServiceFunc is almost like Service.
type ServiceFunc func(ctx Context, tag string, args []any) (any, error)

func (f ServiceFunc) Call(ctx Context, tag string, args []any) (any, error) {
	return f(ctx, tag, args)
}

// Registry of services by number.
type Registry struct {
	services map[uint32]Service
}

// Register a service implementation.  A registered number may be replaced.
func (r *Registry) Register(service uint32, s Service) error {
	if service == WritebackService {
		return fmt.Errorf("RPC service number %d is reserved", service)
	}

	if r.services == nil {
		r.services = make(map[uint32]Service)
	}
	r.services[service] = s
	return nil
}

// MustRegister panics on error.
func (r *Registry) MustRegister(service uint32, s Service) {
	if err := r.Register(service, s); err != nil {
		panic(err)
	}
}

// RegisterFunc is almost like Register.
func (r *Registry) RegisterFunc(service uint32, f func(Context, string, []any) (any, error)) error {
	return r.Register(service, ServiceFunc(f))
}

// Clone the registry.  The new registry may be used to add or replace some
// service implementations.  Cloning nil yields an empty registry.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return new(Registry)
	}
	return &Registry{
		services: maps.Clone(r.services),
	}
}

// Numbers of the registered services in ascending order.
func (r *Registry) Numbers() []uint32 {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.services))
}

func (r *Registry) lookup(service uint32) (s Service, found bool) {
	if r != nil {
		s, found = r.services[service]
	}
	return
}
