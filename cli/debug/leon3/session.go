//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Package leon3 ties the AHBJTAG link, Plug&Play discovery and the DSU3
// driver into a debug session. A session hands out at most one core handle
// at a time so that transactions on the shared JTAG transport never
// interleave.
package leon3

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/leon3dbg/cli/debug/ahbjtag"
	"github.com/mongoose-os/leon3dbg/cli/debug/common"
	"github.com/mongoose-os/leon3dbg/cli/debug/common/jtag"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3/dsu3"
	"github.com/mongoose-os/leon3dbg/cli/debug/plugnplay"
)

const ArchLEON3 = "leon3"

var (
	ErrBorrowConflict = errors.New("another core handle is in use")
	ErrReleased       = errors.New("core handle has been released")
	ErrClosed         = errors.New("session is closed")
)

type Config struct {
	Arch        string           `yaml:"arch"`
	AHBJTAG     ahbjtag.Config   `yaml:"ahbjtag"`
	PlugAndPlay plugnplay.Config `yaml:"plugnplay"`
	DSU3        dsu3.Config      `yaml:"dsu3"`
}

func DefaultConfig() Config {
	return Config{
		Arch:        ArchLEON3,
		AHBJTAG:     ahbjtag.DefaultConfig(),
		PlugAndPlay: plugnplay.DefaultConfig(),
		DSU3:        dsu3.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if c.Arch != ArchLEON3 {
		return errors.NotSupportedf("architecture %q", c.Arch)
	}
	if err := c.AHBJTAG.Validate(); err != nil {
		return errors.Trace(err)
	}
	if err := c.PlugAndPlay.Validate(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.DSU3.Validate())
}

// Session owns the transport and everything learned about the target.
type Session struct {
	cfg Config
	t   jtag.Transport
	mem *ahbjtag.Client
	dt  *plugnplay.DeviceTable
	win dsu3.Window

	mu     sync.Mutex
	states []*dsu3.CoreState
	inUse  bool
	closed bool
}

// Open scans the target behind t and locates its debug support unit.
func Open(ctx context.Context, t jtag.Transport, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotatef(err, "invalid session config")
	}
	mem, err := ahbjtag.NewClient(t, cfg.AHBJTAG)
	if err != nil {
		return nil, errors.Trace(err)
	}
	dt, err := plugnplay.Scan(ctx, mem, cfg.PlugAndPlay)
	if err != nil {
		return nil, errors.Annotatef(err, "Plug&Play scan failed")
	}
	for _, f := range dt.Failures {
		glog.Warningf("Plug&Play: %s", f)
	}
	win, err := dsu3.Locate(dt)
	if err != nil {
		return nil, errors.Trace(err)
	}
	glog.V(1).Infof("session open: %d device(s), %d core(s)", len(dt.Records), win.NumCores)
	return &Session{
		cfg:    cfg,
		t:      t,
		mem:    mem,
		dt:     dt,
		win:    win,
		states: make([]*dsu3.CoreState, win.NumCores),
	}, nil
}

func (s *Session) Devices() *plugnplay.DeviceTable {
	return s.dt
}

func (s *Session) Window() dsu3.Window {
	return s.win
}

func (s *Session) NumCores() int {
	return s.win.NumCores
}

func (s *Session) Stats() ahbjtag.Stats {
	return s.mem.Stats()
}

// Attach checks out the handle for core id. It must be released before
// another one can be attached.
func (s *Session) Attach(ctx context.Context, id int) (*Core, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.Trace(ErrClosed)
	}
	if s.inUse {
		return nil, errors.Annotatef(ErrBorrowConflict, "attach core %d", id)
	}
	if id < 0 || id >= s.win.NumCores {
		return nil, errors.NotValidf("core %d (%d present)", id, s.win.NumCores)
	}
	st := s.states[id]
	if st == nil {
		st = dsu3.NewCoreState()
	}
	d, err := dsu3.Attach(ctx, s.mem, s.win, id, s.cfg.DSU3, st)
	if err != nil {
		return nil, errors.Annotatef(err, "attach core %d", id)
	}
	s.states[id] = st
	s.inUse = true
	glog.V(3).Infof("core %d checked out", id)
	return &Core{s: s, d: d}, nil
}

func (s *Session) release(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inUse = false
	glog.V(3).Infof("core %d released", id)
}

// WithCore runs f with core id attached and releases it afterwards.
func (s *Session) WithCore(ctx context.Context, id int, f func(common.Core) error) error {
	c, err := s.Attach(ctx, id)
	if err != nil {
		return errors.Trace(err)
	}
	defer c.Release()
	return f(c)
}

// Close releases the transport if it holds hardware resources.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.t.(jtag.Closer); ok {
		return errors.Trace(c.Close())
	}
	return nil
}
