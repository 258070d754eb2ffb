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
package leon3

import (
	"context"
	"sync"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/leon3dbg/cli/debug/common"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3/dsu3"
	"github.com/mongoose-os/leon3dbg/cli/debug/leon3/sim"
)

type closingSim struct {
	*sim.System
	closed int
}

func (c *closingSim) Close() error {
	c.closed++
	return nil
}

func newSession(t *testing.T, cores int) (*Session, *closingSim) {
	t.Helper()
	cfg := sim.DefaultConfig()
	cfg.Cores = cores
	s, err := sim.New(cfg)
	require.NoError(t, err)
	cs := &closingSim{System: s}
	sess, err := Open(context.Background(), cs, DefaultConfig())
	require.NoError(t, err)
	return sess, cs
}

func TestOpen(t *testing.T) {
	sess, cs := newSession(t, 2)
	assert.Equal(t, 2, sess.NumCores())
	assert.Equal(t, uint32(0x90000000), sess.Window().Base)
	assert.Len(t, sess.Devices().Masters(), 3)
	assert.True(t, sess.Stats().Transactions > 0)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.Equal(t, 1, cs.closed)
	_, err := sess.Attach(context.Background(), 0)
	assert.Equal(t, ErrClosed, errors.Cause(err))
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	s, err := sim.New(sim.DefaultConfig())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Arch = "arm"
	_, err = Open(ctx, s, cfg)
	assert.True(t, errors.IsNotSupported(err), "%v", err)

	// Turn the DSU slot into the terminator.
	s.Poke(0xfffff840, 0)
	_, err = Open(ctx, s, DefaultConfig())
	assert.Equal(t, dsu3.ErrNotFound, errors.Cause(err))
}

func TestBorrowConflict(t *testing.T) {
	ctx := context.Background()
	sess, _ := newSession(t, 2)

	c0, err := sess.Attach(ctx, 0)
	require.NoError(t, err)
	_, err = sess.Attach(ctx, 0)
	assert.Equal(t, ErrBorrowConflict, errors.Cause(err))
	_, err = sess.Attach(ctx, 1)
	assert.Equal(t, ErrBorrowConflict, errors.Cause(err))

	c0.Release()
	c0.Release()
	c1, err := sess.Attach(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, c1.ID())
	c1.Release()

	_, err = sess.Attach(ctx, 2)
	assert.True(t, errors.IsNotValid(err))
}

func TestConcurrentAttach(t *testing.T) {
	ctx := context.Background()
	sess, _ := newSession(t, 1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, conflicts := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sess.Attach(ctx, 0)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Cause(err) == ErrBorrowConflict {
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, conflicts)
}

func TestUseAfterRelease(t *testing.T) {
	ctx := context.Background()
	sess, _ := newSession(t, 1)
	c, err := sess.Attach(ctx, 0)
	require.NoError(t, err)
	c.Release()

	_, err = c.Status(ctx)
	assert.Equal(t, ErrReleased, errors.Cause(err))
	assert.Equal(t, ErrReleased, errors.Cause(c.Halt(ctx)))
	_, err = c.ReadTargetReg(ctx, 0x40000000)
	assert.Equal(t, ErrReleased, errors.Cause(err))
	assert.Nil(t, c.Breakpoints())
}

func TestStatePersistsAcrossAttach(t *testing.T) {
	ctx := context.Background()
	sess, _ := newSession(t, 2)

	c, err := sess.Attach(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, c.Halt(ctx))
	slot, err := c.SetBreakpoint(ctx, 0x40000100)
	require.NoError(t, err)
	c.Release()

	c, err = sess.Attach(ctx, 0)
	require.NoError(t, err)
	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, common.Running, st.State)
	c.Release()

	c, err = sess.Attach(ctx, 1)
	require.NoError(t, err)
	defer c.Release()
	assert.Equal(t, []common.Breakpoint{{Slot: slot, Addr: 0x40000100, Set: true}, {Slot: 1}}, c.Breakpoints())
	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, common.Halted, st.State)
	assert.Equal(t, common.HaltReasonRequest, st.Reason)
}

func TestWithCore(t *testing.T) {
	ctx := context.Background()
	sess, _ := newSession(t, 1)

	boom := errors.New("boom")
	err := sess.WithCore(ctx, 0, func(c common.Core) error {
		return boom
	})
	assert.Equal(t, boom, err)

	err = sess.WithCore(ctx, 0, func(c common.Core) error {
		if err := c.Halt(ctx); err != nil {
			return err
		}
		pc, err := c.GetPC(ctx)
		if err != nil {
			return err
		}
		for i := 1; i <= 3; i++ {
			if err := c.Step(ctx); err != nil {
				return err
			}
			got, err := c.GetPC(ctx)
			if err != nil {
				return err
			}
			assert.Equal(t, pc+uint32(4*i), got)
		}
		return nil
	})
	require.NoError(t, err)

	c, err := sess.Attach(ctx, 0)
	require.NoError(t, err)
	c.Release()
}

func TestCoreMemoryLanes(t *testing.T) {
	ctx := context.Background()
	sess, _ := newSession(t, 1)
	err := sess.WithCore(ctx, 0, func(c common.Core) error {
		require.NoError(t, c.WriteTargetReg(ctx, 0x40000000, 0xdeadbeef))
		v, err := c.ReadTargetReg(ctx, 0x40000000)
		require.NoError(t, err)
		assert.Equal(t, uint32(0xdeadbeef), v)

		require.NoError(t, c.WriteTarget8(ctx, 0x40000001, 0xab))
		v, err = c.ReadTargetReg(ctx, 0x40000000)
		require.NoError(t, err)
		assert.Equal(t, uint32(0xdeabbeef), v)
		b, err := c.ReadTarget8(ctx, 0x40000001)
		require.NoError(t, err)
		assert.Equal(t, uint8(0xab), b)
		return nil
	})
	require.NoError(t, err)
}

func TestCoreRegistersByName(t *testing.T) {
	ctx := context.Background()
	sess, _ := newSession(t, 1)
	c, err := sess.Attach(ctx, 0)
	require.NoError(t, err)
	defer c.Release()

	_, err = c.GetReg(ctx, "o0")
	assert.Equal(t, dsu3.ErrCoreNotHalted, errors.Cause(err))
	require.NoError(t, c.Halt(ctx))
	require.NoError(t, c.SetReg(ctx, "%l2", 0x77))
	v, err := c.GetReg(ctx, "L2")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x77), v)
	_, err = c.GetReg(ctx, "bogus")
	assert.True(t, errors.IsNotFound(err))
}
