// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func destroyedController(t *testing.T) *Controller {
	t.Helper()
	c := NewController(nil, &fakeRenderer{}, &fakeSandbox{}, nil)
	c.mu.Lock()
	c.name = "spent"
	c.mu.Unlock()
	assert.NoError(t, c.Destroy(false))
	return c
}

func Test_Pool_RejectsLiveInstances(t *testing.T) {
	p := NewControllerPool(2)
	p.Release(nil)
	p.Release(NewController(nil, &fakeRenderer{}, &fakeSandbox{}, nil))
	assert.Zero(t, p.Len())
}

func Test_Pool_GetReturnsBlankInstance(t *testing.T) {
	p := NewControllerPool(2)
	c := destroyedController(t)
	p.Release(c)
	assert.Equal(t, 1, p.Len())

	got := p.Get()
	assert.Same(t, c, got)
	assert.Equal(t, StateCreated, got.State())
	assert.Empty(t, got.Name())
	assert.Empty(t, got.ID())
	assert.False(t, got.Removed())
	assert.Zero(t, p.Len())
}

func Test_Pool_GetEmpty(t *testing.T) {
	p := NewControllerPool(1)
	assert.Nil(t, p.Get())
}

func Test_Pool_FullPoolDrops(t *testing.T) {
	p := NewControllerPool(1)
	p.Release(destroyedController(t))
	p.Release(destroyedController(t))
	assert.Equal(t, 1, p.Len())
}

func Test_Pool_StaleDestroyIsNoOp(t *testing.T) {
	p := NewControllerPool(2)
	c := destroyedController(t)
	c.Pool = p
	p.Release(c)

	// a caller holding a released instance cannot tear it down again
	assert.NoError(t, c.Destroy(true))
	assert.Equal(t, 1, p.Len())
	assert.False(t, c.Removed())
}

func Test_Pool_DefaultSize(t *testing.T) {
	p := NewControllerPool(0)
	assert.Equal(t, DefaultPoolSize, cap(p.ch))
}
