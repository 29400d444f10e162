// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func Test_Correlator_CallIDSequence(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	h := newCollectHandler()
	client, _ := transportPair(t, h)
	s, err := client.Open("ids")
	assert.NoError(t, err)

	r := newCorrelator()
	r.install("foo")
	r.install("bar")
	for i := 0; i < 3; i++ {
		assert.NoError(t, r.Call(s, "foo", nil, nil))
	}
	assert.NoError(t, r.Call(s, "bar", nil, nil))
	h.wait(t, 4)

	var ids []string
	for _, env := range h.envelopes("ids") {
		assert.Equal(t, KindRPC, env.Kind)
		ids = append(ids, env.ID)
	}
	assert.Equal(t, []string{"foo#1", "foo#2", "foo#3", "bar#1"}, ids)
}

func Test_Correlator_UnknownMethod(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	client, _ := transportPair(t, nil)
	s, err := client.Open("nope")
	assert.NoError(t, err)

	r := newCorrelator()
	err = r.Call(s, "missing", nil, nil)
	assert.Equal(t, UnknownMethodError{Method: "missing"}, errors.Cause(err))
}

func Test_Correlator_ResolveFiresOnce(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	client, _ := transportPair(t, nil)
	s, err := client.Open("once")
	assert.NoError(t, err)

	r := newCorrelator()
	r.install("foo")

	var got [][]any
	assert.NoError(t, r.Call(s, "foo", []any{1}, func(args ...any) {
		got = append(got, args)
	}))
	assert.NoError(t, r.Call(s, "foo", []any{2}, func(args ...any) {
		t.Error("wrong handler invoked")
	}))
	assert.Equal(t, 2, r.Pending())

	assert.True(t, r.resolve("foo#1", []any{nil, 42}))
	assert.Equal(t, [][]any{{nil, 42}}, got)
	assert.Equal(t, 1, r.Pending())

	// a given call id fires at most once
	assert.False(t, r.resolve("foo#1", []any{nil, 43}))
	assert.Equal(t, 1, len(got))
}

func Test_Correlator_AbandonFailsPending(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	client, _ := transportPair(t, nil)
	s, err := client.Open("orphan")
	assert.NoError(t, err)

	r := newCorrelator()
	r.install("foo")

	var fired []any
	assert.NoError(t, r.Call(s, "foo", nil, func(args ...any) {
		fired = append(fired, args...)
	}))

	r.abandon(DestroyedError{})
	assert.Equal(t, []any{DestroyedError{}}, fired)
	assert.Zero(t, r.Pending())
	assert.Empty(t, r.Methods())

	// abandoned handlers are gone
	assert.False(t, r.resolve("foo#1", nil))
	assert.Equal(t, 1, len(fired))
}
