// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"errors"
	"testing"
)

type stubBackend struct{ name string }

func (b *stubBackend) Name() string                         { return b.name }
func (b *stubBackend) EnumerateAdapters() ([]Adapter, error) { return nil, nil }
func (b *stubBackend) CreateDevice(Adapter, FeatureLevel) (Device, error) {
	return nil, ErrUnsupported
}
func (b *stubBackend) Destroy() {}

func stubFactory(name string) BackendFactory {
	return func() (Backend, error) { return &stubBackend{name: name}, nil }
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	r.Register("test", 50, stubFactory("test"), nil)

	entry, ok := r.Get("test")
	if !ok {
		t.Fatal("registered backend not found")
	}
	if entry.Name != "test" || entry.Priority != 50 {
		t.Errorf("entry = %+v", entry)
	}
	if !entry.Available() {
		t.Error("nil Available func should mean available")
	}

	r.Unregister("test")
	if _, ok := r.Get("test"); ok {
		t.Error("backend should not exist after Unregister")
	}
}

func TestRegistryPriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("soft", PriorityReference, stubFactory("soft"), nil)
	r.Register("native", PriorityHardware, stubFactory("native"), nil)
	r.Register("broken", PriorityHardware+1, stubFactory("broken"), func() bool { return false })

	list := r.List()
	if len(list) != 3 || list[0] != "broken" {
		t.Errorf("List() = %v, want broken first", list)
	}
	avail := r.Available()
	if len(avail) != 2 || avail[0] != "native" || avail[1] != "soft" {
		t.Errorf("Available() = %v, want [native soft]", avail)
	}
}

func TestRegistryOpen(t *testing.T) {
	r := NewRegistry()
	r.Register("soft", PriorityReference, stubFactory("soft"), nil)
	r.Register("off", PriorityHardware, stubFactory("off"), func() bool { return false })
	r.Register("fails", PriorityHardware, func() (Backend, error) {
		return nil, ErrDeviceLost
	}, nil)

	b, err := r.Open("soft")
	if err != nil {
		t.Fatalf("Open(soft) error = %v", err)
	}
	if b.Name() != "soft" {
		t.Errorf("Name() = %q, want soft", b.Name())
	}

	if _, err := r.Open("missing"); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Open(missing) error = %v, want ErrNoBackend", err)
	}
	if _, err := r.Open("off"); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Open(off) error = %v, want ErrNoBackend", err)
	}
	if _, err := r.Open("fails"); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Open(fails) error = %v, want wrapped factory error", err)
	}
}
