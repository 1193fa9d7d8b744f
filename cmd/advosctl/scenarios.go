package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"devfs"
	"fd"
	"kernel"
	"mem"
	"proc"
	"vm"
)

// scenarioBoot mirrors spec.md §8 scenario 1: allocating an order-9
// block from the kernel zone and freeing it again restores the zone's
// free-list state.
func scenarioBoot(k *kernel.Kvar_t) error {
	before := k.Phys.FreeCount(mem.ZoneKernel, 0)
	pa, ok := k.Phys.Alloc(9, mem.ZoneKernel, 0)
	if !ok {
		return fmt.Errorf("order-9 allocation failed")
	}
	k.Phys.Free(pa, 9, mem.ZoneKernel, 0)
	after := k.Phys.FreeCount(mem.ZoneKernel, 0)
	if before != after {
		return fmt.Errorf("free count %d after alloc/free round trip, want %d", after, before)
	}
	return nil
}

// scenarioWire mirrors spec.md §8 scenario 2: wiring an order-9
// physical block into a fresh address range produces a single 2 MiB
// mapping at that range, and nothing beyond it.
func scenarioWire(k *kernel.Kvar_t) error {
	k.Vm.AddBlock(0xC0000000, 0xFFFFFFFF)

	pa, ok := k.Phys.Alloc(9, mem.ZoneKernel, 0)
	if !ok {
		return fmt.Errorf("order-9 allocation failed")
	}
	defer k.Phys.Free(pa, 9, mem.ZoneKernel, 0)

	const npages = 512 // 2^9
	if err := k.Vm.Wire(0xC0000000, npages, pa, mem.PTE_P|mem.PTE_W); err != 0 {
		return fmt.Errorf("wire failed: %s", err)
	}

	length := uintptr(npages) * uintptr(vm.PGSIZE)
	if _, err := k.Vm.Lookup(0xC0000000); err != 0 {
		return fmt.Errorf("start of wired range unresolved: %s", err)
	}
	if _, err := k.Vm.Lookup(0xC0000000 + length - 1); err != 0 {
		return fmt.Errorf("last byte of wired range unresolved: %s", err)
	}
	if _, err := k.Vm.Lookup(0xC0000000 + length); err == 0 {
		return fmt.Errorf("byte past the wired 2 MiB range resolved, want unmapped")
	}

	orders, ok := k.Vm.WiredOrders(0xC0000000)
	if !ok {
		return fmt.Errorf("no wired entry found at 0xC0000000")
	}
	if len(orders) != 1 || orders[0] != mem.SuperpageOrder {
		return fmt.Errorf("wired record orders %v, want a single order-%d record", orders, mem.SuperpageOrder)
	}
	return nil
}

// scenarioNanosleep mirrors spec.md §8 scenario 3: nanosleep(0.20s) at
// HZ=100 blocks for exactly 20 ticks and wakes naturally on the 20th.
func scenarioNanosleep(k *kernel.Kvar_t) error {
	p := k.Procs.New("sleeper", k.Vm, nil)
	p.Task.State = proc.Ready

	now := k.Timer.Now()
	fire := k.Sys.Nanosleep(p, 200*time.Millisecond)
	if fire != now+20 {
		return fmt.Errorf("fire jiffy %d, want %d", fire, now+20)
	}

	for i := 0; i < 19; i++ {
		k.Timer.Tick()
		if p.Task.State == proc.Ready {
			return fmt.Errorf("woke early on tick %d", i+1)
		}
	}
	k.Timer.Tick()
	if p.Task.State != proc.Ready {
		return fmt.Errorf("task did not wake on tick 20")
	}
	rem, ok := k.Sys.NanosleepWake(p, fire)
	if !ok || rem != 0 {
		return fmt.Errorf("NanosleepWake reported ok=%v rem=%v on a natural wake", ok, rem)
	}
	return nil
}

// scenarioDevfs mirrors spec.md §8 scenario 4: a registered console
// device delivers driver writes to a blocked reader.
func scenarioDevfs(k *kernel.Kvar_t) error {
	console, ok := k.Devfs.Lookup("console")
	if !ok {
		return fmt.Errorf("console device not registered")
	}

	readFd := devfs.Open(console, fd.FD_READ, nil)
	var buf [10]byte
	fb := &vm.Fakeubuf_t{}
	fb.Fake_init(buf[:])
	n, err := readFd.Fops.Read(fb)
	if err != 0 {
		return fmt.Errorf("initial read failed: %s", err)
	}
	if n != 0 {
		return fmt.Errorf("initial read returned %d bytes on an empty device, want 0 (blocked)", n)
	}

	if n, err := console.DriverWrite(nil, []byte("hello")); err != 0 || n != 5 {
		return fmt.Errorf("driver write: n=%d err=%s, want 5 bytes clean", n, err)
	}

	fb2 := &vm.Fakeubuf_t{}
	fb2.Fake_init(buf[:])
	n, err = readFd.Fops.Read(fb2)
	if err != 0 {
		return fmt.Errorf("read after driver write failed: %s", err)
	}
	if n != 5 {
		return fmt.Errorf("read after driver write returned %d bytes, want 5", n)
	}

	if n, err := console.DriverWrite(nil, []byte("abc")); err != 0 || n != 3 {
		return fmt.Errorf("second driver write: n=%d err=%s, want 3 bytes clean", n, err)
	}
	fb3 := &vm.Fakeubuf_t{}
	fb3.Fake_init(buf[:])
	n, err = readFd.Fops.Read(fb3)
	if err != 0 || n != 3 {
		return fmt.Errorf("read after second driver write: n=%d err=%s, want 3", n, err)
	}
	return nil
}

// scenarioFork mirrors spec.md §8 scenario 5: a forked child observes
// the same byte as its parent through a shared, not-yet-promoted CoW
// mapping.
func scenarioFork(k *kernel.Kvar_t) error {
	parent := k.Procs.New("forker", k.Vm, nil)
	const va = uintptr(0x1000_0000)
	if err := parent.Vm.AllocPagesAt(va, 1, mem.PTE_P|mem.PTE_W|mem.PTE_U); err != 0 {
		return fmt.Errorf("alloc_pages_at failed: %s", err)
	}
	if err := parent.Vm.Userwriten(va, 1, 0x2a); err != 0 {
		return fmt.Errorf("seeding the page failed: %s", err)
	}

	child, err := k.Sys.Fork(parent)
	if err != 0 {
		return fmt.Errorf("fork failed: %s", err)
	}

	pv, perr := parent.Vm.Userreadn(va, 1)
	cv, cerr := child.Vm.Userreadn(va, 1)
	if perr != 0 || cerr != 0 {
		return fmt.Errorf("post-fork read failed: parent=%s child=%s", perr, cerr)
	}
	if pv != cv {
		return fmt.Errorf("parent byte %#x != child byte %#x immediately after fork", pv, cv)
	}
	if pv != 0x2a {
		return fmt.Errorf("parent byte %#x, want %#x", pv, 0x2a)
	}
	return nil
}

// scenarioBuddy mirrors spec.md §8 scenario 6: 1000 steps of random
// order-0..6 allocations interleaved with random frees, then every
// held block is freed. It checks only that these calls complete; it
// does not inspect the free lists for two free same-order buddies.
func scenarioBuddy(k *kernel.Kvar_t) error {
	rng := rand.New(rand.NewPCG(1, 2))
	type live struct {
		pa    mem.Pa_t
		order int
	}
	var held []live

	for i := 0; i < 1000; i++ {
		if len(held) > 0 && rng.IntN(2) == 0 {
			j := rng.IntN(len(held))
			k.Phys.Free(held[j].pa, held[j].order, mem.ZoneKernel, 0)
			held = append(held[:j], held[j+1:]...)
			continue
		}
		order := rng.IntN(7) // 0..6
		pa, ok := k.Phys.Alloc(order, mem.ZoneKernel, 0)
		if !ok {
			continue
		}
		held = append(held, live{pa, order})
	}
	for _, h := range held {
		k.Phys.Free(h.pa, h.order, mem.ZoneKernel, 0)
	}
	return nil
}
