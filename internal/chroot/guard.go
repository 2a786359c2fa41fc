package chroot

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Guard runs fn with c prepared, guaranteeing Teardown runs exactly once:
// on fn's return, on panic, or on SIGINT/SIGTERM. Used by the stage runner
// so a killed build never leaves stray bind mounts.
func (c *Chroot) Guard(fn func() error) (err error) {
	if err := c.Prepare(); err != nil {
		return err
	}
	var once sync.Once
	teardown := func() { once.Do(func() { _ = c.Teardown() }) }

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			teardown()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		signal.Stop(sigCh)
		teardown()
	}()

	return fn()
}
