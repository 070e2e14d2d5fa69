package race

import (
	"log"
	"sync"
	"time"
)

// Sweeper periodically purges rooms that were created but never started.
// Completed rooms are handled by the grace-period timer instead.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewSweeper(registry *Registry, interval time.Duration) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("Room sweeper started (interval: %v)", s.interval)
}

func (s *Sweeper) Stop() {
	close(s.stop)
	s.wg.Wait()
	log.Println("Room sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if removed := s.registry.SweepExpired(); removed > 0 {
				log.Printf("Swept %d expired rooms", removed)
			}
		}
	}
}
