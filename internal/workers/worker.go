package workers

import (
	"context"
	"log"
	"sync"
	"time"
)

// Worker is the interface every background worker implements.
type Worker interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// WorkerManager runs multiple workers on their own tickers.
type WorkerManager struct {
	workers  []Worker
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
}

func NewWorkerManager() *WorkerManager {
	return &WorkerManager{
		workers:  []Worker{},
		stopChan: make(chan struct{}),
	}
}

// RegisterWorker adds a worker to the manager.
func (wm *WorkerManager) RegisterWorker(w Worker) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	wm.workers = append(wm.workers, w)
	log.Printf("✅ Worker '%s' registered (interval: %v)", w.Name(), w.Interval())
}

// Start launches every registered worker.
func (wm *WorkerManager) Start() {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	log.Printf("🚀 Starting %d worker(s)...", len(wm.workers))

	for _, worker := range wm.workers {
		wm.wg.Add(1)
		go wm.runWorker(worker)
	}
}

func (wm *WorkerManager) runWorker(w Worker) {
	defer wm.wg.Done()

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	log.Printf("🤖 Worker '%s' started (interval: %v)", w.Name(), w.Interval())

	// First pass runs immediately.
	wm.executeWorker(w)

	for {
		select {
		case <-ticker.C:
			wm.executeWorker(w)

		case <-wm.stopChan:
			log.Printf("🛑 Worker '%s' stopped", w.Name())
			return
		}
	}
}

// executeWorker runs one pass with a timeout and error logging.
func (wm *WorkerManager) executeWorker(w Worker) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := w.Run(ctx); err != nil {
		log.Printf("❌ Worker '%s' error: %v", w.Name(), err)
	}
}

// Stop halts every worker and waits for them to finish.
func (wm *WorkerManager) Stop() {
	log.Println("🛑 Stopping all workers...")

	close(wm.stopChan)
	wm.wg.Wait()

	log.Println("✅ All workers stopped")
}

// WorkerStats describes the registered workers.
type WorkerStats struct {
	TotalWorkers int      `json:"total_workers"`
	WorkerNames  []string `json:"worker_names"`
}

func (wm *WorkerManager) GetStats() WorkerStats {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	names := make([]string, len(wm.workers))
	for i, w := range wm.workers {
		names[i] = w.Name()
	}

	return WorkerStats{
		TotalWorkers: len(wm.workers),
		WorkerNames:  names,
	}
}
