package printqueue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darrien-wang/QuickLabel/internal/config"
	"github.com/darrien-wang/QuickLabel/internal/models"
	"github.com/darrien-wang/QuickLabel/internal/utils"
)

// Renderer turns a record snapshot into a printable document.
type Renderer interface {
	RenderLabel(rec models.Record, batchName string) ([]byte, error)
}

// Printer delivers a rendered document to a physical printer queue.
type Printer interface {
	Print(ctx context.Context, doc []byte, taskID, printerID string) error
}

// Processor serializes label printing: however many scans complete in
// quick succession, at most one render/print cycle is in flight at any
// time. A single dedicated consumer goroutine drains a mutex-guarded
// FIFO, woken by queue mutations — never by a timer — so the invariant
// holds by construction, with no re-entrant trigger to guard against.
//
// Tasks are terminal on success and failure alike: a failed print is
// logged and dropped, never retried, and never blocks the next task.
type Processor struct {
	renderer Renderer
	printer  Printer

	settleDelay  time.Duration
	printTimeout time.Duration

	mu        sync.Mutex
	tasks     []*models.PrintTask
	printerID string

	// Auto-enqueue suppression: a record auto-printed moments ago is
	// not auto-printed again (a manual print-now bypasses this).
	recent *utils.Deduplicator

	wake     chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
	started  bool
	stopOnce sync.Once
}

// autoSuppressWindow is the duplicate-print suppression window for
// auto-enqueued tasks racing a manual print of the same record.
const autoSuppressWindow = 2 * time.Second

// NewProcessor creates a stopped processor.
func NewProcessor(renderer Renderer, printer Printer, cfg config.PrintConfig) *Processor {
	return &Processor{
		renderer:     renderer,
		printer:      printer,
		settleDelay:  cfg.SettleDelay,
		printTimeout: cfg.PrintTimeout,
		printerID:    cfg.PrinterID,
		recent:       utils.NewDeduplicator(autoSuppressWindow),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Start launches the consumer goroutine. Starting twice is a no-op.
func (p *Processor) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run()
}

// Stop shuts the consumer down. The in-flight task (if any) finishes;
// remaining Pending tasks are dropped with the process.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.stopOnce.Do(func() { close(p.stop) })
	<-p.stopped
}

// Enqueue appends a Pending task and returns immediately; completion
// is never observable synchronously. Two enqueues of the same record
// produce two prints.
func (p *Processor) Enqueue(rec models.Record, batchName string) string {
	task := &models.PrintTask{
		TaskID:     uuid.New().String(),
		Record:     rec.Clone(),
		BatchName:  batchName,
		Status:     models.TaskStatusPending,
		EnqueuedAt: time.Now().UTC(),
	}

	p.mu.Lock()
	p.tasks = append(p.tasks, task)
	p.mu.Unlock()

	p.nudge()
	return task.TaskID
}

// AutoEnqueue is the scan-triggered path: it suppresses a second
// auto-print of the same record within the suppression window.
func (p *Processor) AutoEnqueue(rec models.Record, batchName string) (string, bool) {
	if p.recent.IsDuplicate(rec.BatchID + "/" + rec.ID) {
		log.Printf("🖨  Suppressing duplicate auto-print for %s", rec.ID)
		return "", false
	}
	return p.Enqueue(rec, batchName), true
}

// SetPrinter switches the printer identity used for subsequent tasks.
func (p *Processor) SetPrinter(printerID string) {
	p.mu.Lock()
	p.printerID = printerID
	p.mu.Unlock()
}

// PrinterID returns the currently selected printer identity.
func (p *Processor) PrinterID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printerID
}

// Tasks returns a snapshot of the queue in FIFO order.
func (p *Processor) Tasks() []models.PrintTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.PrintTask, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, *t)
	}
	return out
}

// nudge wakes the consumer. The buffered channel coalesces bursts.
func (p *Processor) nudge() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run is the consumer loop: drain everything promotable, then sleep
// until the next queue mutation.
func (p *Processor) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
		}
		for {
			task := p.promote()
			if task == nil {
				break
			}
			p.process(task)
			select {
			case <-p.stop:
				return
			default:
			}
		}
	}
}

// promote marks the oldest Pending task Processing and returns it.
// Nothing is promoted while another task is Processing — that is the
// queue's back-pressure, kept even though the single consumer already
// guarantees it.
func (p *Processor) promote() *models.PrintTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tasks {
		if t.Status == models.TaskStatusProcessing {
			return nil
		}
	}
	for _, t := range p.tasks {
		if t.Status == models.TaskStatusPending {
			t.Status = models.TaskStatusProcessing
			return t
		}
	}
	return nil
}

// process runs one render/print cycle and removes the task whatever
// the outcome. Failures are logged and isolated; the next task is
// unaffected.
func (p *Processor) process(task *models.PrintTask) {
	defer p.remove(task.TaskID)

	// Give the label's visual representation time to materialize
	// before it is captured for printing.
	if p.settleDelay > 0 {
		timer := time.NewTimer(p.settleDelay)
		select {
		case <-timer.C:
		case <-p.stop:
			timer.Stop()
			// Shutting down: finish this task without the settle wait.
		}
	}

	doc, err := p.renderer.RenderLabel(task.Record, task.BatchName)
	if err != nil {
		log.Printf("❌ Print task %s: render failed: %v", task.TaskID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.printTimeout)
	defer cancel()
	if err := p.printer.Print(ctx, doc, task.TaskID, p.PrinterID()); err != nil {
		log.Printf("❌ Print task %s: print failed on %q: %v", task.TaskID, p.PrinterID(), err)
		return
	}

	log.Printf("🖨  Printed label for %s", task.Record.ID)
}

// remove deletes a task by id.
func (p *Processor) remove(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range p.tasks {
		if t.TaskID == taskID {
			p.tasks = append(p.tasks[:i], p.tasks[i+1:]...)
			return
		}
	}
}
