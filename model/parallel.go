package model

import (
	"runtime"
	"sync"
	"time"

	"github.com/pthm-cable/slick/geo"
	"github.com/pthm-cable/slick/movers"
)

// parallelThreshold is the minimum element count worth fanning out to
// the worker pool; below it the goroutine overhead dominates.
const parallelThreshold = 64

// elementSnapshot captures the read-only element state one move
// computation needs, so workers never touch the ECS world.
type elementSnapshot struct {
	SetIndex  int
	ElemIndex int
	Elem      movers.Element
	ElemType  movers.ElementType
}

// moveIntent is the computed outcome for one element, applied
// single-threaded after the compute phase so results never depend on
// worker scheduling.
type moveIntent struct {
	Position geo.WorldPoint3D
}

type workChunk struct {
	start, end int
}

// parallelState runs the per-element move computation on a pool of
// persistent workers fed by chunk.
type parallelState struct {
	snapshots  []elementSnapshot
	intents    []moveIntent
	numWorkers int

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool

	// Step-scoped inputs, set before dispatch, read-only to workers.
	movers    []movers.Mover
	modelTime time.Time
	step      time.Duration
}

func newParallelState() *parallelState {
	return &parallelState{
		numWorkers: runtime.GOMAXPROCS(0),
		snapshots:  make([]elementSnapshot, 0, 512),
		intents:    make([]moveIntent, 0, 512),
	}
}

func (p *parallelState) startWorkers() {
	if p.running {
		return
	}
	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *parallelState) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			p.computeChunk(chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// computeChunk moves snapshots [start, end). Every mover sees the
// element at its step-start position; the displacements add.
func (p *parallelState) computeChunk(start, end int) {
	for i := start; i < end; i++ {
		snap := &p.snapshots[i]
		base := snap.Elem.Position
		result := base
		for _, m := range p.movers {
			moved := m.GetMove(p.modelTime, p.step, snap.SetIndex, snap.ElemIndex, snap.Elem, snap.ElemType)
			result.Lat += moved.Lat - base.Lat
			result.Lon += moved.Lon - base.Lon
			result.Z += moved.Z - base.Z
		}
		p.intents[i] = moveIntent{Position: result}
	}
}

// compute fills intents for the current snapshots, single-threaded for
// small element counts, chunked across the pool otherwise.
func (p *parallelState) compute(active []movers.Mover, modelTime time.Time, step time.Duration) {
	n := len(p.snapshots)
	if cap(p.intents) < n {
		p.intents = make([]moveIntent, n)
	}
	p.intents = p.intents[:n]
	p.movers = active
	p.modelTime = modelTime
	p.step = step

	if n < parallelThreshold {
		p.computeChunk(0, n)
		return
	}

	if !p.running {
		p.startWorkers()
	}
	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end}
		dispatched++
	}
	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}
