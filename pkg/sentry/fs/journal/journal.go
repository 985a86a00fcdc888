// Copyright 2026 The gVisor Authors.
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

// Package journal implements the transaction boundaries of a write-ahead
// log.
//
// A Journal admits concurrent operations (BeginOp ... EndOp) as long as the
// blocks they may log still fit in the log. Blocks logged by concurrent
// operations are absorbed into one group commit, which happens when the
// last outstanding operation ends. Crash recovery is not implemented; a
// commit only accounts for the blocks it would have installed.
package journal

import (
	"fmt"
	"sync"

	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/metric"
)

var (
	opsStarted = metric.MustCreateNewUint64Metric("/fs/journal/ops", "Number of journal operations begun.")
	commits    = metric.MustCreateNewUint64Metric("/fs/journal/commits", "Number of journal group commits.")
	opsWaited  = metric.MustCreateNewUint64Metric("/fs/journal/waits", "Number of times BeginOp waited for log space or a commit.")
)

// Stats are cumulative counters for one Journal.
type Stats struct {
	// Ops is the number of operations begun.
	Ops uint64

	// Commits is the number of group commits.
	Commits uint64

	// BlocksLogged is the number of distinct blocks written by commits.
	BlocksLogged uint64

	// Waits is the number of times BeginOp had to wait.
	Waits uint64
}

// Journal brackets filesystem mutations.
type Journal struct {
	// maxOpBlocks is the most blocks one operation may log.
	maxOpBlocks int

	// size is the capacity of the log in blocks.
	size int

	mu   sync.Mutex
	cond sync.Cond

	// outstanding is the number of operations executing. outstanding is
	// protected by mu.
	outstanding int

	// committing is true while a commit is in progress. committing is
	// protected by mu.
	committing bool

	// blocks are the block numbers logged since the last commit, without
	// duplicates. blocks is protected by mu.
	blocks []uint32

	// stats is protected by mu.
	stats Stats

	// onCommit, if set, is called with the blocks of each commit.
	onCommit func(blocks []uint32)
}

// New returns a Journal with a log of size blocks, where every operation
// logs at most maxOpBlocks blocks.
func New(maxOpBlocks, size int) *Journal {
	if maxOpBlocks <= 0 || size < maxOpBlocks {
		panic(fmt.Sprintf("invalid journal geometry: maxOpBlocks=%d size=%d", maxOpBlocks, size))
	}
	j := &Journal{
		maxOpBlocks: maxOpBlocks,
		size:        size,
	}
	j.cond.L = &j.mu
	return j
}

// SetCommitHook installs fn to be called with the blocks of every commit.
// It must be called before the Journal is used.
func (j *Journal) SetCommitHook(fn func(blocks []uint32)) {
	j.onCommit = fn
}

// MaxOpBlocks returns the most blocks one operation may log.
func (j *Journal) MaxOpBlocks() int {
	return j.maxOpBlocks
}

// BeginOp starts an operation. It blocks while a commit is in progress or
// while admitting another operation could overflow the log.
func (j *Journal) BeginOp() {
	j.mu.Lock()
	defer j.mu.Unlock()
	waited := false
	for j.committing || len(j.blocks)+(j.outstanding+1)*j.maxOpBlocks > j.size {
		if !waited {
			waited = true
			j.stats.Waits++
			opsWaited.Increment()
		}
		j.cond.Wait()
	}
	j.outstanding++
	j.stats.Ops++
	opsStarted.Increment()
}

// EndOp ends an operation, committing if it was the last outstanding one.
func (j *Journal) EndOp() {
	j.mu.Lock()
	if j.outstanding < 1 {
		j.mu.Unlock()
		panic("EndOp without BeginOp")
	}
	if j.committing {
		j.mu.Unlock()
		panic("EndOp during commit")
	}
	j.outstanding--
	if j.outstanding > 0 {
		// BeginOp may be waiting for log space, and decrementing
		// outstanding has decreased the amount of reserved space.
		j.cond.Broadcast()
		j.mu.Unlock()
		return
	}
	j.committing = true
	blocks := j.blocks
	j.blocks = nil
	j.mu.Unlock()

	// Commit without holding mu; nothing else can begin until committing
	// is cleared.
	j.commit(blocks)

	j.mu.Lock()
	j.committing = false
	j.stats.Commits++
	j.stats.BlocksLogged += uint64(len(blocks))
	j.cond.Broadcast()
	j.mu.Unlock()
}

func (j *Journal) commit(blocks []uint32) {
	if len(blocks) == 0 {
		return
	}
	commits.Increment()
	log.Debugf("journal: committing %d blocks", len(blocks))
	if j.onCommit != nil {
		j.onCommit(blocks)
	}
}

// LogWrite records that block was modified by the current operation. Writing
// the same block twice within a commit is absorbed.
//
// Preconditions: called between BeginOp and EndOp.
func (j *Journal) LogWrite(block uint32) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.outstanding < 1 {
		panic(fmt.Sprintf("LogWrite of block %d outside of an operation", block))
	}
	for _, b := range j.blocks {
		if b == block {
			return
		}
	}
	if len(j.blocks) >= j.size-1 {
		panic(fmt.Sprintf("transaction too big: %d blocks in a log of %d", len(j.blocks)+1, j.size))
	}
	j.blocks = append(j.blocks, block)
}

// InOp returns true if any operation is outstanding.
func (j *Journal) InOp() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outstanding > 0
}

// Stats returns a snapshot of j's counters.
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}
