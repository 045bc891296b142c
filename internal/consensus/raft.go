package consensus

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Role is this node's current Raft role.
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// LogEntry is one entry in a node's replicated log.
type LogEntry struct {
	Term    uint64
	Index   uint64
	Command Command
}

// PeerConfig names one member of the cluster.
type PeerConfig struct {
	ID   string
	Addr string
}

// Config configures a Node.
type Config struct {
	NodeID            string
	Peers             []PeerConfig // all peers, including this node
	SingleNode        bool
	ElectionTimeout   time.Duration // base; each node jitters +0-100%
	HeartbeatInterval time.Duration
	SnapshotThreshold int
}

// Node runs one member of a Raft-style cluster replicating a
// StateMachine. Single-node deployments bypass the log entirely:
// Submit applies directly to the state machine, matching spec's
// "single-node mode bypasses C8 and calls C5 directly" rule.
//
// Grounded in original_source's enigma-raft crate's role/term/log shape
// (config.rs's election_timeout_ms/heartbeat_interval_ms/
// snapshot_threshold fields), reimplemented from openraft's declarative
// TypeConfig onto a small hand-rolled state machine since no Go Raft
// library appears in the example pack.
type Node struct {
	id         string
	peers      map[string]string // id -> addr, excludes self
	singleNode bool
	sm         *StateMachine

	electionTimeout   time.Duration
	heartbeatInterval time.Duration
	snapshotThreshold int

	transport Transport

	mu          sync.Mutex
	role        Role
	currentTerm uint64
	votedFor    string
	log         []LogEntry
	commitIndex uint64
	lastApplied uint64
	leaderID    string

	resetElection chan struct{}
	stop          chan struct{}
}

// NewNode builds a Node. Call Run to start its background loops.
func NewNode(cfg Config, sm *StateMachine, transport Transport) *Node {
	peers := make(map[string]string)
	for _, p := range cfg.Peers {
		if p.ID != cfg.NodeID {
			peers[p.ID] = p.Addr
		}
	}
	electionTimeout := cfg.ElectionTimeout
	if electionTimeout <= 0 {
		electionTimeout = time.Second
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 300 * time.Millisecond
	}
	threshold := cfg.SnapshotThreshold
	if threshold <= 0 {
		threshold = 10000
	}
	return &Node{
		id:                cfg.NodeID,
		peers:             peers,
		singleNode:        cfg.SingleNode || len(peers) == 0,
		sm:                sm,
		electionTimeout:   electionTimeout,
		heartbeatInterval: heartbeat,
		snapshotThreshold: threshold,
		transport:         transport,
		role:              Follower,
		resetElection:     make(chan struct{}, 1),
		stop:              make(chan struct{}),
	}
}

// Run starts the node's election timer loop. It returns immediately;
// call Stop to shut it down. Single-node deployments never elect
// themselves since there is nothing to contend with the state machine.
func (n *Node) Run() {
	if n.singleNode {
		n.mu.Lock()
		n.role = Leader
		n.leaderID = n.id
		n.mu.Unlock()
		return
	}
	go n.electionLoop()
}

// Stop halts background goroutines.
func (n *Node) Stop() { close(n.stop) }

// SingleNode reports whether this node bypasses the log entirely,
// either because it was configured to or because it has no peers.
func (n *Node) SingleNode() bool { return n.singleNode }

func (n *Node) jitteredTimeout() time.Duration {
	return n.electionTimeout + time.Duration(rand.Int63n(int64(n.electionTimeout)))
}

func (n *Node) electionLoop() {
	timer := time.NewTimer(n.jitteredTimeout())
	defer timer.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-n.resetElection:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(n.jitteredTimeout())
		case <-timer.C:
			n.startElection()
			timer.Reset(n.jitteredTimeout())
		}
	}
}

func (n *Node) startElection() {
	n.mu.Lock()
	if n.role == Leader {
		n.mu.Unlock()
		return
	}
	n.role = Candidate
	n.currentTerm++
	term := n.currentTerm
	n.votedFor = n.id
	lastIndex, lastTerm := n.lastLogInfo()
	n.mu.Unlock()

	votes := 1
	var mu sync.Mutex
	var wg sync.WaitGroup
	for peerID, addr := range n.peersSnapshot() {
		wg.Add(1)
		go func(peerID, addr string) {
			defer wg.Done()
			resp, err := n.transport.RequestVote(addr, VoteRequest{
				Term:         term,
				CandidateID:  n.id,
				LastLogIndex: lastIndex,
				LastLogTerm:  lastTerm,
			})
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if resp.Term > term {
				n.stepDown(resp.Term)
				return
			}
			if resp.VoteGranted {
				votes++
			}
		}(peerID, addr)
	}
	wg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.role != Candidate || n.currentTerm != term {
		return
	}
	if votes*2 > len(n.peers)+1 {
		n.role = Leader
		n.leaderID = n.id
		go n.heartbeatLoop(term)
	}
}

func (n *Node) peersSnapshot() map[string]string {
	out := make(map[string]string, len(n.peers))
	for id, addr := range n.peers {
		out[id] = addr
	}
	return out
}

func (n *Node) lastLogInfo() (index, term uint64) {
	if len(n.log) == 0 {
		return 0, 0
	}
	last := n.log[len(n.log)-1]
	return last.Index, last.Term
}

func (n *Node) stepDown(term uint64) {
	n.currentTerm = term
	n.role = Follower
	n.votedFor = ""
}

func (n *Node) heartbeatLoop(term uint64) {
	ticker := time.NewTicker(n.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.mu.Lock()
			if n.role != Leader || n.currentTerm != term {
				n.mu.Unlock()
				return
			}
			n.mu.Unlock()
			n.replicateToAll(term)
		}
	}
}

// replicateToAll ships the whole log each round rather than the
// prevLogIndex/prevLogTerm consistency check real Raft uses; adequate
// at the log sizes a backup cluster's manifest mutations produce.
func (n *Node) replicateToAll(term uint64) {
	n.mu.Lock()
	entries := append([]LogEntry(nil), n.log...)
	commitIndex := n.commitIndex
	n.mu.Unlock()

	acked := 1
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, addr := range n.peersSnapshot() {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			resp, err := n.transport.AppendEntries(addr, AppendEntriesRequest{
				Term:         term,
				LeaderID:     n.id,
				Entries:      entries,
				LeaderCommit: commitIndex,
			})
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if resp.Term > term {
				n.mu.Lock()
				n.stepDown(resp.Term)
				n.mu.Unlock()
				return
			}
			if resp.Success {
				acked++
			}
		}(addr)
	}
	wg.Wait()

	if acked*2 > len(n.peers)+1 && len(entries) > 0 {
		n.mu.Lock()
		newCommit := entries[len(entries)-1].Index
		if newCommit > n.commitIndex {
			n.commitIndex = newCommit
		}
		n.mu.Unlock()
		n.applyCommitted()
	}
}

// applyCommitted runs every committed, not-yet-applied log entry
// through the state machine in order.
func (n *Node) applyCommitted() {
	n.mu.Lock()
	var toApply []LogEntry
	for _, e := range n.log {
		if e.Index > n.lastApplied && e.Index <= n.commitIndex {
			toApply = append(toApply, e)
		}
	}
	n.mu.Unlock()

	for _, e := range toApply {
		n.sm.Apply(context.Background(), e.Command)
		n.mu.Lock()
		n.lastApplied = e.Index
		n.mu.Unlock()
	}
}

// Submit appends cmd to the leader's log and applies it once a quorum
// has acknowledged. In single-node mode it applies directly, matching
// spec's single-node bypass. Returns ConsensusUnavailable-flavored
// errors through the caller's enigmaerr classification when this node
// is not the leader.
func (n *Node) Submit(ctx context.Context, cmd Command) (Result, error) {
	if n.singleNode {
		return n.sm.Apply(ctx, cmd), nil
	}

	n.mu.Lock()
	if n.role != Leader {
		leader := n.leaderID
		n.mu.Unlock()
		return Result{}, &NotLeaderError{LeaderID: leader}
	}
	index := uint64(len(n.log) + 1)
	entry := LogEntry{Term: n.currentTerm, Index: index, Command: cmd}
	n.log = append(n.log, entry)
	term := n.currentTerm
	n.mu.Unlock()

	n.replicateToAll(term)

	n.mu.Lock()
	committed := index <= n.commitIndex
	n.mu.Unlock()
	if !committed {
		return Result{}, fmt.Errorf("consensus: command %s did not reach quorum", cmd.RequestID)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sm.applied[cmd.RequestID], nil
}

// HandleAppendEntries services an incoming AppendEntries RPC.
func (n *Node) HandleAppendEntries(req AppendEntriesRequest) AppendEntriesResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term < n.currentTerm {
		return AppendEntriesResponse{Term: n.currentTerm, Success: false}
	}
	if req.Term > n.currentTerm {
		n.stepDown(req.Term)
	}
	n.role = Follower
	n.leaderID = req.LeaderID
	select {
	case n.resetElection <- struct{}{}:
	default:
	}

	n.log = req.Entries
	if req.LeaderCommit > n.commitIndex {
		if len(n.log) > 0 && req.LeaderCommit < n.log[len(n.log)-1].Index {
			n.commitIndex = req.LeaderCommit
		} else if len(n.log) > 0 {
			n.commitIndex = n.log[len(n.log)-1].Index
		}
	}
	go n.applyCommitted()

	return AppendEntriesResponse{Term: n.currentTerm, Success: true}
}

// HandleRequestVote services an incoming RequestVote RPC.
func (n *Node) HandleRequestVote(req VoteRequest) VoteResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term < n.currentTerm {
		return VoteResponse{Term: n.currentTerm, VoteGranted: false}
	}
	if req.Term > n.currentTerm {
		n.stepDown(req.Term)
	}

	lastIndex, lastTerm := n.lastLogInfo()
	logOK := req.LastLogTerm > lastTerm || (req.LastLogTerm == lastTerm && req.LastLogIndex >= lastIndex)

	if (n.votedFor == "" || n.votedFor == req.CandidateID) && logOK {
		n.votedFor = req.CandidateID
		select {
		case n.resetElection <- struct{}{}:
		default:
		}
		return VoteResponse{Term: n.currentTerm, VoteGranted: true}
	}
	return VoteResponse{Term: n.currentTerm, VoteGranted: false}
}

// NotLeaderError is returned by Submit when this node cannot serve a
// write; the client should retry against LeaderID.
type NotLeaderError struct {
	LeaderID string
}

func (e *NotLeaderError) Error() string {
	if e.LeaderID == "" {
		return "consensus: no known leader, quorum may be lost"
	}
	return fmt.Sprintf("consensus: not leader, redirect to %s", e.LeaderID)
}
