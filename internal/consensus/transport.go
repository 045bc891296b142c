package consensus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AppendEntriesRequest replicates log entries from a leader to a follower.
type AppendEntriesRequest struct {
	Term         uint64     `json:"term"`
	LeaderID     string     `json:"leader_id"`
	Entries      []LogEntry `json:"entries"`
	LeaderCommit uint64     `json:"leader_commit"`
}

// AppendEntriesResponse is a follower's reply to AppendEntries.
type AppendEntriesResponse struct {
	Term    uint64 `json:"term"`
	Success bool   `json:"success"`
}

// VoteRequest solicits a follower's vote during an election.
type VoteRequest struct {
	Term         uint64 `json:"term"`
	CandidateID  string `json:"candidate_id"`
	LastLogIndex uint64 `json:"last_log_index"`
	LastLogTerm  uint64 `json:"last_log_term"`
}

// VoteResponse is a follower's reply to RequestVote.
type VoteResponse struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"vote_granted"`
}

// InstallSnapshotRequest transfers a full manifest database snapshot to
// a follower that has fallen behind the leader's log retention.
type InstallSnapshotRequest struct {
	Term              uint64 `json:"term"`
	LeaderID          string `json:"leader_id"`
	LastIncludedIndex uint64 `json:"last_included_index"`
	LastIncludedTerm  uint64 `json:"last_included_term"`
	Data              []byte `json:"data"`
}

// InstallSnapshotResponse is a follower's reply to InstallSnapshot.
type InstallSnapshotResponse struct {
	Term uint64 `json:"term"`
}

// Transport is the client side of the consensus RPCs a Node issues to
// its peers. HTTPTransport is the production implementation; tests can
// substitute an in-process fake.
type Transport interface {
	AppendEntries(addr string, req AppendEntriesRequest) (AppendEntriesResponse, error)
	RequestVote(addr string, req VoteRequest) (VoteResponse, error)
	InstallSnapshot(addr string, req InstallSnapshotRequest) (InstallSnapshotResponse, error)
}

// HTTPTransport issues consensus RPCs as JSON POST requests, following
// the "JSON-over-HTTP RPC transport" external interface: no gRPC/protobuf
// toolchain is available in the example pack this module was grounded
// on, so plain net/http plus encoding/json stands in for the original's
// tonic-generated client.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a Transport with the given per-call timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) post(addr, path string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpResp, err := t.client.Post(fmt.Sprintf("http://%s%s", addr, path), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("consensus: %s returned status %d", path, httpResp.StatusCode)
	}
	return json.NewDecoder(httpResp.Body).Decode(resp)
}

func (t *HTTPTransport) AppendEntries(addr string, req AppendEntriesRequest) (AppendEntriesResponse, error) {
	var resp AppendEntriesResponse
	err := t.post(addr, "/raft/append_entries", req, &resp)
	return resp, err
}

func (t *HTTPTransport) RequestVote(addr string, req VoteRequest) (VoteResponse, error) {
	var resp VoteResponse
	err := t.post(addr, "/raft/request_vote", req, &resp)
	return resp, err
}

func (t *HTTPTransport) InstallSnapshot(addr string, req InstallSnapshotRequest) (InstallSnapshotResponse, error) {
	var resp InstallSnapshotResponse
	err := t.post(addr, "/raft/install_snapshot", req, &resp)
	return resp, err
}

// Handler serves a Node's consensus RPC endpoints, plus the client-facing
// submit(cmd) entry point, over HTTP.
type Handler struct {
	node *Node
}

// NewHandler builds an http.Handler exposing node's RPC surface.
func NewHandler(node *Node) *Handler {
	return &Handler{node: node}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/raft/append_entries":
		h.handleAppendEntries(w, r)
	case "/raft/request_vote":
		h.handleRequestVote(w, r)
	case "/raft/submit":
		h.handleSubmit(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleAppendEntries(w http.ResponseWriter, r *http.Request) {
	var req AppendEntriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := h.node.HandleAppendEntries(req)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleRequestVote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := h.node.HandleRequestVote(req)
	json.NewEncoder(w).Encode(resp)
}

// handleSubmit is the client entry point: submit(cmd) returning the
// applied result, or a not-leader redirect if this node isn't leader.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.node.Submit(context.Background(), cmd)
	if err != nil {
		var notLeader *NotLeaderError
		if asNotLeader(err, &notLeader) {
			w.Header().Set("X-Raft-Leader", notLeader.LeaderID)
			http.Error(w, err.Error(), http.StatusTemporaryRedirect)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	json.NewEncoder(w).Encode(result)
}

func asNotLeader(err error, target **NotLeaderError) bool {
	if nl, ok := err.(*NotLeaderError); ok {
		*target = nl
		return true
	}
	return false
}
